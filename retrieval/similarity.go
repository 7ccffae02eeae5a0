package retrieval

import (
	"hash/fnv"
	"math"

	"github.com/fableloom/chronicler/types"
)

// embedDim is the dimension of hash embeddings the in-process index
// derives for content that arrives without a vector.
const embedDim = 64

// hashEmbedding maps terms into a fixed-dimension count vector via FNV
// feature hashing, l2-normalized. Deterministic across runs; good
// enough for the in-process index and for diversity comparisons.
func hashEmbedding(terms []string) []float64 {
	vec := make([]float64, embedDim)
	for _, term := range terms {
		h := fnv.New32a()
		h.Write([]byte(term))
		vec[h.Sum32()%embedDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// cosineSimilarity returns the cosine of two vectors, 0 when the
// dimensions differ or either vector is zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccardSimilarity compares two texts as term sets.
func jaccardSimilarity(text1, text2 string) float64 {
	set1 := tokenSet(text1)
	set2 := tokenSet(text2)
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	intersection := 0
	for tok := range set1 {
		if set2[tok] {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// snippetSimilarity compares two snippets: embedding cosine when both
// carry comparable vectors, term-set jaccard otherwise.
func snippetSimilarity(a, b types.KnowledgeSnippet) float64 {
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		return cosineSimilarity(a.Embedding, b.Embedding)
	}
	return jaccardSimilarity(a.Content, b.Content)
}

// termOverlap is the fraction of query terms present in the content.
func termOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0.0
	}
	contentSet := tokenSet(content)
	hits := 0
	for _, term := range terms {
		if contentSet[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
