package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/fableloom/chronicler/types"
)

// ScopeFilter bounds a query to what the asking agent is allowed to
// know: its visible entities and its declared intent keywords. Hidden
// entities never appear in the query, so the index cannot leak them.
type ScopeFilter struct {
	VisibleEntities []string `json:"visible_entities,omitempty"`
	IntentKeywords  []string `json:"intent_keywords,omitempty"`
}

// Retriever queries a ranked knowledge index. Implementations must be
// safe for concurrent queries; the engine fans out one query per agent.
type Retriever interface {
	// Query returns up to topK snippets ranked by relevance. An
	// unreachable or timed-out index yields INDEX_UNAVAILABLE.
	Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error)
}

// tokenize lowercases and splits text into letter/digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// tokenSet builds the dedup'd term set of a text.
func tokenSet(text string) map[string]bool {
	tokens := tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

// queryTerms expands the query text with the scope's intent keywords
// and visible entity identifiers, sorted for deterministic hashing.
func queryTerms(text string, scope ScopeFilter) []string {
	set := tokenSet(text)
	for _, kw := range scope.IntentKeywords {
		for _, tok := range tokenize(kw) {
			set[tok] = true
		}
	}
	for _, id := range scope.VisibleEntities {
		for _, tok := range tokenize(id) {
			set[tok] = true
		}
	}
	terms := make([]string, 0, len(set))
	for tok := range set {
		terms = append(terms, tok)
	}
	sort.Strings(terms)
	return terms
}

// rankSnippets orders by relevance, then trust, then source id. The
// explicit tail keeps equal-scored results stable across runs.
func rankSnippets(snippets []types.KnowledgeSnippet) {
	sort.Slice(snippets, func(i, j int) bool {
		if snippets[i].RelevanceScore != snippets[j].RelevanceScore {
			return snippets[i].RelevanceScore > snippets[j].RelevanceScore
		}
		if snippets[i].TrustScore != snippets[j].TrustScore {
			return snippets[i].TrustScore > snippets[j].TrustScore
		}
		return snippets[i].SourceID < snippets[j].SourceID
	})
}
