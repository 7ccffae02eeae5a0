package types

import "fmt"

// Synthetic provenance for content generated inside the pipeline
// (memory recalls, masked world state). External snippets carry
// their own source identity instead.
const (
	InternalSourceID      = "internal"
	InternalSourceVersion = "current"
)

// KnowledgeSnippet is a single unit of retrievable external knowledge.
// Snippets enter the pipeline only through the retriever and must carry
// provenance that resolves against the active source registry.
type KnowledgeSnippet struct {
	Content        string    `json:"content"`
	SourceID       string    `json:"source_id"`
	SourceVersion  string    `json:"source_version"`
	TrustScore     float64   `json:"trust_score"`
	RelevanceScore float64   `json:"relevance_score"`
	Embedding      []float64 `json:"embedding,omitempty"`
}

// ProvenanceTag returns the snippet's provenance in source_id@version form.
func (s KnowledgeSnippet) ProvenanceTag() string {
	return MakeProvenanceTag(s.SourceID, s.SourceVersion)
}

// Validate checks structural integrity. Malformed snippets are skipped
// by the pipeline, never surfaced to a turn.
func (s KnowledgeSnippet) Validate() error {
	if s.Content == "" {
		return NewError(ErrValidation, "snippet content is empty")
	}
	if s.SourceID == "" || s.SourceVersion == "" {
		return NewError(ErrValidation, "snippet missing source identity")
	}
	if s.TrustScore < 0 || s.TrustScore > 1 {
		return NewError(ErrValidation, fmt.Sprintf("trust_score %.3f out of [0,1]", s.TrustScore))
	}
	if s.RelevanceScore < 0 || s.RelevanceScore > 1 {
		return NewError(ErrValidation, fmt.Sprintf("relevance_score %.3f out of [0,1]", s.RelevanceScore))
	}
	return nil
}

// Clone returns a deep copy of the snippet.
func (s KnowledgeSnippet) Clone() KnowledgeSnippet {
	out := s
	if s.Embedding != nil {
		out.Embedding = make([]float64, len(s.Embedding))
		copy(out.Embedding, s.Embedding)
	}
	return out
}

// MakeProvenanceTag builds a source_id@version provenance tag.
func MakeProvenanceTag(sourceID, version string) string {
	return sourceID + "@" + version
}

// InternalProvenance returns the synthetic tag attached to content that
// originates inside the pipeline rather than from an external source.
func InternalProvenance() string {
	return MakeProvenanceTag(InternalSourceID, InternalSourceVersion)
}
