package types

// TokenCounter is the minimal counting interface the assembly layer
// depends on.
//
// Note: two token interfaces exist in the project, each serving a
// different layer:
//   - types.TokenCounter (this) — assembly-level, no error returns
//   - tokenizer.Tokenizer       — full encode/decode with errors, model-aware
//
// Use tokenizer.NewCounterAdapter to bridge a tokenizer.Tokenizer into a
// TokenCounter.
type TokenCounter interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
}
