package tokenizer

import "unicode/utf8"

// Estimator is a character-count-based token estimator. It distinguishes
// CJK and ASCII characters for better accuracy compared to a naive len/4
// approach, and never fails, which makes it the fallback of choice for
// budget enforcement.
type Estimator struct {
	cjkCharsPerToken   float64
	asciiCharsPerToken float64
}

// NewEstimator creates an estimator with the standard ratios
// (CJK ~1.5 chars/token, ASCII ~4 chars/token).
func NewEstimator() *Estimator {
	return &Estimator{
		cjkCharsPerToken:   1.5,
		asciiCharsPerToken: 4.0,
	}
}

// WithRatios overrides the chars-per-token ratios.
func (e *Estimator) WithRatios(cjk, ascii float64) *Estimator {
	if cjk > 0 {
		e.cjkCharsPerToken = cjk
	}
	if ascii > 0 {
		e.asciiCharsPerToken = ascii
	}
	return e
}

// CountTokens estimates the token count of text. Non-empty text counts
// as at least one token.
func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	cjkTokens := float64(cjkCount) / e.cjkCharsPerToken
	asciiTokens := float64(totalChars-cjkCount) / e.asciiCharsPerToken
	estimated := int(cjkTokens + asciiTokens)

	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

// Name implements Tokenizer.
func (e *Estimator) Name() string {
	return BackendEstimator
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
