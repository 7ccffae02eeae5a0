package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the configuration names none.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts tokens with a real BPE encoding. Encodings load
// lazily on first use; a load failure surfaces as a CountTokens error
// so callers can fall back to the estimator.
type Tiktoken struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktoken creates a tiktoken-backed tokenizer for the given encoding.
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{encoding: encoding}
}

// init lazily 初始化 tiktoken 编码(可能在第一次使用时下载数据).
func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens implements Tokenizer.
func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Name implements Tokenizer.
func (t *Tiktoken) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
