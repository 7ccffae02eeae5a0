package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/types"
)

func TestEstimator_CountTokens(t *testing.T) {
	t.Parallel()

	e := NewEstimator()

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "8 ascii chars at 4 chars/token")

	n, err = e.CountTokens("侦察兵在山脊上")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "7 CJK chars at 1.5 chars/token, truncated")

	n, err = e.CountTokens("x")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "non-empty text is at least one token")
}

func TestEstimator_WithRatios(t *testing.T) {
	t.Parallel()

	e := NewEstimator().WithRatios(0, 2.0)
	n, err := e.CountTokens("abcd")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNew_BackendSelection(t *testing.T) {
	t.Parallel()

	tok, err := New("", "")
	require.NoError(t, err)
	assert.Equal(t, BackendEstimator, tok.Name())

	tok, err = New(BackendTiktoken, "")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken[cl100k_base]", tok.Name())

	_, err = New("sentencepiece", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("boom") }
func (failingTokenizer) Name() string                    { return "failing" }

func TestCounterAdapter_FallsBackToEstimator(t *testing.T) {
	t.Parallel()

	a := NewCounterAdapter(failingTokenizer{}, nil)
	assert.Equal(t, 2, a.CountTokens("abcdefgh"))

	b := NewCounterAdapter(nil, nil)
	assert.Equal(t, 2, b.CountTokens("abcdefgh"))
}
