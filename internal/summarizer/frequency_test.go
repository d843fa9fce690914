package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	text := "The tenant pays rent. Weather was nice. The tenant pays rent and the tenant pays the deposit. Birds sang."
	s := NewFrequencySummarizer()

	out, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "The tenant pays rent. The tenant pays rent and the tenant pays the deposit.", out)
}

func TestSummarizeShortText(t *testing.T) {
	s := NewFrequencySummarizer()

	out, err := s.Summarize("Only one clause without a stop", 3)
	require.NoError(t, err)
	assert.Equal(t, "Only one clause without a stop", out)

	out, err = s.Summarize("   ", 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummarizeDefaultsMaxSentences(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("A one. B two. C three.", 0)
	require.NoError(t, err)
	assert.Equal(t, "A one. B two. C three.", out)
}
