package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDropsEmptyAndWhitespaceOnlyFragments(t *testing.T) {
	s := New(DefaultConfig())
	fragments, err := s.Split("first paragraph.\n\n   \n\nsecond paragraph.")
	require.NoError(t, err)
	for _, f := range fragments {
		assert.NotEmpty(t, strings.TrimSpace(f.Text))
	}
}

func TestSplitAssignsSequentialLocalIndex(t *testing.T) {
	s := New(Config{TargetLength: 20, OverlapLength: 0, HardCap: 2000})
	text := strings.Repeat("word ", 50)
	fragments, err := s.Split(text)
	require.NoError(t, err)
	require.NotEmpty(t, fragments)
	for i, f := range fragments {
		assert.Equal(t, i, f.LocalIndex)
	}
}

func TestSplitRespectsTargetLengthApproximately(t *testing.T) {
	s := New(Config{TargetLength: 100, OverlapLength: 10, HardCap: 2000})
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	fragments, err := s.Split(text)
	require.NoError(t, err)
	require.NotEmpty(t, fragments)
	for _, f := range fragments {
		assert.LessOrEqual(t, len(f.Text), 200, "fragment should not wildly exceed target length")
	}
}

func TestEnforceHardCapSplitsOversizedSingleToken(t *testing.T) {
	oversized := strings.Repeat("x", 5000)
	parts := enforceHardCap(oversized, 2000)
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 2000)
	assert.Len(t, parts[1], 2000)
	assert.Len(t, parts[2], 1000)
}

func TestEnforceHardCapNoopUnderLimit(t *testing.T) {
	parts := enforceHardCap("short text", 2000)
	assert.Equal(t, []string{"short text"}, parts)
}

func TestSplitNeverExceedsHardCap(t *testing.T) {
	s := New(Config{TargetLength: 500, OverlapLength: 50, HardCap: 2000})
	oneHugeToken := strings.Repeat("a", 10000)
	fragments, err := s.Split(oneHugeToken)
	require.NoError(t, err)
	for _, f := range fragments {
		assert.LessOrEqual(t, len(f.Text), 2000)
	}
}

func TestSplitEmptyInputReturnsNoFragments(t *testing.T) {
	s := New(DefaultConfig())
	fragments, err := s.Split("")
	require.NoError(t, err)
	assert.Empty(t, fragments)
}
