package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	chunker := NewChunker(1000, 200)
	require.Empty(t, chunker.Split(""))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	chunker := NewChunker(1000, 200)

	chunks := chunker.Split("short document")

	require.Equal(t, []string{"short document"}, chunks)
}

func TestSplitProducesOverlappingChunks(t *testing.T) {
	chunker := NewChunker(10, 4)
	text := "abcdefghijklmnopqrstuvwxyz"

	chunks := chunker.Split(text)

	require.Equal(t, []string{"abcdefghij", "ghijklmnop", "mnopqrstuv", "stuvwxyz"}, chunks)
	// Each chunk starts with the tail of the previous one.
	for i := 1; i < len(chunks); i++ {
		require.Equal(t, chunks[i-1][6:], chunks[i][:4])
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	chunker := NewChunker(5, 0)
	text := strings.Repeat("á", 7)

	chunks := chunker.Split(text)

	require.Len(t, chunks, 2)
	require.Equal(t, strings.Repeat("á", 5), chunks[0])
	require.Equal(t, strings.Repeat("á", 2), chunks[1])
}

func TestNewChunkerDefaults(t *testing.T) {
	chunker := NewChunker(0, -1)

	require.Equal(t, 1000, chunker.size)
	require.Equal(t, 200, chunker.overlap)
}
