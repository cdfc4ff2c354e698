package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bookdex/internal/config"
	"bookdex/internal/model"
)

func testChunker() *Chunker {
	return New(config.ChunkerConfig{MinTokens: 200, MaxTokens: 600, OverlapTokens: 50})
}

func longBody(sentences int) string {
	var sb strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&sb, "The quick brown fox number %d jumps over the lazy sleeping dog. ", i)
	}
	return sb.String()
}

func TestChunkIdempotent(t *testing.T) {
	page := model.DocumentPage{
		URL:              "https://example.com/docs/ch1",
		RawText:          "# Chapter One\n\n" + longBody(120),
		HeadingHierarchy: nil,
	}
	ck := testChunker()

	first, err := ck.Chunk(page)
	require.NoError(t, err)
	second, err := ck.Chunk(page)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
	for i, c := range first {
		require.Equal(t, i, c.Position)
		require.Equal(t, ChunkID(page.URL, i), c.ID)
	}
}

func TestChunkBudgetAndOverlap(t *testing.T) {
	page := model.DocumentPage{
		URL:     "https://example.com/docs/long",
		RawText: "# Ch1\n\n## Sec1\n\n" + longBody(150),
	}
	ck := testChunker()

	chunks, err := ck.Chunk(page)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)
	for _, c := range chunks {
		require.Equal(t, []string{"Ch1", "Sec1"}, c.HeadingPath)
		require.Equal(t, "Ch1", c.Chapter)
		require.Equal(t, "Sec1", c.Section)
		require.LessOrEqual(t, c.TokenCount, 600)
	}
	// Each budget-split chunk starts with the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		tail := TailTokens(chunks[i-1].Content, 50)
		require.True(t, strings.HasPrefix(chunks[i].Content, tail),
			"chunk %d does not carry the overlap of chunk %d", i, i-1)
	}
}

func TestChunkHeadingBoundary(t *testing.T) {
	page := model.DocumentPage{
		URL:     "https://example.com/docs/two-sections",
		RawText: "# Alpha\n\nFirst section text.\n\n# Beta\n\nSecond section text.",
	}
	chunks, err := testChunker().Chunk(page)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, []string{"Alpha"}, chunks[0].HeadingPath)
	require.Equal(t, []string{"Beta"}, chunks[1].HeadingPath)
	require.Contains(t, chunks[0].Content, "First section")
	require.NotContains(t, chunks[0].Content, "Second section")
}

func TestChunkHeadingStackNesting(t *testing.T) {
	page := model.DocumentPage{
		URL:              "https://example.com/docs/nested",
		RawText:          "# Gazebo Fundamentals\n\nIntro text here.\n\n## Simulation\n\nNested text here.\n\n## Sensors\n\nSibling text here.",
		HeadingHierarchy: []string{"Module 2"},
	}
	chunks, err := testChunker().Chunk(page)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, []string{"Module 2", "Gazebo Fundamentals"}, chunks[0].HeadingPath)
	require.Equal(t, []string{"Module 2", "Gazebo Fundamentals", "Simulation"}, chunks[1].HeadingPath)
	require.Equal(t, []string{"Module 2", "Gazebo Fundamentals", "Sensors"}, chunks[2].HeadingPath)
	require.Equal(t, "Module 2", chunks[0].Chapter)
	require.Equal(t, "Gazebo Fundamentals", chunks[0].Section)
}

func TestChunkNoHeadings(t *testing.T) {
	page := model.DocumentPage{
		URL:     "https://example.com/docs/plain",
		RawText: "Just a paragraph without any structure at all.",
	}
	chunks, err := testChunker().Chunk(page)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].HeadingPath)
	require.Empty(t, chunks[0].Chapter)
	require.Empty(t, chunks[0].Section)
}

func TestChunkOversizedSentenceKept(t *testing.T) {
	// A single sentence over the budget is emitted whole, never dropped.
	huge := strings.Repeat("word ", 800) + "end."
	page := model.DocumentPage{
		URL:     "https://example.com/docs/huge",
		RawText: huge,
	}
	chunks, err := testChunker().Chunk(page)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Greater(t, chunks[0].TokenCount, 600)
}

func TestChunkEmptyPage(t *testing.T) {
	chunks, err := testChunker().Chunk(model.DocumentPage{URL: "https://example.com/empty"})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestChunkIDStable(t *testing.T) {
	a := ChunkID("https://example.com/x", 3)
	b := ChunkID("https://example.com/x", 3)
	c := ChunkID("https://example.com/x", 4)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 36) // uuid format, accepted by every store backend
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 5, EstimateTokens("one two three four five"))
	require.Equal(t, 1, EstimateTokens("..."))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First here. Second there! Third where? Trailing bit")
	require.Equal(t, []string{"First here.", "Second there!", "Third where?", "Trailing bit"}, got)

	require.Equal(t, []string{"no terminal punctuation"}, SplitSentences("no terminal punctuation"))
}

func TestTailTokens(t *testing.T) {
	require.Equal(t, "d e", TailTokens("a b c d e", 2))
	require.Equal(t, "a b c", TailTokens("a b c", 10))
	require.Equal(t, "", TailTokens("", 5))
}
