package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SectionBreadcrumbs(t *testing.T) {
	md := `# Guide

intro paragraph

## Install

install body

### Linux

linux body

## Usage

usage body
`
	chunks := Split(md, Options{MaxChars: 1000})
	require.Len(t, chunks, 4)

	assert.Equal(t, "Guide", chunks[0].SectionPath)
	assert.Equal(t, "intro paragraph", chunks[0].Text)
	assert.Equal(t, "Guide > Install", chunks[1].SectionPath)
	assert.Equal(t, "Guide > Install > Linux", chunks[2].SectionPath)
	assert.Equal(t, "Guide > Usage", chunks[3].SectionPath)
	assert.Equal(t, "usage body", chunks[3].Text)
}

func TestSplit_HeaderInCodeFenceIgnored(t *testing.T) {
	md := "# Top\n\nbefore\n\n```\n# not a header\n```\n\nafter\n"
	chunks := Split(md, Options{MaxChars: 1000})
	require.Len(t, chunks, 1)
	assert.Equal(t, "Top", chunks[0].SectionPath)
	assert.Contains(t, chunks[0].Text, "# not a header")
	assert.Contains(t, chunks[0].Text, "after")
}

func TestSplit_LongSectionBoundedWithOverlap(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Long\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("a", 50))
		b.WriteString("\n")
	}

	chunks := Split(b.String(), Options{MaxChars: 300, OverlapChars: 60})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, "Long", c.SectionPath)
		assert.LessOrEqual(t, len([]rune(c.Text)), 300)
		assert.NotEmpty(t, c.Text)
	}

	// 相邻切片共享尾部上下文
	first := []rune(chunks[0].Text)
	tail := string(first[len(first)-30:])
	assert.Contains(t, chunks[1].Text, tail)
}

func TestSplit_Deterministic(t *testing.T) {
	md := "# A\n\n" + strings.Repeat("内容段落。", 500) + "\n\n## B\n\nshort\n"
	a := Split(md, Options{MaxChars: 400, OverlapChars: 80})
	b := Split(md, Options{MaxChars: 400, OverlapChars: 80})
	assert.Equal(t, a, b)
}

func TestSplit_SkipLevelHeaders(t *testing.T) {
	md := "# Top\n\n### Deep\n\nbody\n"
	chunks := Split(md, Options{MaxChars: 1000})
	require.Len(t, chunks, 1)
	assert.Equal(t, "Top >  > Deep", chunks[0].SectionPath)
}

func TestSplit_NoHeaders(t *testing.T) {
	chunks := Split("plain text without any header\n", Options{MaxChars: 1000})
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].SectionPath)
	assert.Equal(t, "plain text without any header", chunks[0].Text)
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split("", Options{}))
	assert.Empty(t, Split("\n\n\n", Options{}))
}
