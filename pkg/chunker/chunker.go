// Package chunker 将页面 markdown 按标题层级切分为大小受限、可重叠的切片。
// 同样的输入与配置永远产出同样的切片序列，增量索引的幂等性依赖这一点。
package chunker

import (
	"strings"
)

type Chunk struct {
	SectionPath string // 标题面包屑，如 "指南 > 安装 > Linux"
	Text        string
}

type Options struct {
	MaxChars     int // 单个切片的字符上限
	OverlapChars int // 超长小节切分时携带的尾部上下文
}

const (
	DefaultMaxChars     = 2400
	DefaultOverlapChars = 200
)

type section struct {
	path []string
	text string
}

// Split 按标题边界切分 markdown。单节超过 MaxChars 时继续二分，
// 每段携带上一段末尾 OverlapChars 个字符作为上下文。
func Split(markdown string, opts Options) []Chunk {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.OverlapChars < 0 {
		opts.OverlapChars = 0
	}
	if opts.OverlapChars >= opts.MaxChars {
		opts.OverlapChars = opts.MaxChars / 4
	}

	var chunks []Chunk
	for _, sec := range splitSections(markdown) {
		text := strings.TrimSpace(sec.text)
		if text == "" {
			continue
		}
		path := strings.Join(sec.path, " > ")
		for _, piece := range splitBounded(text, opts.MaxChars, opts.OverlapChars) {
			chunks = append(chunks, Chunk{SectionPath: path, Text: piece})
		}
	}
	return chunks
}

// splitSections 逐行扫描标题，维护各级标题的面包屑。
// 代码块内的 "#" 不视为标题。
func splitSections(markdown string) []section {
	var (
		sections []section
		crumbs   []string // crumbs[i] = i+1 级标题
		current  strings.Builder
		inFence  bool
	)

	flush := func() {
		if current.Len() > 0 {
			sections = append(sections, section{path: append([]string{}, crumbs...), text: current.String()})
			current.Reset()
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		if !inFence {
			if level, title, ok := parseHeader(trimmed); ok {
				flush()
				if level <= len(crumbs) {
					crumbs = crumbs[:level-1]
				}
				for len(crumbs) < level-1 {
					crumbs = append(crumbs, "")
				}
				crumbs = append(crumbs, title)
				continue
			}
		}

		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return sections
}

func parseHeader(line string) (level int, title string, ok bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i > 6 || i >= len(line) || line[i] != ' ' {
		return 0, "", false
	}
	return i, strings.TrimSpace(line[i:]), true
}

// splitBounded 把超长文本按 maxChars 切段，段间重叠 overlap 个字符。
// 优先在段落/换行边界断开，避免把句子拦腰截断。
func splitBounded(text string, maxChars, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + maxChars
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		if idx := lastBreak(runes[start:end]); idx > maxChars/2 {
			cut = start + idx
		}

		pieces = append(pieces, strings.TrimSpace(string(runes[start:cut])))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	var out []string
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lastBreak 返回最靠后的换行边界位置，找不到则返回 -1
func lastBreak(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
