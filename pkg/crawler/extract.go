package crawler

import (
	"strings"

	"golang.org/x/net/html"
)

// Extractor 从 HTML 中抽取标题、正文 markdown 与出链
type Extractor interface {
	Extract(pageURL, rawHTML string) (title, markdown string, links []string)
}

// HTMLExtractor 默认实现：跳过导航/脚本等噪音节点，
// 把常见的块级元素转写为 markdown。
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

var skipElements = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
	"nav": {}, "header": {}, "footer": {}, "aside": {}, "iframe": {}, "svg": {},
}

var headerLevels = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
}

func (e *HTMLExtractor) Extract(pageURL, rawHTML string) (string, string, []string) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", nil
	}

	w := &mdWriter{}
	var title string
	var links []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skipElements[n.Data]; skip {
				return
			}

			switch {
			case n.Data == "title":
				if title == "" {
					title = strings.TrimSpace(textContent(n))
				}
				return
			case n.Data == "a":
				if href := attr(n, "href"); href != "" {
					links = append(links, href)
				}
				text := strings.TrimSpace(textContent(n))
				if text != "" {
					w.inline(text)
				}
				return
			case headerLevels[n.Data] > 0:
				w.block(strings.Repeat("#", headerLevels[n.Data]) + " " + collapseSpace(textContent(n)))
				return
			case n.Data == "pre":
				w.block("```\n" + strings.Trim(textContent(n), "\n") + "\n```")
				return
			case n.Data == "li":
				w.block("- " + collapseSpace(textContent(n)))
				// li 里的链接仍然要收集
				collectLinks(n, &links)
				return
			case n.Data == "p":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				w.endBlock()
				return
			case n.Data == "br":
				w.endBlock()
				return
			case n.Data == "code":
				text := strings.TrimSpace(textContent(n))
				if text != "" {
					w.inline("`" + text + "`")
				}
				return
			}
		}

		if n.Type == html.TextNode {
			w.inline(collapseSpace(n.Data))
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(n.Data) {
			w.endBlock()
		}
	}
	walk(doc)
	w.endBlock()

	if title == "" {
		title = pageURL
	}
	return title, w.String(), links
}

func isBlockElement(tag string) bool {
	switch tag {
	case "div", "section", "article", "main", "table", "tr", "blockquote", "ul", "ol", "dl", "dd", "dt":
		return true
	}
	return false
}

func collectLinks(n *html.Node, links *[]string) {
	if n.Type == html.ElementNode && n.Data == "a" {
		if href := attr(n, "href"); href != "" {
			*links = append(*links, href)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLinks(c, links)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// mdWriter 把行内片段累积成段落，块级内容之间留空行
type mdWriter struct {
	blocks []string
	line   []string
}

func (w *mdWriter) inline(text string) {
	if text == "" {
		return
	}
	w.line = append(w.line, text)
}

func (w *mdWriter) endBlock() {
	if len(w.line) == 0 {
		return
	}
	w.blocks = append(w.blocks, strings.Join(w.line, " "))
	w.line = nil
}

func (w *mdWriter) block(text string) {
	w.endBlock()
	if strings.TrimSpace(text) == "" {
		return
	}
	w.blocks = append(w.blocks, text)
}

func (w *mdWriter) String() string {
	return strings.Join(w.blocks, "\n\n")
}
