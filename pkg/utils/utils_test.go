package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugifyAnchor(t *testing.T) {
	assert.Equal(t, "getting-started", SlugifyAnchor("Getting Started"))
	assert.Equal(t, "faq", SlugifyAnchor("  FAQ  "))
	assert.Equal(t, "install-on-linux", SlugifyAnchor("Install on Linux!"))
	// 中文标题保留原字符
	assert.Equal(t, "安装指南", SlugifyAnchor("安装指南"))
	assert.Equal(t, "", SlugifyAnchor("!!!"))
}

func TestAnchoredURL(t *testing.T) {
	// 锚点取面包屑最后一段
	assert.Equal(t, "https://docs.example.com/a#linux",
		AnchoredURL("https://docs.example.com/a", "安装 > Linux"))

	// 无面包屑时原样返回
	assert.Equal(t, "https://docs.example.com/a",
		AnchoredURL("https://docs.example.com/a", ""))

	// 已带锚点的链接不再追加
	assert.Equal(t, "https://docs.example.com/a#x",
		AnchoredURL("https://docs.example.com/a#x", "安装 > Linux"))
}

func TestClampText(t *testing.T) {
	assert.Equal(t, "short", ClampText("short", 10))
	assert.Equal(t, "abc...", ClampText("abcdefgh", 6))
	assert.Equal(t, "ab", ClampText("abcdefgh", 2))
	// 按 rune 截断，多字节字符不被截半
	assert.Equal(t, "一二三四五", ClampText("一二三四五", 5))
}
