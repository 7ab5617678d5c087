package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"strconv"
	"strings"
	"unicode"

	"github.com/holdno/snowFlakeByGo"
)

var (
	idWorker *snowFlakeByGo.Worker
)

func SetupIDWorker(clusterID int64) {
	idWorker, _ = snowFlakeByGo.NewWorker(clusterID)
}

func GenUniqID() int64 {
	return idWorker.GetId()
}

func GenUniqIDStr() string {
	return strconv.FormatInt(GenUniqID(), 10)
}

func init() {
	// 默认集群号，服务启动时可通过 SetupIDWorker 覆盖
	SetupIDWorker(0)
}

func Random(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// SHA256 文本内容指纹，用于页面与切片的变更检测
func SHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SlugifyAnchor 把标题转成页面锚点，规则与常见文档站点生成器一致：
// 小写、空白转连字符、丢弃其余符号
func SlugifyAnchor(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// AnchoredURL 给来源链接附加小节锚点，小节取面包屑的最后一段
func AnchoredURL(pageURL, sectionPath string) string {
	if sectionPath == "" || strings.Contains(pageURL, "#") {
		return pageURL
	}
	segments := strings.Split(sectionPath, " > ")
	anchor := SlugifyAnchor(segments[len(segments)-1])
	if anchor == "" {
		return pageURL
	}
	return pageURL + "#" + anchor
}

// ClampText 按字符数截断，超出部分以省略号结尾
func ClampText(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}
