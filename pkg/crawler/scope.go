package crawler

import (
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/docray-ai/docray/pkg/errors"
)

// 明显不是文档页面的后缀，不入抓取队列
var staticExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {},
	".webp": {}, ".css": {}, ".js": {}, ".mjs": {}, ".map": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".pdf": {},
	".mp4": {}, ".mp3": {}, ".webm": {}, ".avi": {},
}

const maxBodyBytes = 8 << 20

// scope 决定一个链接是否进入抓取范围：同源、同路径前缀，
// 再过一遍 include/exclude 正则。
type scope struct {
	origin     string // scheme://host
	pathPrefix string
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
}

func newScope(opts Options) (*scope, error) {
	s := &scope{}

	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, errors.New("crawler.newScope", "invalid base url: "+opts.BaseURL, err)
		}
		s.origin = base.Scheme + "://" + base.Host
		s.pathPrefix = base.Path
		if s.pathPrefix != "" && !strings.HasSuffix(s.pathPrefix, "/") {
			s.pathPrefix += "/"
		}
	}

	var err error
	if s.include, err = compilePatterns(opts.IncludePatterns); err != nil {
		return nil, err
	}
	if s.exclude, err = compilePatterns(opts.ExcludePatterns); err != nil {
		return nil, err
	}
	return s, nil
}

// Admit 规范化绝对链接并判断是否在范围内
func (s *scope) Admit(raw string) (string, bool) {
	canon, ok := Canonicalize(raw)
	if !ok {
		return "", false
	}
	if !s.allowed(canon) {
		return "", false
	}
	return canon, true
}

// Resolve 基于当前页面解析相对链接，再走 Admit 的判断
func (s *scope) Resolve(pageURL, href string) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return s.Admit(base.ResolveReference(ref).String())
}

func (s *scope) allowed(canon string) bool {
	if s.origin != "" {
		if !strings.HasPrefix(canon, s.origin) {
			return false
		}
		if s.pathPrefix != "" && s.pathPrefix != "/" {
			u, err := url.Parse(canon)
			if err != nil {
				return false
			}
			p := u.Path
			if !strings.HasSuffix(p, "/") {
				p += "/"
			}
			if !strings.HasPrefix(p, s.pathPrefix) {
				return false
			}
		}
	}

	for _, re := range s.exclude {
		if re.MatchString(canon) {
			return false
		}
	}
	if len(s.include) > 0 {
		matched := false
		for _, re := range s.include {
			if re.MatchString(canon) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Canonicalize 规范化 URL：去掉 fragment，剔除非 http(s) 协议与静态资源
func Canonicalize(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		if _, static := staticExtensions[ext]; static {
			return "", false
		}
	}

	u.Fragment = ""
	return u.String(), true
}

func readBounded(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

