// Package crawler 实现站点抓取：从站点地图或种子出发，按同源同前缀
// 的规则遍历链接，产出页面的 markdown 内容。存储由调用方负责。
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/utils"
)

const (
	DefaultMaxPages     = 500
	DefaultFetchTimeout = 20 * time.Second
	fetchAttempts       = 3
	defaultUserAgent    = "docray-crawler/1.0"
)

// Page 抓取成功的单个页面
type Page struct {
	URL             string
	Title           string
	ContentMarkdown string
	ContentHash     string
	HTTPStatus      int
}

// Failure 抓取失败的记录，Status 为 0 表示网络层失败
type Failure struct {
	URL    string
	Status int
	Reason string
}

// Stats 一次抓取任务的汇总。Discovered 统计去重后进入队列的链接数。
type Stats struct {
	Discovered int `json:"discovered"`
	Fetched    int `json:"fetched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Sink 接收抓取结果。实现方负责落库，返回错误会中止整个任务。
type Sink interface {
	HandlePage(ctx context.Context, page Page) error
	HandleFailure(ctx context.Context, failure Failure) error
}

type Options struct {
	BaseURL         string
	SitemapURL      string
	SeedURLs        []string
	IncludePatterns []string
	ExcludePatterns []string
	MaxPages        int
	UserAgent       string
	FetchTimeout    time.Duration
}

type Crawler struct {
	client    *http.Client
	extractor Extractor
	userAgent string
	// 重试退避的基准间隔，测试里调小
	retryBase time.Duration
}

func New(client *http.Client, extractor Extractor) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if extractor == nil {
		extractor = NewHTMLExtractor()
	}
	return &Crawler{
		client:    client,
		extractor: extractor,
		userAgent: defaultUserAgent,
		retryBase: time.Second,
	}
}

// Run 执行抓取。种子取站点地图与 seed_urls 的并集，两者都为空时退回 base_url。
func (c *Crawler) Run(ctx context.Context, opts Options, sink Sink) (Stats, error) {
	var stats Stats

	scope, err := newScope(opts)
	if err != nil {
		return stats, err
	}

	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.UserAgent != "" {
		c.userAgent = opts.UserAgent
	}

	seeds := c.collectSeeds(ctx, opts, scope)
	if len(seeds) == 0 {
		return stats, errors.New("Crawler.Run", "no crawlable seed urls", nil)
	}

	seen := make(map[string]struct{})
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if len(seen) >= opts.MaxPages {
			break
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		queue = append(queue, s)
	}
	stats.Discovered = len(queue)

	for len(queue) > 0 && stats.Fetched < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		target := queue[0]
		queue = queue[1:]

		stats.Fetched++
		status, body, err := c.fetch(ctx, target)
		if err != nil {
			stats.Failed++
			if herr := sink.HandleFailure(ctx, Failure{URL: target, Status: status, Reason: err.Error()}); herr != nil {
				return stats, herr
			}
			continue
		}

		title, markdown, links := c.extractor.Extract(target, body)
		page := Page{
			URL:             target,
			Title:           title,
			ContentMarkdown: markdown,
			ContentHash:     utils.SHA256(markdown),
			HTTPStatus:      status,
		}
		if err := sink.HandlePage(ctx, page); err != nil {
			return stats, err
		}
		stats.Succeeded++

		// 预算已用完时不再扩展出链
		if stats.Fetched >= opts.MaxPages {
			continue
		}
		for _, link := range links {
			// 发现数也受页面预算约束，入队不超过 MaxPages
			if len(seen) >= opts.MaxPages {
				break
			}
			canon, ok := scope.Resolve(target, link)
			if !ok {
				continue
			}
			if _, dup := seen[canon]; dup {
				continue
			}
			seen[canon] = struct{}{}
			stats.Discovered++
			queue = append(queue, canon)
		}
	}

	return stats, nil
}

func (c *Crawler) collectSeeds(ctx context.Context, opts Options, scope *scope) []string {
	var raw []string

	sitemapURL := opts.SitemapURL
	if sitemapURL == "" && opts.BaseURL != "" {
		sitemapURL = strings.TrimRight(opts.BaseURL, "/") + "/sitemap.xml"
	}
	if sitemapURL != "" {
		if urls, err := c.fetchSitemap(ctx, sitemapURL); err == nil {
			raw = append(raw, urls...)
		}
	}

	// 显式种子与站点地图并集，站点地图没覆盖到的入口也要抓
	raw = append(raw, opts.SeedURLs...)
	if len(raw) == 0 && opts.BaseURL != "" {
		raw = []string{opts.BaseURL}
	}

	var seeds []string
	for _, u := range raw {
		if canon, ok := scope.Admit(u); ok {
			seeds = append(seeds, canon)
		}
	}
	return seeds
}

// fetch 带重试抓取，5xx 与网络错误重试，4xx 直接失败
func (c *Crawler) fetch(ctx context.Context, url string) (int, string, error) {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return lastStatus, "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		status, body, err := c.doFetch(ctx, url)
		lastStatus = status
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 500 {
			lastErr = fmt.Errorf("server error: %d", status)
			continue
		}
		if status >= 400 {
			return status, "", fmt.Errorf("http status %d", status)
		}
		return status, body, nil
	}
	return lastStatus, "", lastErr
}

func (c *Crawler) doFetch(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, body, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var res []*regexp.Regexp
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.New("crawler.compilePatterns", "invalid url pattern", err)
		}
		res = append(res, re)
	}
	return res, nil
}
