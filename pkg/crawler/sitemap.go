package crawler

import (
	"context"
	"encoding/xml"
	"strings"
)

// 嵌套的 sitemapindex 只往下钻一层，防御环
const maxSitemapDepth = 2

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapURL `xml:"sitemap"`
}

// fetchSitemap 下载并解析站点地图，sitemapindex 会递归展开
func (c *Crawler) fetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	return c.fetchSitemapDepth(ctx, sitemapURL, 0)
}

func (c *Crawler) fetchSitemapDepth(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth >= maxSitemapDepth {
		return nil, nil
	}

	status, body, err := c.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	_ = status

	var set sitemapURLSet
	if err := xml.Unmarshal([]byte(body), &set); err == nil && len(set.URLs) > 0 {
		var urls []string
		for _, u := range set.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc != "" {
				urls = append(urls, loc)
			}
		}
		return urls, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal([]byte(body), &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, sm := range index.Sitemaps {
			loc := strings.TrimSpace(sm.Loc)
			if loc == "" {
				continue
			}
			nested, err := c.fetchSitemapDepth(ctx, loc, depth+1)
			if err != nil {
				continue
			}
			urls = append(urls, nested...)
		}
		return urls, nil
	}

	return nil, nil
}
