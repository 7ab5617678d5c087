package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	pages    []Page
	failures []Failure
}

func (s *memorySink) HandlePage(_ context.Context, p Page) error {
	s.pages = append(s.pages, p)
	return nil
}

func (s *memorySink) HandleFailure(_ context.Context, f Failure) error {
	s.failures = append(s.failures, f)
	return nil
}

func TestCanonicalize(t *testing.T) {
	canon, ok := Canonicalize("https://docs.example.com/guide#install")
	require.True(t, ok)
	assert.Equal(t, "https://docs.example.com/guide", canon)

	_, ok = Canonicalize("mailto:someone@example.com")
	assert.False(t, ok)
	_, ok = Canonicalize("javascript:void(0)")
	assert.False(t, ok)
	_, ok = Canonicalize("https://docs.example.com/logo.png")
	assert.False(t, ok)
	_, ok = Canonicalize("/relative/only")
	assert.False(t, ok)
}

func TestScope_PrefixAndPatterns(t *testing.T) {
	s, err := newScope(Options{
		BaseURL:         "https://docs.example.com/guide",
		ExcludePatterns: []string{`/guide/private/`},
	})
	require.NoError(t, err)

	_, ok := s.Admit("https://docs.example.com/guide/install")
	assert.True(t, ok)
	_, ok = s.Admit("https://docs.example.com/blog/post")
	assert.False(t, ok, "不同路径前缀")
	_, ok = s.Admit("https://other.example.com/guide/install")
	assert.False(t, ok, "跨域")
	_, ok = s.Admit("https://docs.example.com/guide/private/token")
	assert.False(t, ok, "命中排除正则")
}

func TestCrawler_FollowsLinksWithinScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><head><title>Home</title></head><body><h1>Home</h1><p>welcome</p><a href="/docs/a">a</a><a href="https://elsewhere.test/x">ext</a></body></html>`)
		case "/docs/a":
			fmt.Fprint(w, `<html><head><title>A</title></head><body><h2>A</h2><p>alpha body</p><a href="/docs/b#frag">b</a></body></html>`)
		case "/docs/b":
			fmt.Fprint(w, `<html><head><title>B</title></head><body><p>beta body</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{BaseURL: server.URL, MaxPages: 10}, sink)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Discovered)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)

	require.Len(t, sink.pages, 3)
	assert.Equal(t, "Home", sink.pages[0].Title)
	assert.Contains(t, sink.pages[0].ContentMarkdown, "# Home")
	assert.Contains(t, sink.pages[1].ContentMarkdown, "## A")
	assert.NotEmpty(t, sink.pages[0].ContentHash)
	// fragment 已被剥掉
	assert.Equal(t, server.URL+"/docs/b", sink.pages[2].URL)
}

func TestCrawler_SitemapSeeds(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/one</loc></url><url><loc>%s/two</loc></url></urlset>`, server.URL, server.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>%s</title></head><body><p>body of %s</p></body></html>`, r.URL.Path, r.URL.Path)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{BaseURL: server.URL, MaxPages: 10}, sink)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Succeeded)
	require.Len(t, sink.pages, 2)
	assert.Equal(t, server.URL+"/one", sink.pages[0].URL)
	assert.Equal(t, server.URL+"/two", sink.pages[1].URL)
}

func TestCrawler_SeedUrlsUnionWithSitemap(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/from-sitemap</loc></url></urlset>`, server.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>%s</title></head><body><p>body of %s</p></body></html>`, r.URL.Path, r.URL.Path)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{
		BaseURL:  server.URL,
		SeedURLs: []string{server.URL + "/hidden-entry"},
		MaxPages: 10,
	}, sink)
	require.NoError(t, err)

	// 站点地图没覆盖到的显式种子也要抓
	assert.Equal(t, 2, stats.Succeeded)
	fetched := make(map[string]bool)
	for _, p := range sink.pages {
		fetched[p.URL] = true
	}
	assert.True(t, fetched[server.URL+"/from-sitemap"])
	assert.True(t, fetched[server.URL+"/hidden-entry"])
}

func TestCrawler_MaxPagesSinglePage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Root</title></head><body><p>root</p><a href="/next">next</a></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{BaseURL: server.URL, MaxPages: 1}, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Discovered, "达到预算后不再扩展出链")
}

func TestCrawler_DiscoveredCappedByBudget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, `<html><head><title>Root</title></head><body><p>root</p><a href="/p1">1</a><a href="/p2">2</a><a href="/p3">3</a><a href="/p4">4</a></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><head><title>%s</title></head><body><p>leaf</p></body></html>`, r.URL.Path)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{BaseURL: server.URL, MaxPages: 2}, sink)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 2, stats.Discovered, "入队数不超过页面预算")
}

func TestCrawler_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `<html><head><title>Flaky</title></head><body><p>recovered</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{BaseURL: server.URL, MaxPages: 5}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCrawler_FailureRecorded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Root</title></head><body><p>ok</p><a href="/gone">gone</a></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.Client(), nil)
	c.retryBase = time.Millisecond

	sink := &memorySink{}
	stats, err := c.Run(context.Background(), Options{BaseURL: server.URL, MaxPages: 5}, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, sink.failures, 1)
	assert.Equal(t, http.StatusNotFound, sink.failures[0].Status)
}
