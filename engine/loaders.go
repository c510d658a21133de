package engine

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// maxBodyBytes caps how much of a single HTTP response is read.
const maxBodyBytes = 20 << 20

// loadFile reads a local file as text. HTML files are reduced to their text
// content; anything else must already be UTF-8.
func loadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var docs []schema.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		docs, err = documentloaders.NewHTML(f).Load(ctx)
	default:
		docs, err = documentloaders.NewText(f).Load(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", path, err)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.PageContent)
	}
	text := strings.Join(parts, "\n\n")
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, path)
	}
	return text, nil
}

// fetcher performs HTTP GETs with retry.
type fetcher struct {
	client        *http.Client
	userAgent     string
	retryAttempts int
	retryDelay    time.Duration
}

// get returns the body of a successful response. 4xx responses other than
// 429 are not retried.
func (f *fetcher) get(ctx context.Context, address string) ([]byte, error) {
	var body []byte
	err := RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
		if err != nil {
			return Permanent(err)
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{URL: address, StatusCode: resp.StatusCode}
			if statusErr.Temporary() {
				return statusErr
			}
			return Permanent(statusErr)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return err
	}, f.retryAttempts, f.retryDelay)
	return body, err
}

// page is a fetched web page reduced to markdown.
type page struct {
	Title    string
	Markdown string
}

// noiseSelector matches elements that never carry page content.
const noiseSelector = "script, style, noscript, iframe, svg, nav, footer, header, form"

// fetchPage downloads a page and converts its main content to markdown.
func (f *fetcher) fetchPage(ctx context.Context, address string) (*page, error) {
	body, err := f.get(ctx, address)
	if err != nil {
		return nil, err
	}
	return parsePage(address, body)
}

func parsePage(address string, body []byte) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", address, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(noiseSelector).Remove()

	content := doc.Find("main, article, [role=main]").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	markdown := ""
	if html, err := content.Html(); err == nil {
		converter := md.NewConverter(siteOf(address), true, nil)
		if converted, err := converter.ConvertString(html); err == nil {
			markdown = strings.TrimSpace(converted)
		}
	}
	if markdown == "" {
		markdown = strings.Join(strings.Fields(content.Text()), " ")
	}
	if title != "" {
		markdown = "# " + title + "\n\n" + markdown
	}

	return &page{Title: title, Markdown: markdown}, nil
}

// siteOf returns scheme://host of address, used to resolve relative links.
func siteOf(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// sitemapDoc matches both <urlset> and <sitemapindex> documents.
type sitemapDoc struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

// sitemapPages lists page URLs of a sitemap, following one level of
// sitemap index. The result is de-duplicated and capped at maxPages
// (zero means no cap).
func (f *fetcher) sitemapPages(ctx context.Context, address string, maxPages int) ([]string, error) {
	root, err := f.fetchSitemap(ctx, address)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var pages []string
	add := func(locs []sitemapLoc) bool {
		for _, l := range locs {
			loc := strings.TrimSpace(l.Loc)
			if loc == "" || seen[loc] {
				continue
			}
			seen[loc] = true
			pages = append(pages, loc)
			if maxPages > 0 && len(pages) >= maxPages {
				return false
			}
		}
		return true
	}

	if !add(root.URLs) {
		return pages, nil
	}
	for _, child := range root.Sitemaps {
		doc, err := f.fetchSitemap(ctx, strings.TrimSpace(child.Loc))
		if err != nil {
			return nil, fmt.Errorf("child sitemap %s: %w", child.Loc, err)
		}
		if !add(doc.URLs) {
			break
		}
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySitemap, address)
	}
	return pages, nil
}

func (f *fetcher) fetchSitemap(ctx context.Context, address string) (*sitemapDoc, error) {
	body, err := f.get(ctx, address)
	if err != nil {
		return nil, err
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", address, err)
	}
	return &doc, nil
}
