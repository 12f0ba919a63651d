package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// LocalScraper fetches HTML via net/http, detects blocks, and extracts
// readable text with goquery. Free, no API calls.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper() *LocalScraper {
	return &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks, and extracts page text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; FoodTruckBot/1.0)")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	title, text, err := extractText(body)
	if err != nil {
		return nil, err
	}
	if len(text) < 50 {
		return nil, eris.New("local_http: empty page")
	}

	return &Result{
		Page: model.CrawledPage{
			URL:        targetURL,
			Title:      title,
			Markdown:   text,
			StatusCode: resp.StatusCode,
		},
		Source: "local_http",
	}, nil
}

// nonContentSelectors lists elements dropped before text extraction.
const nonContentSelectors = "script, style, noscript, nav, footer, iframe, svg"

var (
	blankRunRe = regexp.MustCompile(`[ \t]+`)
	newlineRe  = regexp.MustCompile(`\n\s*\n+`)
)

// extractText returns the page title and the visible text of the body,
// one block element per line.
func extractText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	root.Find(nonContentSelectors).Remove()

	var b strings.Builder
	if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok && strings.TrimSpace(desc) != "" {
		b.WriteString(strings.TrimSpace(desc))
		b.WriteString("\n\n")
	}
	root.Find("h1, h2, h3, h4, p, li, td, address, span.price, a[href^='tel:'], a[href^='mailto:']").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(blankRunRe.ReplaceAllString(s.Text(), " "))
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			b.WriteString("- ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	})

	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = root.Text()
	}
	text = blankRunRe.ReplaceAllString(text, " ")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return title, strings.TrimSpace(text), nil
}
