package launcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"smartlauncher/internal/models"
)

// pages larger than this are inspected on their first maxPageBytes only
const maxPageBytes = 5 << 20

// Detect loads pageURL and reports whether it is a PDF and which PDF links it
// carries.
func (f *Fetcher) Detect(ctx context.Context, pageURL string) (*models.PageInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect pdfs: %s", resp.Status)
	}
	// redirects move the base relative links resolve against
	return inspectPage(resp.Request.URL, resp.Header.Get("Content-Type"), io.LimitReader(resp.Body, maxPageBytes))
}

func inspectPage(base *url.URL, contentType string, body io.Reader) (*models.PageInfo, error) {
	info := &models.PageInfo{URL: base.String(), PDFLinks: []models.PDFLink{}}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/pdf" {
		info.IsPDFPage = true
		info.Title = fileName(&http.Response{}, base.String())
		return info, nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	info.IsPDFPage = strings.HasSuffix(strings.ToLower(base.Path), ".pdf") ||
		doc.Find(`embed[type="application/pdf"], object[type="application/pdf"]`).Length() > 0 ||
		strings.Contains(strings.ToLower(info.Title), ".pdf")

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (ref.Scheme != "http" && ref.Scheme != "https") {
			return
		}
		ref.Fragment = ""
		link := ref.String()
		if seen[link] {
			return
		}
		seen[link] = true
		info.PDFLinks = append(info.PDFLinks, models.PDFLink{
			URL:  link,
			Text: strings.Join(strings.Fields(a.Text()), " "),
		})
	})
	return info, nil
}
