package launcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"smartlauncher/internal/models"
	"smartlauncher/internal/serializer"
)

const (
	FetchHTTPTimeout = 60 * time.Second
	fetchUserAgent   = "SmartLauncher-Fetch/1.0"
)

// Fetcher pulls remote PDFs for pages that cannot fetch them cross-origin.
type Fetcher struct {
	httpClient *http.Client
	serializer *serializer.Serializer
	maxBytes   int64
}

func NewFetcher(client *http.Client, ser *serializer.Serializer, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: FetchHTTPTimeout}
	}
	return &Fetcher{httpClient: client, serializer: ser, maxBytes: maxBytes}
}

func (f *Fetcher) Fetch(ctx context.Context, target string) (models.SerializedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.SerializedFile{}, err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return models.SerializedFile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.SerializedFile{}, fmt.Errorf("fetch url: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return models.SerializedFile{}, err
	}
	if int64(len(body)) > f.maxBytes {
		return models.SerializedFile{}, fmt.Errorf("fetch url: body exceeds %d bytes", f.maxBytes)
	}

	modTime := time.Now()
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		modTime = lm
	}
	mimeType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return f.serializer.Serialize(serializer.FromBytes(fileName(resp, target), mimeType, body, modTime))
}

func fileName(resp *http.Response, target string) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		return path.Base(params["filename"])
	}
	if u, err := url.Parse(target); err == nil {
		if name := path.Base(u.Path); name != "/" && name != "." && name != "" {
			return name
		}
	}
	return "document.pdf"
}
