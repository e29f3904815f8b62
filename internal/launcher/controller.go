// Package launcher turns user gestures into destination navigations or file
// transfers. Every gesture opens at most one destination tab.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"

	"smartlauncher/internal/destination"
	"smartlauncher/internal/models"
	"smartlauncher/internal/serializer"
	"smartlauncher/internal/store"
	"smartlauncher/internal/tabs"
	"smartlauncher/internal/transfer"
)

const (
	Name    = "LocalPDF Smart Launcher"
	Version = "1.0.0"

	welcomedFlag = "welcomed"
)

var Capabilities = []string{"fileTransfer", "toolSelection", "sessionManagement", "pdfDetection"}

// menuTools maps context menu entries to tools; an empty tool means the
// configured default.
var menuTools = map[string]string{
	"localpdf-open":     "",
	"localpdf-merge":    "merge",
	"localpdf-compress": "compress",
	"localpdf-split":    "split",
	"localpdf-protect":  "protect",
}

var ErrUnknownMenu = errors.New("unknown context menu item")

// LinkError rejects a source URL the destination could not fetch.
type LinkError struct {
	URL    string
	Reason string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("invalid link %q: %s", e.URL, e.Reason)
}

// Opened reports the tab a navigation gesture produced.
type Opened struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

// Transferer is the part of transfer.Manager the controller drives.
type Transferer interface {
	Transfer(ctx context.Context, files []serializer.Source, tool string, opts models.TransferOptions) (*transfer.Result, error)
	TransferSerialized(ctx context.Context, files []models.SerializedFile, tool string, opts models.TransferOptions) (*transfer.Result, error)
}

type Controller struct {
	browser     tabs.Browser
	urls        *destination.Builder
	transfers   Transferer
	store       *store.Store
	defaultTool string
	fetcher     *Fetcher

	mu    sync.Mutex
	usage map[string]int
}

func New(browser tabs.Browser, urls *destination.Builder, transfers Transferer, st *store.Store, defaultTool string, fetcher *Fetcher) *Controller {
	return &Controller{
		browser:     browser,
		urls:        urls,
		transfers:   transfers,
		store:       st,
		defaultTool: defaultTool,
		fetcher:     fetcher,
		usage:       make(map[string]int),
	}
}

// OpenTool navigates to a tool without files.
func (c *Controller) OpenTool(ctx context.Context, tool string) (*Opened, error) {
	if tool == "" {
		tool = c.defaultTool
	}
	opened, err := c.open(ctx, destination.Params{Tool: tool})
	if err != nil {
		return nil, err
	}
	c.count(tool)
	log.Printf("launcher opened tool %s in tab %s", tool, opened.TabID)
	return opened, nil
}

// TransferFiles hands dropped or picked files to the transfer manager.
func (c *Controller) TransferFiles(ctx context.Context, files []serializer.Source, tool string, opts models.TransferOptions) (*transfer.Result, error) {
	res, err := c.transfers.Transfer(ctx, files, tool, opts)
	if err == nil {
		c.count(tool)
	}
	return res, err
}

// TransferSerialized is TransferFiles for files that arrived already encoded.
func (c *Controller) TransferSerialized(ctx context.Context, files []models.SerializedFile, tool string, opts models.TransferOptions) (*transfer.Result, error) {
	res, err := c.transfers.TransferSerialized(ctx, files, tool, opts)
	if err == nil {
		c.count(tool)
	}
	return res, err
}

// OpenLink hands a remote PDF to the destination by URL. The bytes never pass
// through the session store; the page fetches them itself.
func (c *Controller) OpenLink(ctx context.Context, srcURL, tool string) (*Opened, error) {
	if err := checkLink(srcURL); err != nil {
		return nil, err
	}
	if tool == "" {
		tool = c.defaultTool
	}
	opened, err := c.open(ctx, destination.Params{Tool: tool, SourceURL: srcURL})
	if err != nil {
		return nil, err
	}
	c.count(tool)
	log.Printf("launcher opened link for %s in tab %s", tool, opened.TabID)
	return opened, nil
}

// ContextMenu handles a right-click on a PDF link.
func (c *Controller) ContextMenu(ctx context.Context, menuID, linkURL string) (*Opened, error) {
	tool, ok := menuTools[menuID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMenu, menuID)
	}
	return c.OpenLink(ctx, linkURL, tool)
}

// Welcome opens the first-run page once per store. It reports whether a tab
// was opened.
func (c *Controller) Welcome(ctx context.Context) (bool, error) {
	seen, err := c.store.Flag(ctx, welcomedFlag)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}
	if _, err := c.open(ctx, destination.Params{Welcome: true}); err != nil {
		return false, err
	}
	return true, c.store.SetFlag(ctx, welcomedFlag)
}

// FetchURL downloads a remote PDF on behalf of a page that cannot fetch it
// cross-origin.
func (c *Controller) FetchURL(ctx context.Context, srcURL string) (models.SerializedFile, error) {
	if err := checkLink(srcURL); err != nil {
		return models.SerializedFile{}, err
	}
	if c.fetcher == nil {
		return models.SerializedFile{}, errors.New("url fetching is disabled")
	}
	return c.fetcher.Fetch(ctx, srcURL)
}

// DetectPDFs inspects a web page for PDF links and tells whether the page is
// itself a PDF, feeding the link and context menu gestures.
func (c *Controller) DetectPDFs(ctx context.Context, pageURL string) (*models.PageInfo, error) {
	if err := checkLink(pageURL); err != nil {
		return nil, err
	}
	if c.fetcher == nil {
		return nil, errors.New("page inspection is disabled")
	}
	info, err := c.fetcher.Detect(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	log.Printf("launcher detected %d pdf links on %s (pdf page: %t)", len(info.PDFLinks), info.URL, info.IsPDFPage)
	return info, nil
}

// SiteReady records that a destination page came up.
func (c *Controller) SiteReady(pageURL string) string {
	log.Printf("launcher site integration ready: %s", pageURL)
	return "Smart Launcher ready"
}

// Info describes the launcher to the destination.
func (c *Controller) Info() models.ExtensionInfo {
	return models.ExtensionInfo{Name: Name, Version: Version, Capabilities: append([]string(nil), Capabilities...)}
}

// Stats returns per-tool usage counts.
func (c *Controller) Stats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.usage))
	for k, v := range c.usage {
		out[k] = v
	}
	return out
}

// MenuIDs lists the context menu entries in a stable order.
func MenuIDs() []string {
	ids := make([]string, 0, len(menuTools))
	for id := range menuTools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Controller) open(ctx context.Context, p destination.Params) (*Opened, error) {
	tab, err := c.browser.Open(ctx, c.urls.Build(p))
	if err != nil {
		return nil, fmt.Errorf("open destination tab: %w", err)
	}
	return &Opened{TabID: tab.ID, URL: tab.URL}, nil
}

func (c *Controller) count(tool string) {
	if tool == "" {
		tool = "none"
	}
	c.mu.Lock()
	c.usage[tool]++
	c.mu.Unlock()
}

func checkLink(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &LinkError{URL: raw, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &LinkError{URL: raw, Reason: "only http and https links can be opened"}
	}
	if u.Host == "" {
		return &LinkError{URL: raw, Reason: "missing host"}
	}
	return nil
}
