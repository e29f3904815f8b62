package tabs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"smartlauncher/internal/models"
)

// AckBinding is the function the destination page calls with a JSON TabAck
// once it has taken a pushed batch.
const AckBinding = "smartlauncherAck"

const defaultRetention = 10 * time.Minute

// Chrome drives destination tabs in a browser controlled over the DevTools
// protocol. Navigation completion counts as loaded; delivery is a
// window.postMessage evaluated inside the page, acknowledged by the page
// through AckBinding.
type Chrome struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	retention     time.Duration

	mu   sync.Mutex
	tabs map[string]*chromeTab
}

type chromeTab struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	loaded chan struct{}
	err    error

	ackMu sync.Mutex
	acks  map[string]chan models.TabAck
}

type ChromeOption func(*Chrome)

// WithRetention sets how long a tab stays under the daemon's control before
// its target is closed.
func WithRetention(d time.Duration) ChromeOption {
	return func(c *Chrome) { c.retention = d }
}

// NewChrome starts the browser process.
func NewChrome(parent context.Context, headless bool, opts ...ChromeOption) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	c := newChrome(browserCtx, opts...)
	c.cancelAlloc = cancelAlloc
	c.cancelBrowser = cancelBrowser
	return c, nil
}

func newChrome(browserCtx context.Context, opts ...ChromeOption) *Chrome {
	c := &Chrome{
		browserCtx:    browserCtx,
		cancelAlloc:   func() {},
		cancelBrowser: func() {},
		retention:     defaultRetention,
		tabs:          make(map[string]*chromeTab),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chrome) Open(_ context.Context, rawURL string) (Tab, error) {
	id := uuid.NewString()
	tabURL, err := withTabParam(rawURL, id)
	if err != nil {
		return Tab{}, fmt.Errorf("build tab url: %w", err)
	}
	tctx, cancel := chromedp.NewContext(c.browserCtx)
	t := &chromeTab{
		id:     id,
		ctx:    tctx,
		cancel: cancel,
		loaded: make(chan struct{}),
		acks:   make(map[string]chan models.TabAck),
	}
	c.mu.Lock()
	c.tabs[id] = t
	c.mu.Unlock()

	chromedp.ListenTarget(tctx, func(ev interface{}) {
		if called, ok := ev.(*runtime.EventBindingCalled); ok && called.Name == AckBinding {
			t.deliverAck(called.Payload)
		}
	})
	go func() {
		// Navigate returns once the page fired its load event
		t.err = chromedp.Run(tctx, runtime.AddBinding(AckBinding), chromedp.Navigate(tabURL))
		close(t.loaded)
	}()
	time.AfterFunc(c.retention, func() { c.release(id) })
	return Tab{ID: id, URL: tabURL}, nil
}

func (c *Chrome) WaitLoaded(ctx context.Context, tabID string) error {
	t, ok := c.get(tabID)
	if !ok {
		return ErrUnknownTab
	}
	select {
	case <-t.loaded:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Chrome) Send(ctx context.Context, tabID string, msg models.TabMessage) (models.TabAck, error) {
	t, ok := c.get(tabID)
	if !ok {
		return models.TabAck{}, ErrUnknownTab
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return models.TabAck{}, fmt.Errorf("encode tab message: %w", err)
	}
	script := fmt.Sprintf(`(function(m){ window.postMessage(m, window.location.origin); return true; })(%s)`, payload)

	ackCh := t.expect(msg.SessionID)
	defer t.drop(msg.SessionID)

	// the evaluation runs in the tab's context; ctx only bounds our wait
	done := make(chan error, 1)
	var posted bool
	go func() {
		done <- chromedp.Run(t.ctx, chromedp.Evaluate(script, &posted))
	}()
	select {
	case err := <-done:
		if err != nil {
			return models.TabAck{}, fmt.Errorf("post message: %w", err)
		}
	case <-ctx.Done():
		return models.TabAck{}, ctx.Err()
	}

	select {
	case ack := <-ackCh:
		return ack, nil
	case <-t.ctx.Done():
		return models.TabAck{}, ErrTabClosed
	case <-ctx.Done():
		return models.TabAck{}, ctx.Err()
	}
}

// Close shuts every tab and the browser down.
func (c *Chrome) Close() {
	c.mu.Lock()
	for id, t := range c.tabs {
		t.cancel()
		delete(c.tabs, id)
	}
	c.mu.Unlock()
	c.cancelBrowser()
	c.cancelAlloc()
}

// release closes one tab's target and forgets it.
func (c *Chrome) release(id string) {
	c.mu.Lock()
	t, ok := c.tabs[id]
	delete(c.tabs, id)
	c.mu.Unlock()
	if ok {
		t.cancel()
		debugLog("chrome tab %s released", id)
	}
}

func (c *Chrome) get(id string) (*chromeTab, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tabs[id]
	return t, ok
}

func (t *chromeTab) expect(sessionID string) chan models.TabAck {
	ch := make(chan models.TabAck, 1)
	t.ackMu.Lock()
	t.acks[sessionID] = ch
	t.ackMu.Unlock()
	return ch
}

func (t *chromeTab) drop(sessionID string) {
	t.ackMu.Lock()
	delete(t.acks, sessionID)
	t.ackMu.Unlock()
}

// deliverAck runs on the event loop and must not block.
func (t *chromeTab) deliverAck(payload string) {
	var ack models.TabAck
	if err := json.Unmarshal([]byte(payload), &ack); err != nil {
		log.Printf("chrome tab %s sent a malformed ack: %v", t.id, err)
		return
	}
	t.ackMu.Lock()
	ch, ok := t.acks[ack.SessionID]
	t.ackMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ack:
	default:
	}
}
