// Package bridge is the destination-side half of a transfer. It reconciles the
// storage and postmessage strategies into one Delivery for the host page.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"smartlauncher/internal/destination"
	"smartlauncher/internal/models"
	"smartlauncher/internal/serializer"
)

const (
	DefaultFallbackWait = 5 * time.Second
	integrationPoll     = 100 * time.Millisecond

	retryPrompt = "The files from the launcher are no longer available. Please send them again from the launcher."
)

// ErrRetryFromExtension is the normal negative result for an expired or
// already consumed session.
var ErrRetryFromExtension = errors.New("session expired or not found, retry from the launcher")

// Delivery is the single event the host page consumes.
type Delivery struct {
	SessionID string
	Tool      string
	Method    models.TransferMethod
	Files     []*serializer.File
}

// FileInput is a native file picker on the page.
type FileInput interface {
	Assign(files []*serializer.File) error
	DispatchChange() error
}

// Page is the host application the bridge runs in.
type Page interface {
	// HasIntegration reports whether the host's own delivery handler is installed.
	HasIntegration() bool
	Emit(d Delivery) error
	// FileInput returns nil when the page has no file input.
	FileInput() FileInput
	Prompt(message string)
}

// Daemon is the launcher side the bridge talks to.
type Daemon interface {
	GetStoredFiles(ctx context.Context, sessionID string) (*models.StoredRecord, error)
	Cleanup(ctx context.Context, sessionID string) error
	SiteReady(ctx context.Context, pageURL string) error
}

type Bridge struct {
	daemon       Daemon
	page         Page
	fallbackWait time.Duration

	monitorOnce sync.Once
	settled     chan struct{}

	mu       sync.Mutex
	fallback bool
	consumed map[string]bool
}

type Option func(*Bridge)

// WithFallbackWait bounds how long the bridge waits for the host integration.
func WithFallbackWait(d time.Duration) Option {
	return func(b *Bridge) { b.fallbackWait = d }
}

func New(daemon Daemon, page Page, opts ...Option) *Bridge {
	b := &Bridge{
		daemon:       daemon,
		page:         page,
		fallbackWait: DefaultFallbackWait,
		settled:      make(chan struct{}),
		consumed:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init inspects the page URL and, for storage transfers, retrieves and emits
// the session. It may be called on every route change; a consumed session is
// never delivered twice. A nil Delivery with a nil error means there was
// nothing to do.
func (b *Bridge) Init(ctx context.Context, pageURL string) (*Delivery, error) {
	params, err := destination.Parse(pageURL)
	if err != nil {
		if errors.Is(err, destination.ErrNotFromExtension) {
			return nil, nil
		}
		return nil, err
	}
	b.startMonitor()
	if err := b.daemon.SiteReady(ctx, pageURL); err != nil {
		log.Printf("bridge siteReady failed: %v", err)
	}

	if params.Method != models.MethodStorage || params.SessionID == "" {
		return nil, nil
	}
	if !b.claim(params.SessionID) {
		return nil, nil
	}

	record, err := b.daemon.GetStoredFiles(ctx, params.SessionID)
	if err != nil {
		if errors.Is(err, ErrRetryFromExtension) {
			b.page.Prompt(retryPrompt)
			return nil, ErrRetryFromExtension
		}
		b.release(params.SessionID)
		return nil, fmt.Errorf("get stored files: %w", err)
	}

	files, err := deserializeAll(record.Files)
	if err != nil {
		return nil, err
	}
	d := Delivery{SessionID: params.SessionID, Tool: record.Tool, Method: models.MethodStorage, Files: files}
	if err := b.emit(ctx, d); err != nil {
		return nil, err
	}
	if err := b.daemon.Cleanup(ctx, params.SessionID); err != nil {
		log.Printf("bridge cleanup %s failed: %v", params.SessionID, err)
	}
	return &d, nil
}

// Receive handles a pushed receiveFiles message and returns the ack for the
// launcher. Duplicates are acknowledged without a second delivery.
func (b *Bridge) Receive(ctx context.Context, msg models.TabMessage) models.TabAck {
	ack := models.TabAck{Action: models.ActionAck, SessionID: msg.SessionID}
	if msg.Action != models.ActionReceiveFiles || msg.Source != models.MessageSource {
		ack.Error = "unexpected message"
		return ack
	}
	b.startMonitor()
	if !b.claim(msg.SessionID) {
		ack.Success = true
		return ack
	}

	files, err := deserializeAll(msg.Files)
	if err != nil {
		b.release(msg.SessionID)
		ack.Error = err.Error()
		return ack
	}
	d := Delivery{SessionID: msg.SessionID, Tool: msg.TargetTool, Method: models.MethodPostMessage, Files: files}
	if err := b.emit(ctx, d); err != nil {
		b.release(msg.SessionID)
		ack.Error = err.Error()
		return ack
	}
	ack.Success = true
	return ack
}

// FallbackActive reports whether the native file input fallback is in use.
func (b *Bridge) FallbackActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fallback
}

func (b *Bridge) claim(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sessionID != "" && b.consumed[sessionID] {
		return false
	}
	b.consumed[sessionID] = true
	return true
}

func (b *Bridge) release(sessionID string) {
	b.mu.Lock()
	delete(b.consumed, sessionID)
	b.mu.Unlock()
}

// startMonitor waits for the host integration and installs the fallback when
// it does not show up in time.
func (b *Bridge) startMonitor() {
	b.monitorOnce.Do(func() {
		go func() {
			defer close(b.settled)
			deadline := time.NewTimer(b.fallbackWait)
			defer deadline.Stop()
			ticker := time.NewTicker(integrationPoll)
			defer ticker.Stop()
			for {
				if b.page.HasIntegration() {
					return
				}
				select {
				case <-ticker.C:
				case <-deadline.C:
					log.Printf("bridge: host integration not detected after %s, using file input fallback", b.fallbackWait)
					b.mu.Lock()
					b.fallback = true
					b.mu.Unlock()
					return
				}
			}
		}()
	})
}

func (b *Bridge) emit(ctx context.Context, d Delivery) error {
	if !b.page.HasIntegration() {
		select {
		case <-b.settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.page.HasIntegration() || !b.FallbackActive() {
		return b.page.Emit(d)
	}

	input := b.page.FileInput()
	if input == nil {
		return errors.New("no file input found on page")
	}
	if err := input.Assign(d.Files); err != nil {
		return fmt.Errorf("assign files: %w", err)
	}
	return input.DispatchChange()
}

func deserializeAll(in []models.SerializedFile) ([]*serializer.File, error) {
	out := make([]*serializer.File, 0, len(in))
	for _, f := range in {
		file, err := serializer.Deserialize(f)
		if err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	return out, nil
}
