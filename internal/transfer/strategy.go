package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"smartlauncher/internal/destination"
	"smartlauncher/internal/models"
)

// batch is a validated, serialized transfer about to be delivered.
type batch struct {
	sessionID string
	tool      string
	files     []models.SerializedFile
	size      int64
	urls      *destination.Builder
}

// Strategy delivers a batch to a destination tab by one transport.
type Strategy interface {
	Method() models.TransferMethod
	// Accepts reports whether the strategy can carry a batch of encodedSize bytes.
	Accepts(encodedSize int64) bool
	Deliver(ctx context.Context, b *batch) (*Result, error)
}

type storageStrategy struct{ m *Manager }

func (s storageStrategy) Method() models.TransferMethod { return models.MethodStorage }

func (s storageStrategy) Accepts(size int64) bool { return size <= s.m.cfg.StorageCeilingBytes }

// Deliver persists first; a tab is only opened once the session is claimable.
func (s storageStrategy) Deliver(ctx context.Context, b *batch) (*Result, error) {
	m := s.m
	now := m.store.Now()
	session := &models.TransferSession{
		SessionID:      b.sessionID,
		Files:          b.files,
		Tool:           b.tool,
		TransferMethod: models.MethodStorage,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.store.TTL()),
	}
	if err := m.store.Put(ctx, session); err != nil {
		return nil, err
	}

	url := b.urls.Build(destination.Params{Tool: b.tool, SessionID: b.sessionID, Method: models.MethodStorage})
	tab, err := m.browser.Open(ctx, url)
	if err != nil {
		// nobody will ever claim it
		if delErr := m.store.Delete(context.Background(), b.sessionID); delErr != nil {
			log.Printf("transfer cleanup %s after failed open: %v", b.sessionID, delErr)
		}
		return nil, fmt.Errorf("open destination tab: %w", err)
	}

	m.scheduleCleanup(b.sessionID)
	return &Result{
		Success:        true,
		SessionID:      b.sessionID,
		TransferMethod: models.MethodStorage,
		TabID:          tab.ID,
		URL:            tab.URL,
	}, nil
}

type postMessageStrategy struct{ m *Manager }

func (p postMessageStrategy) Method() models.TransferMethod { return models.MethodPostMessage }

func (p postMessageStrategy) Accepts(size int64) bool { return size > p.m.cfg.StorageCeilingBytes }

// Deliver opens the tab first and pushes the files once it has loaded. The
// batch is never persisted.
func (p postMessageStrategy) Deliver(ctx context.Context, b *batch) (*Result, error) {
	m := p.m
	url := b.urls.Build(destination.Params{Tool: b.tool, SessionID: b.sessionID, Method: models.MethodPostMessage})
	tab, err := m.browser.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open destination tab: %w", err)
	}
	res := &Result{
		SessionID:      b.sessionID,
		TransferMethod: models.MethodPostMessage,
		TabID:          tab.ID,
		URL:            tab.URL,
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.TabReadyTimeout)
	err = m.browser.WaitLoaded(waitCtx, tab.ID)
	cancel()
	if err != nil {
		return res, m.tabError(ctx, tab.ID, "load", err)
	}

	msg := models.TabMessage{
		Action:         models.ActionReceiveFiles,
		Source:         models.MessageSource,
		Files:          b.files,
		TargetTool:     b.tool,
		SessionID:      b.sessionID,
		TransferMethod: models.MethodPostMessage,
	}
	ackCtx, cancel := context.WithTimeout(ctx, m.cfg.TabReadyTimeout)
	ack, err := m.browser.Send(ackCtx, tab.ID, msg)
	cancel()
	if err != nil {
		return res, m.tabError(ctx, tab.ID, "acknowledge", err)
	}
	if !ack.Success {
		reason := ack.Error
		if reason == "" {
			reason = "no reason given"
		}
		return res, fmt.Errorf("destination rejected files: %s", reason)
	}
	res.Success = true
	return res, nil
}

// tabError turns an expired wait into a TransferTimeoutError unless the
// caller's own context ended first.
func (m *Manager) tabError(parent context.Context, tabID, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return &TransferTimeoutError{TabID: tabID, Stage: stage, Wait: m.cfg.TabReadyTimeout}
	}
	return fmt.Errorf("tab %s did not %s: %w", tabID, stage, err)
}
