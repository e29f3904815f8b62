package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartlauncher/internal/models"
	"smartlauncher/internal/serializer"
)

type fakeDaemon struct {
	mu       sync.Mutex
	records  map[string]*models.StoredRecord
	getErr   error
	gets     int
	cleanups []string
	ready    []string
}

func (d *fakeDaemon) GetStoredFiles(_ context.Context, id string) (*models.StoredRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gets++
	if d.getErr != nil {
		return nil, d.getErr
	}
	rec, ok := d.records[id]
	if !ok {
		return nil, ErrRetryFromExtension
	}
	delete(d.records, id)
	return rec, nil
}

func (d *fakeDaemon) Cleanup(_ context.Context, id string) error {
	d.mu.Lock()
	d.cleanups = append(d.cleanups, id)
	d.mu.Unlock()
	return nil
}

func (d *fakeDaemon) SiteReady(_ context.Context, pageURL string) error {
	d.mu.Lock()
	d.ready = append(d.ready, pageURL)
	d.mu.Unlock()
	return nil
}

type fakeInput struct {
	assigned []*serializer.File
	changed  int
}

func (f *fakeInput) Assign(files []*serializer.File) error {
	f.assigned = files
	return nil
}

func (f *fakeInput) DispatchChange() error {
	f.changed++
	return nil
}

type fakePage struct {
	mu          sync.Mutex
	integration bool
	input       *fakeInput
	emitted     []Delivery
	prompts     []string
}

func (p *fakePage) HasIntegration() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.integration
}

func (p *fakePage) Emit(d Delivery) error {
	p.mu.Lock()
	p.emitted = append(p.emitted, d)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) FileInput() FileInput {
	if p.input == nil {
		return nil
	}
	return p.input
}

func (p *fakePage) Prompt(message string) {
	p.mu.Lock()
	p.prompts = append(p.prompts, message)
	p.mu.Unlock()
}

func pdfFile(name, content string) models.SerializedFile {
	return models.SerializedFile{
		Name:         name,
		Type:         "application/pdf",
		Size:         int64(len(content)),
		LastModified: 1714564800000,
		DataURL:      serializer.EncodeDataURL("application/pdf", []byte(content)),
	}
}

const storagePage = "https://localpdf.online/?from=extension&tool=compress&session=ext_1&method=storage"

func TestInitDeliversStoredSessionOnce(t *testing.T) {
	daemon := &fakeDaemon{records: map[string]*models.StoredRecord{
		"ext_1": {SessionID: "ext_1", Tool: "compress", Files: []models.SerializedFile{pdfFile("a.pdf", "%PDF-a"), pdfFile("b.pdf", "%PDF-b")}},
	}}
	page := &fakePage{integration: true}
	b := New(daemon, page)
	ctx := context.Background()

	d, err := b.Init(ctx, storagePage)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if d == nil || d.Tool != "compress" || len(d.Files) != 2 || string(d.Files[1].Content) != "%PDF-b" {
		t.Fatalf("unexpected delivery %+v", d)
	}
	if len(daemon.cleanups) != 1 || daemon.cleanups[0] != "ext_1" {
		t.Fatalf("expected cleanup of ext_1, got %v", daemon.cleanups)
	}

	// route change in a single page app
	d, err = b.Init(ctx, storagePage+"#/compress")
	if err != nil || d != nil {
		t.Fatalf("second Init should be a no-op, got %+v / %v", d, err)
	}
	if len(page.emitted) != 1 || daemon.gets != 1 {
		t.Fatalf("session delivered %d times with %d reads", len(page.emitted), daemon.gets)
	}
}

func TestInitMissingSessionPrompts(t *testing.T) {
	daemon := &fakeDaemon{records: map[string]*models.StoredRecord{}}
	page := &fakePage{integration: true}
	b := New(daemon, page)

	_, err := b.Init(context.Background(), storagePage)
	if !errors.Is(err, ErrRetryFromExtension) {
		t.Fatalf("expected ErrRetryFromExtension, got %v", err)
	}
	if len(page.prompts) != 1 || len(page.emitted) != 0 {
		t.Fatalf("expected one prompt and no delivery, got %v / %v", page.prompts, page.emitted)
	}
}

func TestInitTransportErrorCanRetry(t *testing.T) {
	daemon := &fakeDaemon{getErr: errors.New("connection refused")}
	page := &fakePage{integration: true}
	b := New(daemon, page)
	ctx := context.Background()

	if _, err := b.Init(ctx, storagePage); err == nil {
		t.Fatalf("expected error")
	}
	daemon.getErr = nil
	daemon.records = map[string]*models.StoredRecord{"ext_1": {SessionID: "ext_1", Files: []models.SerializedFile{pdfFile("a.pdf", "%PDF")}}}
	d, err := b.Init(ctx, storagePage)
	if err != nil || d == nil {
		t.Fatalf("retry should deliver, got %+v / %v", d, err)
	}
}

func TestInitIgnoresOtherPages(t *testing.T) {
	daemon := &fakeDaemon{}
	b := New(daemon, &fakePage{integration: true})
	for _, raw := range []string{
		"https://localpdf.online/compress",
		"https://localpdf.online/?from=extension&tool=merge",
		"https://localpdf.online/?from=extension&session=ext_9&method=postmessage",
	} {
		d, err := b.Init(context.Background(), raw)
		if err != nil || d != nil {
			t.Fatalf("%s: expected no-op, got %+v / %v", raw, d, err)
		}
	}
	if daemon.gets != 0 {
		t.Fatalf("no session should be requested")
	}
	if len(daemon.ready) != 2 {
		t.Fatalf("launcher pages should announce themselves, got %v", daemon.ready)
	}
}

func TestReceivePushedFiles(t *testing.T) {
	page := &fakePage{integration: true}
	b := New(&fakeDaemon{}, page)
	msg := models.TabMessage{
		Action:         models.ActionReceiveFiles,
		Source:         models.MessageSource,
		Files:          []models.SerializedFile{pdfFile("big.pdf", "%PDF-big")},
		TargetTool:     "split",
		SessionID:      "ext_2",
		TransferMethod: models.MethodPostMessage,
	}

	ack := b.Receive(context.Background(), msg)
	if !ack.Success || ack.SessionID != "ext_2" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	ack = b.Receive(context.Background(), msg)
	if !ack.Success {
		t.Fatalf("duplicate push should still be acknowledged: %+v", ack)
	}
	if len(page.emitted) != 1 || page.emitted[0].Method != models.MethodPostMessage || page.emitted[0].Tool != "split" {
		t.Fatalf("unexpected deliveries %+v", page.emitted)
	}

	msg.Source = "someone-else"
	msg.SessionID = "ext_3"
	if ack := b.Receive(context.Background(), msg); ack.Success {
		t.Fatalf("foreign message must be refused")
	}
}

func TestFallbackUsesFileInput(t *testing.T) {
	input := &fakeInput{}
	page := &fakePage{input: input}
	b := New(&fakeDaemon{}, page, WithFallbackWait(20*time.Millisecond))

	ack := b.Receive(context.Background(), models.TabMessage{
		Action:    models.ActionReceiveFiles,
		Source:    models.MessageSource,
		Files:     []models.SerializedFile{pdfFile("a.pdf", "%PDF")},
		SessionID: "ext_4",
	})
	if !ack.Success {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if !b.FallbackActive() {
		t.Fatalf("fallback should be active")
	}
	if len(input.assigned) != 1 || input.changed != 1 || len(page.emitted) != 0 {
		t.Fatalf("files should go through the file input: %+v", input)
	}
}

func TestFallbackWithoutFileInputFails(t *testing.T) {
	b := New(&fakeDaemon{}, &fakePage{}, WithFallbackWait(10*time.Millisecond))
	ack := b.Receive(context.Background(), models.TabMessage{
		Action:    models.ActionReceiveFiles,
		Source:    models.MessageSource,
		Files:     []models.SerializedFile{pdfFile("a.pdf", "%PDF")},
		SessionID: "ext_5",
	})
	if ack.Success || ack.Error == "" {
		t.Fatalf("expected failed ack, got %+v", ack)
	}
}
