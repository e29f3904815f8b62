package destination

import (
	"errors"
	"net/url"
	"testing"

	"smartlauncher/internal/models"
)

func TestBuildStorageURL(t *testing.T) {
	b, err := NewBuilder("https://localpdf.online/", "en")
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	raw := b.Build(Params{Tool: "compress", SessionID: "ext_1", Method: models.MethodStorage})
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("from") != "extension" || q.Get("tool") != "compress" || q.Get("session") != "ext_1" || q.Get("method") != "storage" {
		t.Fatalf("unexpected query %s", u.RawQuery)
	}
	if u.Host != "localpdf.online" || u.Path != "/" {
		t.Fatalf("unexpected base %s", raw)
	}
}

func TestBuildEncodesSourceURLAndLanguage(t *testing.T) {
	b, err := NewBuilder("https://localpdf.online", "de")
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	src := "https://files.example.com/a b.pdf?x=1&y=2"
	raw := b.Build(Params{Tool: "split", SourceURL: src})
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SourceURL != src || p.Tool != "split" {
		t.Fatalf("round trip lost data: %+v", p)
	}
	if p.SessionID != "" || p.Method != "" {
		t.Fatalf("link hand-off must not carry a session: %+v", p)
	}
	u, _ := url.Parse(raw)
	if u.Path != "/de" {
		t.Fatalf("expected language prefix, got %s", u.Path)
	}
}

func TestParseRequiresExtensionOrigin(t *testing.T) {
	if _, err := Parse("https://localpdf.online/?session=ext_1&method=storage"); !errors.Is(err, ErrNotFromExtension) {
		t.Fatalf("expected ErrNotFromExtension, got %v", err)
	}
}

func TestNewBuilderRejectsNonHTTP(t *testing.T) {
	if _, err := NewBuilder("file:///tmp", ""); err == nil {
		t.Fatalf("expected scheme error")
	}
}
