package main

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"smartlauncher/internal/config"
)

func TestWriteUploadCarriesFilesAndFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	content := []byte("%PDF-1.4\n%test\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeUpload(mw, []string{path}, "compress", "de"); err != nil {
		t.Fatalf("writeUpload error: %v", err)
	}

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	defer form.RemoveAll()

	files := form.File["files"]
	if len(files) != 1 || files[0].Filename != "report.pdf" {
		t.Fatalf("unexpected files %+v", files)
	}
	if got := files[0].Header.Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected sniffed pdf type, got %s", got)
	}
	f, err := files[0].Open()
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch")
	}
	if form.Value["tool"][0] != "compress" || form.Value["language"][0] != "de" {
		t.Fatalf("unexpected fields %+v", form.Value)
	}
	if len(form.Value["lastModified_report.pdf"]) != 1 {
		t.Fatalf("missing lastModified field")
	}
}

func TestWriteUploadMissingFile(t *testing.T) {
	mw := multipart.NewWriter(io.Discard)
	if err := writeUpload(mw, []string{filepath.Join(t.TempDir(), "gone.pdf")}, "", ""); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestServerURL(t *testing.T) {
	t.Setenv("SMARTLAUNCHER_URL", "")
	cfg := config.Default()
	if got := serverURL(cfg); got != "http://127.0.0.1:8790" {
		t.Fatalf("unexpected url %s", got)
	}
	cfg.BasicConfig.ServerAddress = ":9000"
	if got := serverURL(cfg); got != "http://127.0.0.1:9000" {
		t.Fatalf("unexpected url for bare port %s", got)
	}
	t.Setenv("SMARTLAUNCHER_URL", "http://launcher.local:1234")
	if got := serverURL(cfg); got != "http://launcher.local:1234" {
		t.Fatalf("env override ignored: %s", got)
	}
}
