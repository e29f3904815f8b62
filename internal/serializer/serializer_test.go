package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smartlauncher/internal/models"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n\x00\xff\x10trailer\n%%EOF\n")

func TestRoundTripBothEncodings(t *testing.T) {
	mod := time.UnixMilli(1714564800123)
	for _, enc := range []models.PayloadEncoding{models.EncodingDataURL, models.EncodingBytes} {
		t.Run(string(enc), func(t *testing.T) {
			s := New(enc)
			sf, err := s.Serialize(FromBytes("report.pdf", "application/pdf", samplePDF, mod))
			if err != nil {
				t.Fatalf("Serialize error: %v", err)
			}
			if sf.Encoding() != enc {
				t.Fatalf("expected %s payload, got %s", enc, sf.Encoding())
			}

			// the payload has to survive a JSON hop as well
			wire, err := json.Marshal(sf)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var back models.SerializedFile
			if err := json.Unmarshal(wire, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			f, err := Deserialize(back)
			if err != nil {
				t.Fatalf("Deserialize error: %v", err)
			}
			if !bytes.Equal(f.Content, samplePDF) {
				t.Fatalf("content mismatch")
			}
			if f.Name != "report.pdf" || f.Type != "application/pdf" {
				t.Fatalf("metadata mismatch: %s %s", f.Name, f.Type)
			}
			if !f.LastModified.Equal(mod) {
				t.Fatalf("lastModified mismatch: %v", f.LastModified)
			}
		})
	}
}

func TestByteArrayWireFormat(t *testing.T) {
	wire, err := json.Marshal(models.ByteArray{0, 37, 255})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(wire) != "[0,37,255]" {
		t.Fatalf("unexpected wire form %s", wire)
	}
	var b models.ByteArray
	if err := json.Unmarshal([]byte("[1,256]"), &b); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestSerializeSniffsMissingType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.bin")
	if err := os.WriteFile(path, samplePDF, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := FromPath(path, "")
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}
	sf, err := New(models.EncodingDataURL).Serialize(src)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if sf.Type != "application/pdf" {
		t.Fatalf("expected sniffed pdf type, got %q", sf.Type)
	}
	if sf.Name != "scan.bin" || sf.Size != int64(len(samplePDF)) {
		t.Fatalf("unexpected metadata %+v", sf)
	}
}

type brokenSource struct{ Source }

func (brokenSource) Name() string { return "broken.pdf" }
func (brokenSource) Open() (io.ReadCloser, error) {
	return nil, errors.New("permission denied")
}

func TestSerializeAllAbortsOnUnreadable(t *testing.T) {
	s := New(models.EncodingDataURL)
	good := FromBytes("ok.pdf", "application/pdf", samplePDF, time.Now())
	files, err := s.SerializeAll([]Source{good, brokenSource{good}})
	var serr *SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
	if serr.Name != "broken.pdf" {
		t.Fatalf("unexpected failing file %s", serr.Name)
	}
	if files != nil {
		t.Fatalf("expected no partial result")
	}
}

func TestDeserializeRejectsMalformedPayload(t *testing.T) {
	cases := []models.SerializedFile{
		{Name: "a.pdf", DataURL: "http://example.com/a.pdf"},
		{Name: "b.pdf", DataURL: "data:application/pdf,plain"},
		{Name: "c.pdf", DataURL: "data:application/pdf;base64,@@@"},
		{Name: "d.pdf", Size: 10, Data: models.ByteArray{1, 2}},
	}
	for _, c := range cases {
		if _, err := Deserialize(c); err == nil {
			t.Fatalf("expected error for %s", c.Name)
		}
	}
}
