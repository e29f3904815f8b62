package serializer

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"smartlauncher/internal/models"
)

// SerializationError means a file could not be read or decoded; it aborts the batch.
type SerializationError struct {
	Name string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("could not process file %s: %v", e.Name, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// File is the reconstructed, file-like result of Deserialize.
type File struct {
	Name         string
	Type         string
	LastModified time.Time
	Content      []byte
}

func (f *File) Size() int64 { return int64(len(f.Content)) }

// AsSource exposes the file through the Source interface.
func (f *File) AsSource() Source {
	return FromBytes(f.Name, f.Type, f.Content, f.LastModified)
}

// Serializer converts sources to SerializedFile and back.
type Serializer struct {
	encoding models.PayloadEncoding
}

// New returns a serializer producing the given payload encoding.
func New(encoding models.PayloadEncoding) *Serializer {
	if encoding != models.EncodingBytes {
		encoding = models.EncodingDataURL
	}
	return &Serializer{encoding: encoding}
}

// Serialize reads src fully into a transport-safe representation.
func (s *Serializer) Serialize(src Source) (models.SerializedFile, error) {
	rc, err := src.Open()
	if err != nil {
		return models.SerializedFile{}, &SerializationError{Name: src.Name(), Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return models.SerializedFile{}, &SerializationError{Name: src.Name(), Err: err}
	}

	mimeType := src.Type()
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}
	// drop parameters such as "; charset=binary"
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	out := models.SerializedFile{
		Name:         src.Name(),
		Type:         mimeType,
		Size:         int64(len(data)),
		LastModified: src.ModTime().UnixMilli(),
	}
	if s.encoding == models.EncodingBytes {
		out.Data = models.ByteArray(data)
	} else {
		out.DataURL = EncodeDataURL(mimeType, data)
	}
	return out, nil
}

// SerializeAll is sequential and all-or-nothing.
func (s *Serializer) SerializeAll(srcs []Source) ([]models.SerializedFile, error) {
	out := make([]models.SerializedFile, 0, len(srcs))
	for _, src := range srcs {
		f, err := s.Serialize(src)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Deserialize rebuilds a file with byte-identical content.
func Deserialize(f models.SerializedFile) (*File, error) {
	var (
		content []byte
		err     error
	)
	if f.DataURL != "" {
		content, err = DecodeDataURL(f.DataURL)
		if err != nil {
			return nil, &SerializationError{Name: f.Name, Err: err}
		}
	} else {
		content = append([]byte(nil), f.Data...)
	}
	if f.Size > 0 && int64(len(content)) != f.Size {
		return nil, &SerializationError{Name: f.Name, Err: fmt.Errorf("size mismatch: declared %d, got %d", f.Size, len(content))}
	}
	return &File{
		Name:         f.Name,
		Type:         f.Type,
		LastModified: time.UnixMilli(f.LastModified),
		Content:      content,
	}, nil
}

// EncodedSize sums the wire size of a serialized batch.
func EncodedSize(files []models.SerializedFile) int64 {
	var total int64
	for _, f := range files {
		total += f.PayloadSize()
	}
	return total
}

// EncodeDataURL builds data:<type>;base64,<payload>.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL accepts only base64 data URLs.
func DecodeDataURL(dataURL string) ([]byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data url without payload")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data url is not base64 encoded")
	}
	return base64.StdEncoding.DecodeString(payload)
}
