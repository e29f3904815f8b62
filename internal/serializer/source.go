package serializer

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"
)

// Source is an in-memory or on-disk file handle selected by the user.
type Source interface {
	Name() string
	Type() string
	Size() int64
	ModTime() time.Time
	Open() (io.ReadCloser, error)
}

type pathSource struct {
	path    string
	mime    string
	size    int64
	modTime time.Time
}

// FromPath describes a local file. The type is left empty and sniffed on read
// unless the caller supplies one.
func FromPath(path, mimeType string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &pathSource{path: path, mime: mimeType, size: info.Size(), modTime: info.ModTime()}, nil
}

func (p *pathSource) Name() string                 { return filepath.Base(p.path) }
func (p *pathSource) Type() string                 { return p.mime }
func (p *pathSource) Size() int64                  { return p.size }
func (p *pathSource) ModTime() time.Time           { return p.modTime }
func (p *pathSource) Open() (io.ReadCloser, error) { return os.Open(p.path) }

type bytesSource struct {
	name    string
	mime    string
	data    []byte
	modTime time.Time
}

// FromBytes wraps content already in memory.
func FromBytes(name, mimeType string, data []byte, modTime time.Time) Source {
	return &bytesSource{name: name, mime: mimeType, data: data, modTime: modTime}
}

func (b *bytesSource) Name() string       { return b.name }
func (b *bytesSource) Type() string       { return b.mime }
func (b *bytesSource) Size() int64        { return int64(len(b.data)) }
func (b *bytesSource) ModTime() time.Time { return b.modTime }
func (b *bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

type multipartSource struct {
	header  *multipart.FileHeader
	modTime time.Time
}

// FromMultipart wraps an uploaded form file.
func FromMultipart(header *multipart.FileHeader, modTime time.Time) Source {
	return &multipartSource{header: header, modTime: modTime}
}

func (m *multipartSource) Name() string       { return filepath.Base(m.header.Filename) }
func (m *multipartSource) Type() string       { return m.header.Header.Get("Content-Type") }
func (m *multipartSource) Size() int64        { return m.header.Size }
func (m *multipartSource) ModTime() time.Time { return m.modTime }
func (m *multipartSource) Open() (io.ReadCloser, error) {
	return m.header.Open()
}
