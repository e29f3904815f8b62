package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PayloadEncoding names the representation of SerializedFile content.
type PayloadEncoding string

const (
	EncodingDataURL PayloadEncoding = "dataurl"
	EncodingBytes   PayloadEncoding = "bytes"
)

// SerializedFile is a transport-safe file: metadata plus either a base64 data URL
// or a flat array of byte values.
type SerializedFile struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	LastModified int64     `json:"lastModified"`
	DataURL      string    `json:"dataUrl,omitempty"`
	Data         ByteArray `json:"data,omitempty"`
}

// Encoding reports which payload is populated.
func (f SerializedFile) Encoding() PayloadEncoding {
	if f.DataURL != "" {
		return EncodingDataURL
	}
	return EncodingBytes
}

// PayloadSize is the size of the serialized payload on the wire.
func (f SerializedFile) PayloadSize() int64 {
	if f.DataURL != "" {
		return int64(len(f.DataURL))
	}
	return f.Data.EncodedLen()
}

// ByteArray marshals as a JSON array of numbers instead of base64.
type ByteArray []byte

// EncodedLen is the exact length MarshalJSON produces.
func (b ByteArray) EncodedLen() int64 {
	if b == nil {
		return int64(len("null"))
	}
	n := int64(2)
	if len(b) > 1 {
		n += int64(len(b) - 1)
	}
	for _, v := range b {
		switch {
		case v >= 100:
			n += 3
		case v >= 10:
			n += 2
		default:
			n++
		}
	}
	return n
}

func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("byte array: %w", err)
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte array: value %d at %d out of range", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
