package models

import "testing"

func TestByteArrayEncodedLenMatchesJSON(t *testing.T) {
	cases := []ByteArray{
		nil,
		{},
		{7},
		{0, 9, 10, 99, 100, 255},
		[]byte("%PDF-1.7\n"),
	}
	for _, b := range cases {
		raw, err := b.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON error: %v", err)
		}
		if got := b.EncodedLen(); got != int64(len(raw)) {
			t.Fatalf("EncodedLen(%v): want %d got %d (%s)", []byte(b), len(raw), got, raw)
		}
	}
}

func TestPayloadSizePerEncoding(t *testing.T) {
	url := SerializedFile{DataURL: "data:application/pdf;base64,JVBE"}
	if got := url.PayloadSize(); got != int64(len(url.DataURL)) {
		t.Fatalf("data url size: %d", got)
	}
	arr := SerializedFile{Data: ByteArray{37, 80, 68, 70}}
	// [37,80,68,70]
	if got := arr.PayloadSize(); got != 13 {
		t.Fatalf("byte array size: want 13 got %d", got)
	}
}
