package kdtree

import (
	"bytes"
	"testing"
)

func TestArchiverInt32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewArchiverWriter(&buf)
	values := []int32{0, 1, -1, 1 << 20, -(1 << 20)}
	for _, v := range values {
		if err := w.WriteInt32(v); err != nil {
			t.Fatalf("WriteInt32(%d): %v", v, err)
		}
	}

	r := NewArchiverReader(&buf)
	for _, want := range values {
		got, err := r.ReadInt32()
		if err != nil {
			t.Fatalf("ReadInt32: %v", err)
		}
		if got != want {
			t.Errorf("ReadInt32() = %d, want %d", got, want)
		}
	}
}

func TestArchiverBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewArchiverWriter(&buf)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := w.WriteBytes(payload); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	r := NewArchiverReader(&buf)
	got := make([]byte, len(payload))
	if err := r.ReadBytes(got); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadBytes() = %v, want %v", got, payload)
	}
}

func TestArchiverBlobRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewArchiverWriter(&buf)
	blob := []byte("a blob of arbitrary length")
	if err := w.WriteBlob(blob); err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	r := NewArchiverReader(&buf)
	got, err := r.ReadBlob()
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("ReadBlob() = %q, want %q", got, blob)
	}
}

func TestArchiverReadBlobRejectsNegativeLength(t *testing.T) {
	var buf bytes.Buffer
	w := NewArchiverWriter(&buf)
	if err := w.WriteInt32(-1); err != nil {
		t.Fatal(err)
	}
	r := NewArchiverReader(&buf)
	if _, err := r.ReadBlob(); err != ErrIndexFileCorrupted {
		t.Errorf("ReadBlob with negative length = %v, want ErrIndexFileCorrupted", err)
	}
}
