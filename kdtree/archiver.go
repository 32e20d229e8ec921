package kdtree

import (
	"encoding/binary"
	"io"
)

// Archiver is a thin little-endian framing layer over an io.Writer or
// io.Reader, used to dump and load a tree's pre-order byte stream (spec
// §6) without pulling in a general-purpose serialization library for
// what is, in the end, a handful of int32s and raw Entry byte slices.
type Archiver struct {
	w io.Writer
	r io.Reader
}

// NewArchiverWriter returns an Archiver that writes to w.
func NewArchiverWriter(w io.Writer) *Archiver { return &Archiver{w: w} }

// NewArchiverReader returns an Archiver that reads from r.
func NewArchiverReader(r io.Reader) *Archiver { return &Archiver{r: r} }

// WriteInt32 writes a little-endian int32.
func (a *Archiver) WriteInt32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := a.w.Write(buf[:])
	return err
}

// ReadInt32 reads a little-endian int32.
func (a *Archiver) ReadInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(a.r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteBytes writes data verbatim, preceded by nothing: callers that need
// a length-prefixed frame (rather than a fixed-size Entry record) use
// WriteBlob instead.
func (a *Archiver) WriteBytes(data []byte) error {
	_, err := a.w.Write(data)
	return err
}

// ReadBytes fills data completely from the stream.
func (a *Archiver) ReadBytes(data []byte) error {
	_, err := io.ReadFull(a.r, data)
	return err
}

// WriteBlob writes an int32 length prefix followed by data.
func (a *Archiver) WriteBlob(data []byte) error {
	if err := a.WriteInt32(int32(len(data))); err != nil {
		return err
	}
	return a.WriteBytes(data)
}

// ReadBlob reads a length-prefixed blob written by WriteBlob.
func (a *Archiver) ReadBlob() ([]byte, error) {
	n, err := a.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrIndexFileCorrupted
	}
	data := make([]byte, n)
	if err := a.ReadBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}
