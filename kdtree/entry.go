package kdtree

import (
	"encoding/binary"
	"math"
)

// flagExpunge is the reserved high bit of the dimension-and-flags word.
const flagExpunge = 0x80000000

// entryHeaderSize is rowid(4) + dimAndFlags(4), before the float values.
const entryHeaderSize = 8

// Entry is a vector record view over arena-owned bytes: rowid, a
// dimension-and-expunged-flag word, and dim float32 values. It never
// copies or frees its backing slice; the Allocator owns that.
type Entry struct {
	data []byte
}

// entrySize returns the 8-byte-rounded size of an Entry holding dim values.
func entrySize(dim int) int {
	return (entryHeaderSize + 4*dim + 7) / 8 * 8
}

// newEntryView wraps a byte slice (at least entrySize(dim) long) as an Entry.
func newEntryView(data []byte) Entry {
	return Entry{data: data}
}

func (e Entry) valid() bool { return e.data != nil }

// NewEntry builds a standalone, non-arena-backed Entry, for query vectors
// and other transient uses that must not permanently consume allocator
// space the way AllocateEntry's arena slots do.
func NewEntry(rowid uint32, values []float32) Entry {
	e := newEntryView(make([]byte, entrySize(len(values))))
	e.init(rowid, values)
	return e
}

// RowID returns the entry's ROWID.
func (e Entry) RowID() uint32 {
	return binary.LittleEndian.Uint32(e.data[0:4])
}

// SetRowID stamps the ROWID onto a freshly allocated Entry.
func (e Entry) SetRowID(rowid uint32) {
	binary.LittleEndian.PutUint32(e.data[0:4], rowid)
}

func (e Entry) dimAndFlags() uint32 {
	return binary.LittleEndian.Uint32(e.data[4:8])
}

func (e Entry) setDimAndFlags(v uint32) {
	binary.LittleEndian.PutUint32(e.data[4:8], v)
}

// Dimension returns the number of float32 values this entry carries.
func (e Entry) Dimension() int {
	return int(e.dimAndFlags() & 0xffff)
}

// setDimension stamps the dimension on a freshly allocated Entry, leaving
// the expunge flag untouched (it is always false for a fresh entry).
func (e Entry) setDimension(dim int) {
	e.setDimAndFlags(uint32(dim) & 0xffff)
}

// IsExpunged reports whether the reserved deletion bit is set.
func (e Entry) IsExpunged() bool {
	return e.dimAndFlags()&flagExpunge != 0
}

// Expunge sets the reserved deletion bit in place; the entry's bytes
// remain reachable from whatever tree references them.
func (e Entry) Expunge() {
	e.setDimAndFlags(e.dimAndFlags() | flagExpunge)
}

// Value returns the i-th coordinate.
func (e Entry) Value(i int) float32 {
	off := entryHeaderSize + 4*i
	return math.Float32frombits(binary.LittleEndian.Uint32(e.data[off : off+4]))
}

// SetValue stamps the i-th coordinate on a freshly allocated Entry.
func (e Entry) SetValue(i int, v float32) {
	off := entryHeaderSize + 4*i
	binary.LittleEndian.PutUint32(e.data[off:off+4], math.Float32bits(v))
}

// Bytes returns the raw backing bytes, used by dump/load and by Init to
// copy a caller-supplied vector into place.
func (e Entry) Bytes() []byte {
	return e.data[:entrySize(e.Dimension())]
}

// init stamps rowid, dimension and values into a freshly allocated,
// zeroed Entry.
func (e Entry) init(rowid uint32, values []float32) {
	e.SetRowID(rowid)
	e.setDimension(len(values))
	for i, v := range values {
		e.SetValue(i, v)
	}
}

// CalcDistance returns the squared L2 distance (sum of squared
// per-dimension differences, no sqrt) between e and other.
func (e Entry) CalcDistance(other Entry) float64 {
	var d float64
	dim := e.Dimension()
	for i := 0; i < dim; i++ {
		diff := float64(e.Value(i)) - float64(other.Value(i))
		d += diff * diff
	}
	return d
}

// MaxDifferenceDimension returns the dimension with the largest squared
// difference against other; ties resolve to the lowest index since a
// strictly-greater comparison never replaces an earlier winner.
func (e Entry) MaxDifferenceDimension(other Entry) int {
	max := float32(0.0)
	maxDim := 0
	dim := e.Dimension()
	for i := 0; i < dim; i++ {
		diff := e.Value(i) - other.Value(i)
		d := diff * diff
		if d > max {
			max = d
			maxDim = i
		}
	}
	return maxDim
}
