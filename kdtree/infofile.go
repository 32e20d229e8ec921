package kdtree

import (
	"encoding/binary"
	"fmt"
	"os"

	"kdtreedb/mmapio"
)

// infoFileSize is the fixed record size described in spec §6: a flip
// bit, a merge-in-progress bit, and padding out to an 8-byte boundary.
const infoFileSize = 8

// InfoFile is the tiny fixed-layout control record every KdTreeFile
// keeps alongside its two index dumps: which of the two on-disk dump
// slots ("generations A/B") is current, and whether a merge was
// interrupted mid-flight and must be resumed or rolled back on open.
type InfoFile struct {
	path string
	file *os.File
	data []byte
}

// OpenInfoFile creates or reopens the control record at path.
func OpenInfoFile(path string) (*InfoFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("kdtree: open info file: %w", err)
	}
	if fi, err := f.Stat(); err != nil || fi.Size() < infoFileSize {
		if err := f.Truncate(infoFileSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("kdtree: truncate info file: %w", err)
		}
	}
	data, err := mmapio.Mmap(f.Fd(), 0, infoFileSize, mmapio.ProtRead|mmapio.ProtWrite, mmapio.MapShared)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("kdtree: mmap info file: %w", err)
	}
	return &InfoFile{path: path, file: f, data: data}, nil
}

// FlipBit reports which dump slot (0 or 1) is current.
func (inf *InfoFile) FlipBit() int {
	return int(inf.data[0])
}

// SetFlipBit records that slot is now current. Callers write the new
// dump to the other slot and only call SetFlipBit after it is durable,
// so a crash mid-dump leaves FlipBit still pointing at the old, intact
// slot.
func (inf *InfoFile) SetFlipBit(slot int) {
	inf.data[0] = byte(slot)
}

// MergeInProgress reports whether a merge was left unfinished.
func (inf *InfoFile) MergeInProgress() bool {
	return inf.data[1] != 0
}

// SetMergeInProgress records merge state. KdTreeFile.OpenForMerge sets it
// on the merge-side small index's control record and CloseForMerge
// clears it, whether or not the Merge in between succeeded.
func (inf *InfoFile) SetMergeInProgress(v bool) {
	if v {
		inf.data[1] = 1
	} else {
		inf.data[1] = 0
	}
}

// Generation returns a monotonic counter stored in the padding, bumped
// by BumpGeneration (which IndexFile.Dump calls once per dump); used to
// tell two dump slots apart when both look structurally valid after a
// crash.
func (inf *InfoFile) Generation() uint32 {
	return binary.LittleEndian.Uint32(inf.data[4:8])
}

// BumpGeneration increments the stored generation counter.
func (inf *InfoFile) BumpGeneration() {
	binary.LittleEndian.PutUint32(inf.data[4:8], inf.Generation()+1)
}

// Close unmaps and closes the control record.
func (inf *InfoFile) Close() error {
	if inf.data != nil {
		_ = mmapio.Munmap(inf.data)
		inf.data = nil
	}
	return inf.file.Close()
}
