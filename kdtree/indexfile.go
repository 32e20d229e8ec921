package kdtree

import (
	"bufio"
	"fmt"
	"os"
)

// IndexFile persists one KdTreeIndex generation to disk across two
// rotating slots (basePath + ".0" / ".1"), so a crash mid-dump never
// corrupts the slot InfoFile's flip bit still names as current.
type IndexFile struct {
	basePath string
	info     *InfoFile
}

// OpenIndexFile opens (or creates) the control record and returns a
// handle for loading and dumping basePath's generations.
func OpenIndexFile(basePath string) (*IndexFile, error) {
	info, err := OpenInfoFile(basePath + ".info")
	if err != nil {
		return nil, err
	}
	return &IndexFile{basePath: basePath, info: info}, nil
}

func (f *IndexFile) slotPath(slot int) string {
	return fmt.Sprintf("%s.%d", f.basePath, slot)
}

// Load reads the current slot's dump back into a fresh KdTreeIndex. If
// neither slot has ever been written (a brand-new file), it returns an
// empty index rather than an error.
func (f *IndexFile) Load(dimension int, cfg Config) (*KdTreeIndex, error) {
	path := f.slotPath(f.info.FlipBit())
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewKdTreeIndex(dimension, cfg), nil
	}
	if err != nil {
		return nil, fmt.Errorf("kdtree: open index dump: %w", err)
	}
	defer file.Close()

	r := NewArchiverReader(bufio.NewReader(file))
	return LoadIndex(dimension, cfg, r)
}

// Dump writes idx to the slot InfoFile does not currently point at,
// fsyncs it, then flips InfoFile over - the classic double-buffer
// crash-safety pattern also used by the small/main index dump in the
// original design.
func (f *IndexFile) Dump(idx *KdTreeIndex) error {
	nextSlot := 1 - f.info.FlipBit()
	path := f.slotPath(nextSlot)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("kdtree: create index dump: %w", err)
	}

	bw := bufio.NewWriter(file)
	w := NewArchiverWriter(bw)
	if err := idx.Dump(w); err != nil {
		file.Close()
		return fmt.Errorf("kdtree: write index dump: %w", err)
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("kdtree: flush index dump: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("kdtree: sync index dump: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	f.info.SetFlipBit(nextSlot)
	f.info.BumpGeneration()
	return nil
}

// Close releases the control record. The dump slots themselves are
// plain files and need no explicit close beyond what Load/Dump already do.
func (f *IndexFile) Close() error {
	return f.info.Close()
}
