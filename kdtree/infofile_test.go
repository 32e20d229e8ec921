package kdtree

import (
	"path/filepath"
	"testing"
)

func TestInfoFileFlipBitPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.info")

	inf, err := OpenInfoFile(path)
	if err != nil {
		t.Fatalf("OpenInfoFile: %v", err)
	}
	if inf.FlipBit() != 0 {
		t.Errorf("fresh InfoFile FlipBit() = %d, want 0", inf.FlipBit())
	}
	inf.SetFlipBit(1)
	inf.BumpGeneration()
	if err := inf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenInfoFile(path)
	if err != nil {
		t.Fatalf("reopen OpenInfoFile: %v", err)
	}
	defer reopened.Close()
	if reopened.FlipBit() != 1 {
		t.Errorf("FlipBit() after reopen = %d, want 1", reopened.FlipBit())
	}
	if reopened.Generation() != 1 {
		t.Errorf("Generation() after reopen = %d, want 1", reopened.Generation())
	}
}

func TestInfoFileMergeInProgress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.info")
	inf, err := OpenInfoFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer inf.Close()

	if inf.MergeInProgress() {
		t.Fatal("fresh InfoFile should not report a merge in progress")
	}
	inf.SetMergeInProgress(true)
	if !inf.MergeInProgress() {
		t.Error("MergeInProgress() should be true after SetMergeInProgress(true)")
	}
	inf.SetMergeInProgress(false)
	if inf.MergeInProgress() {
		t.Error("MergeInProgress() should be false after SetMergeInProgress(false)")
	}
}
