package kdtree

import "testing"

func TestBtreeDataFileInsertGet(t *testing.T) {
	bt := NewBtreeDataFile()
	bt.Insert(5, []byte("five"))
	bt.Insert(1, []byte("one"))
	bt.Insert(3, []byte("three"))

	tests := []struct {
		rowid  uint32
		want   string
		wantOk bool
	}{
		{5, "five", true},
		{1, "one", true},
		{3, "three", true},
		{99, "", false},
	}
	for _, tt := range tests {
		got, ok := bt.Get(tt.rowid)
		if ok != tt.wantOk {
			t.Errorf("Get(%d) ok = %v, want %v", tt.rowid, ok, tt.wantOk)
			continue
		}
		if ok && string(got) != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.rowid, got, tt.want)
		}
	}
	if bt.Count() != 3 {
		t.Errorf("Count() = %d, want 3", bt.Count())
	}
}

func TestBtreeDataFileInsertOverwrites(t *testing.T) {
	bt := NewBtreeDataFile()
	bt.Insert(1, []byte("first"))
	bt.Insert(1, []byte("second"))

	got, ok := bt.Get(1)
	if !ok || string(got) != "second" {
		t.Errorf("Get(1) = %q, %v, want %q, true", got, ok, "second")
	}
	if bt.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (overwrite must not double-count)", bt.Count())
	}
}

func TestBtreeDataFileSplitsAcrossManyInserts(t *testing.T) {
	bt := NewBtreeDataFile()
	const n = 5000
	for i := uint32(0); i < n; i++ {
		bt.Insert(i, nil)
	}
	if bt.Count() != n {
		t.Fatalf("Count() = %d, want %d", bt.Count(), n)
	}
	for _, rowid := range []uint32{0, 1, n / 2, n - 1} {
		if _, ok := bt.Get(rowid); !ok {
			t.Errorf("Get(%d) not found after %d inserts", rowid, n)
		}
	}
}

func TestBtreeDataFileInOrderSkipsExpunged(t *testing.T) {
	bt := NewBtreeDataFile()
	for i := uint32(0); i < 10; i++ {
		bt.Insert(i, nil)
	}
	bt.Expunge(3)
	bt.Expunge(7)

	var seen []uint32
	bt.InOrder(func(rowid uint32, _ []byte) {
		seen = append(seen, rowid)
	})

	if len(seen) != 8 {
		t.Fatalf("InOrder visited %d rows, want 8", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("InOrder not ascending: %v", seen)
		}
	}
	for _, expunged := range []uint32{3, 7} {
		for _, rowid := range seen {
			if rowid == expunged {
				t.Errorf("InOrder visited expunged rowid %d", expunged)
			}
		}
	}
	if bt.Count() != 8 {
		t.Errorf("Count() after 2 expunges of 10 = %d, want 8", bt.Count())
	}
}

func TestBtreeDataFileIsExpunged(t *testing.T) {
	bt := NewBtreeDataFile()
	bt.Insert(1, nil)
	if bt.IsExpunged(1) {
		t.Error("fresh insert should not be expunged")
	}
	bt.Expunge(1)
	if !bt.IsExpunged(1) {
		t.Error("IsExpunged(1) should be true after Expunge(1)")
	}
}
