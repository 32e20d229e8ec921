package helper

import (
	"bufio"
	"strings"
	"testing"
)

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float32
		wantErr bool
	}{
		{"simple", "1,2,3", []float32{1, 2, 3}, false},
		{"with spaces", " 1 , 2 , 3 ", []float32{1, 2, 3}, false},
		{"trailing comma skips empty field", "1,2,", []float32{1, 2}, false},
		{"negative and decimal", "-1.5,2.25", []float32{-1.5, 2.25}, false},
		{"bad component", "1,foo,3", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVector(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVector(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVector(%q): %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseVector(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseVector(%q)[%d] = %v, want %v", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadLineTrimsInput(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("  hello world  \n"))
	got := ReadLine(r, "")
	if got != "hello world" {
		t.Errorf("ReadLine() = %q, want %q", got, "hello world")
	}
}

func TestReadIntFallsBackOnBlankOrBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		def   int
		want  int
	}{
		{"blank uses default", "\n", 7, 7},
		{"unparsable uses default", "abc\n", 7, 7},
		{"valid int parses", "42\n", 7, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got := ReadInt(r, "", tt.def)
			if got != tt.want {
				t.Errorf("ReadInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	got := FormatResults(nil, nil)
	if got != "  (no results)\n" {
		t.Errorf("FormatResults(nil, nil) = %q, want the no-results message", got)
	}
}

func TestFormatResultsListsRanked(t *testing.T) {
	got := FormatResults([]uint32{5, 9}, []float64{0.5, 2})
	if !strings.Contains(got, "#1 rowid=5") || !strings.Contains(got, "#2 rowid=9") {
		t.Errorf("FormatResults() = %q, missing expected rank/rowid markers", got)
	}
}
