// Package helper holds the small input-parsing and display routines the
// kdtreedb REPL uses, kept separate from the engine package the way the
// teacher's own command-line helpers are.
package helper

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ParseVector turns a comma-separated list of floats into a []float32.
func ParseVector(s string) ([]float32, error) {
	fields := strings.Split(s, ",")
	out := make([]float32, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("bad vector component %q: %w", f, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

// ReadLine prompts with label and returns the trimmed line read from r.
func ReadLine(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

// ReadInt prompts with label, parsing the response as an int, falling
// back to def on a blank or unparsable line.
func ReadInt(r *bufio.Reader, label string, def int) int {
	line := ReadLine(r, label)
	if line == "" {
		return def
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return def
	}
	return v
}

// PrintWelcomeMessage prints the REPL's banner and command list.
func PrintWelcomeMessage() {
	fmt.Println("kdtreedb - nearest-neighbor vector index shell")
	fmt.Println("Available commands:")
	fmt.Println("  attach <file> <dimension>  - open or create a KD-tree file")
	fmt.Println("  detach                     - detach the current file")
	fmt.Println("  insert <v1,v2,...>         - insert a vector, prints its rowid")
	fmt.Println("  expunge <rowid>            - delete a row by rowid")
	fmt.Println("  search <v1,v2,...>         - nearest-neighbor search (normal trace)")
	fmt.Println("  rvs <v1,v2,...>            - nearest-neighbor search (Ricoh visual search trace)")
	fmt.Println("  serial <v1,v2,...>         - exhaustive nearest-neighbor search")
	fmt.Println("  merge                      - fold the small index into the main index")
	fmt.Println("  stats                      - show index counters")
	fmt.Println("  help                       - show this message")
	fmt.Println("  exit                       - quit")
}

// FormatResults renders ranked search hits for display.
func FormatResults(rowids []uint32, dsq []float64) string {
	var b strings.Builder
	for i := range rowids {
		fmt.Fprintf(&b, "  #%d rowid=%d dsq=%g\n", i+1, rowids[i], dsq[i])
	}
	if b.Len() == 0 {
		return "  (no results)\n"
	}
	return b.String()
}
