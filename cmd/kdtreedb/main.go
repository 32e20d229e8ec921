// kdtreedb is an interactive shell over the kdtree package: attach a
// file, insert and expunge vectors, run nearest-neighbor searches, and
// trigger a merge by hand.
package main

import (
	"flag"

	"kdtreedb/kdtree"
)

func main() {
	dir := flag.String("dir", ".", "directory holding KD-tree files")
	flag.Parse()

	kdtree.StartREPL(*dir)
}
