package kdtree

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"kdtreedb/kdtree/helper"
)

// Engine is the REPL-facing demo harness: one shared worker pool and
// merge daemon, and a single attached KdTreeFile at a time (attach swaps
// it out, the way a single-table toy shell would).
type Engine struct {
	dir     string
	pool    *WorkerPool
	reserve *MergeReserve
	daemon  *MergeDaemon
	files   map[string]*KdTreeFile
	active  *KdTreeFile
}

// NewEngine returns an Engine rooted at dir, with its own worker pool and
// background merge daemon already running.
func NewEngine(dir string, cfg Config) *Engine {
	cfg = NewConfig(cfg)
	e := &Engine{
		dir:     dir,
		pool:    NewWorkerPool(cfg.KernelPoolSize),
		reserve: NewMergeReserve(),
		files:   make(map[string]*KdTreeFile),
	}
	e.daemon = NewMergeDaemon(e.reserve, cfg.MergeDaemonPollInterval, e.runMerge)
	e.daemon.Start()
	return e
}

func (e *Engine) runMerge(fileID string) error {
	f, ok := e.files[fileID]
	if !ok {
		return nil
	}
	if err := f.OpenForMerge(); err != nil {
		return err
	}
	defer f.CloseForMerge()
	return f.Merge(nil)
}

// Shutdown stops the merge daemon and the worker pool.
func (e *Engine) Shutdown() {
	e.daemon.Stop()
	e.pool.Stop()
	for _, f := range e.files {
		_ = f.Close()
	}
}

// StartREPL reads commands from stdin until "exit", mirroring the
// teacher's command-dispatch loop.
func StartREPL(dir string) {
	scanner := bufio.NewReader(os.Stdin)
	engine := NewEngine(dir, DefaultConfig)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		engine.Shutdown()
		os.Exit(0)
	}()

	helper.PrintWelcomeMessage()
	for {
		fmt.Print("> ")
		line, err := scanner.ReadString('\n')
		if err != nil {
			fmt.Println("error reading input:", err)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		command := strings.ToLower(fields[0])
		args := fields[1:]

		switch command {
		case "exit":
			engine.Shutdown()
			fmt.Println("exiting...")
			return
		case "help":
			helper.PrintWelcomeMessage()
		case "attach":
			engine.handleAttach(args)
		case "detach":
			engine.handleDetach()
		case "insert":
			engine.handleInsert(args)
		case "expunge":
			engine.handleExpunge(args)
		case "search":
			engine.handleSearch(args, TraceNormal)
		case "rvs":
			engine.handleSearch(args, TraceRicohVisualSearch)
		case "serial":
			engine.handleSearch(args, TraceSerial)
		case "merge":
			engine.handleMerge()
		case "stats":
			engine.handleStats()
		default:
			fmt.Println("unknown command:", command)
		}
	}
}

func (e *Engine) handleAttach(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: attach <file> <dimension>")
		return
	}
	dim, err := strconv.Atoi(args[1])
	if err != nil || dim <= 0 {
		fmt.Println("bad dimension:", args[1])
		return
	}
	f, ok := e.files[args[0]]
	if !ok {
		f, err = OpenKdTreeFile(e.dir, args[0], dim, DefaultConfig, e.reserve, e.pool)
		if err != nil {
			fmt.Println("attach failed:", err)
			return
		}
		e.files[args[0]] = f
	}
	if err := f.Attach(); err != nil {
		fmt.Println("attach failed:", err)
		return
	}
	e.active = f
	fmt.Println("attached", args[0])
}

func (e *Engine) handleDetach() {
	if e.active == nil {
		fmt.Println("no file attached")
		return
	}
	_ = e.active.Detach()
	e.active = nil
	fmt.Println("detached")
}

func (e *Engine) handleInsert(args []string) {
	if e.active == nil {
		fmt.Println("no file attached")
		return
	}
	values, err := helper.ParseVector(strings.Join(args, ","))
	if err != nil {
		fmt.Println(err)
		return
	}
	rowid, err := e.active.Insert(values)
	if err != nil {
		fmt.Println("insert failed:", err)
		return
	}
	fmt.Println("inserted rowid", rowid)
}

func (e *Engine) handleExpunge(args []string) {
	if e.active == nil {
		fmt.Println("no file attached")
		return
	}
	if len(args) < 1 {
		fmt.Println("usage: expunge <rowid>")
		return
	}
	rowid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Println("bad rowid:", args[0])
		return
	}
	if err := e.active.Expunge(uint32(rowid)); err != nil {
		fmt.Println("expunge failed:", err)
		return
	}
	fmt.Println("expunged", rowid)
}

func (e *Engine) handleSearch(args []string, trace TraceType) {
	if e.active == nil {
		fmt.Println("no file attached")
		return
	}
	values, err := helper.ParseVector(strings.Join(args, ","))
	if err != nil {
		fmt.Println(err)
		return
	}
	budget := -1
	if trace != TraceSerial {
		budget = 1000
	}
	results, err := e.active.NNSearch(values, trace, budget, 10)
	if err != nil {
		fmt.Println("search failed:", err)
		return
	}
	rowids := make([]uint32, len(results))
	dsq := make([]float64, len(results))
	for i, r := range results {
		rowids[i] = r.RowID
		dsq[i] = r.Distance
	}
	fmt.Print(helper.FormatResults(rowids, dsq))
}

func (e *Engine) handleMerge() {
	if e.active == nil {
		fmt.Println("no file attached")
		return
	}
	if err := e.active.OpenForMerge(); err != nil {
		fmt.Println("merge failed:", err)
		return
	}
	defer e.active.CloseForMerge()
	if err := e.active.Merge(nil); err != nil {
		fmt.Println("merge failed:", err)
		return
	}
	fmt.Println("merge complete")
}

func (e *Engine) handleStats() {
	if e.active == nil {
		fmt.Println("no file attached")
		return
	}
	s := e.active.Stats()
	fmt.Printf("small1=%d small2=%d main=%d expunged=%d pending_merges=%d arena_bytes=%d\n",
		s.Small1IndexCount, s.Small2IndexCount, s.MainIndexCount, s.ExpungedCount, s.PendingMerges, s.ArenaBytesMapped)
}
