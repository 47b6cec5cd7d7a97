// Package gcconfig hot-reloads the collector's debug trace flags
// (-XX:TraceCardTableRSet, -XX:TraceEvacVisitedCell) from a config file
// on disk, so they can be flipped without restarting the process.
package gcconfig

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// TraceFlags are the subset of heap.Config that can be safely changed
// while the collector is running: both gate diagnostic output only, so
// flipping them mid-GC changes nothing about collector correctness.
type TraceFlags struct {
	TraceCardTableRSet   bool `json:"trace_card_table_rset"`
	TraceEvacVisitedCell bool `json:"trace_evac_visited_cell"`
}

// These bits pack TraceFlags into a single word so Watcher's readers
// never observe a torn read.
const (
	bitCardTableRSet   = 1 << 0
	bitEvacVisitedCell = 1 << 1
)

// Watcher watches a JSON trace-flags file and hot-reloads it on every
// write, exposing the current value through a lock-free atomic load.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher
	bits atomic.Uint32
	erC  chan error
	done chan struct{}
}

// NewWatcher loads path once synchronously, then begins watching it for
// further writes.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path, erC: make(chan error, 1), done: make(chan struct{})}

	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(path); err != nil {
		_ = fw.Close()

		return nil, err
	}

	w.fw = fw

	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := w.reload(); err != nil {
					select {
					case w.erC <- err:
					default:
					}
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			select {
			case w.erC <- err:
			default:
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	var flags TraceFlags
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}

	var bits uint32
	if flags.TraceCardTableRSet {
		bits |= bitCardTableRSet
	}

	if flags.TraceEvacVisitedCell {
		bits |= bitEvacVisitedCell
	}

	w.bits.Store(bits)

	return nil
}

// Flags returns the most recently loaded trace flags.
func (w *Watcher) Flags() TraceFlags {
	bits := w.bits.Load()

	return TraceFlags{
		TraceCardTableRSet:   bits&bitCardTableRSet != 0,
		TraceEvacVisitedCell: bits&bitEvacVisitedCell != 0,
	}
}

// Errors returns a channel of reload errors (malformed JSON, a file
// that disappeared mid-watch).
func (w *Watcher) Errors() <-chan error { return w.erC }

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)

	return w.fw.Close()
}
