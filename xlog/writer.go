package xlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ndbkernel/ndbkernel/kernelerr"
)

// Position names a byte offset within a numbered log file (spec §4.5:
// "log id, offset").
type Position struct {
	LogID  uint32
	Offset int64
}

// Less reports whether p sorts before o: lower log id first, then
// lower offset within the same log id. Used to retract a checkpoint's
// restart position to the earliest of several candidate positions
// (spec §4.7 step 1).
func (p Position) Less(o Position) bool {
	if p.LogID != o.LogID {
		return p.LogID < o.LogID
	}
	return p.Offset < o.Offset
}

// Writer appends records to a bounded sequence of numbered log files,
// grounded on server/innodb/engine.WALWriter: a buffered append-only
// file, rolled to the next numbered file once it would cross
// Threshold, with a separate write-head (bytes buffered) and
// flush-head (bytes fsynced) so FlushUpTo can report what is durable
// without forcing a sync on every Write.
type Writer struct {
	mu sync.Mutex

	dir       string
	threshold int64

	logID      uint32
	file       *os.File
	buf        *bufio.Writer
	writeHead  Position
	flushHead  Position
	compress   bool

	log *logrus.Entry
}

// NewWriter opens (or creates) the log directory dir and positions the
// writer at startLogID, starting a fresh file.
func NewWriter(dir string, startLogID uint32, threshold int64, compress bool, log *logrus.Entry) (*Writer, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, kernelerr.Fatal(err, "xlog: create log dir")
	}
	w := &Writer{
		dir:       dir,
		threshold: threshold,
		compress:  compress,
		log:       log,
	}
	if err := w.openLog(startLogID); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) logPath(id uint32) string {
	return filepath.Join(w.dir, fmt.Sprintf("log_%08d.xlog", id))
}

func (w *Writer) openLog(id uint32) error {
	path := w.logPath(id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return kernelerr.Fatal(err, "xlog: open log file")
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return kernelerr.Fatal(err, "xlog: stat log file")
	}
	w.logID = id
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.writeHead = Position{LogID: id, Offset: stat.Size()}
	w.flushHead = w.writeHead
	return nil
}

// Write appends rec, rolling to the next numbered file first if rec
// would cross Threshold (spec §4.5: "files are bounded by
// log_file_threshold"). It returns the position the record was
// written at.
func (w *Writer) Write(rec *Record) (Position, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	encoded, err := EncodeRecord(rec, w.compress)
	if err != nil {
		return Position{}, err
	}

	if w.writeHead.Offset+int64(len(encoded)) > w.threshold {
		if err := w.rotate(); err != nil {
			return Position{}, err
		}
	}

	pos := w.writeHead
	n, err := w.buf.Write(encoded)
	if err != nil {
		return Position{}, kernelerr.Transient(err, "xlog: buffer write")
	}
	w.writeHead.Offset += int64(n)
	return pos, nil
}

// rotate closes the current file (after flushing and posting a
// NEW_LOG marker is the caller's job — the writer itself only swaps
// files) and opens the next numbered one.
func (w *Writer) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return kernelerr.Transient(err, "xlog: flush before rotate")
	}
	if err := w.file.Sync(); err != nil {
		return kernelerr.Transient(err, "xlog: sync before rotate")
	}
	w.file.Close()
	w.flushHead = w.writeHead

	nextID := w.logID + 1
	w.log.Infof("xlog: rotating to log %d", nextID)
	return w.openLog(nextID)
}

// FlushUpTo flushes the writer's buffer and syncs the underlying file,
// advancing FlushHead to WriteHead. Callers that need a durability
// barrier (e.g. before replying CONF to a committed transaction) call
// this rather than relying on the periodic background flush.
func (w *Writer) FlushUpTo() (Position, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return w.flushHead, kernelerr.Transient(err, "xlog: flush")
	}
	if err := w.file.Sync(); err != nil {
		return w.flushHead, kernelerr.Transient(err, "xlog: sync")
	}
	w.flushHead = w.writeHead
	return w.flushHead, nil
}

// WriteHead returns the current write position without flushing.
func (w *Writer) WriteHead() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeHead
}

// FlushHead returns the last position known durable.
func (w *Writer) FlushHead() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushHead
}

// CurrentLogID returns the id of the file currently being written.
func (w *Writer) CurrentLogID() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logID
}

// Close flushes and closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return kernelerr.Transient(err, "xlog: flush on close")
	}
	return w.file.Close()
}

// ExistingLogFileIDsBelow lists the ids of log files under dir with id
// < upTo, sorted ascending, holding back the keep most recent of them
// (spec §4.7 step 4: "delete log files up to restart_log_id - 1,
// keeping min_log_files_to_keep"). Filenames that don't parse as
// log_%08d.xlog are ignored.
func (w *Writer) ExistingLogFileIDsBelow(upTo uint32, keep int) []uint32 {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil
	}
	var ids []uint32
	for _, e := range entries {
		var id uint32
		if _, err := fmt.Sscanf(e.Name(), "log_%08d.xlog", &id); err != nil {
			continue
		}
		if id < upTo {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if keep > 0 && len(ids) > keep {
		ids = ids[:len(ids)-keep]
	} else if keep > 0 {
		return nil
	}
	return ids
}

// DeleteLogFiles physically removes the numbered log files ids (spec
// §4.7 step 4). A file already gone is not an error.
func (w *Writer) DeleteLogFiles(ids []uint32) {
	for _, id := range ids {
		if err := os.Remove(w.logPath(id)); err != nil && !os.IsNotExist(err) {
			w.log.Warnf("xlog: delete retired log file %d: %v", id, err)
		}
	}
}
