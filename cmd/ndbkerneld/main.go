// Command ndbkerneld wires the signal fabric and the xlog recovery
// engine into one process: load configuration, replay the log from the
// last checkpoint, then serve signal traffic while the checkpointer and
// flusher role threads run in the background (spec §5, §9).
package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	gxnet "github.com/AlexStocks/goext/net"
	gxsync "github.com/dubbogo/gost/sync"
	"github.com/sirupsen/logrus"

	"github.com/ndbkernel/ndbkernel/block"
	"github.com/ndbkernel/ndbkernel/checkpoint"
	"github.com/ndbkernel/ndbkernel/conf"
	"github.com/ndbkernel/ndbkernel/datalog"
	"github.com/ndbkernel/ndbkernel/dispatcher"
	"github.com/ndbkernel/ndbkernel/logger"
	"github.com/ndbkernel/ndbkernel/recovery"
	"github.com/ndbkernel/ndbkernel/reorder"
	"github.com/ndbkernel/ndbkernel/table"
	"github.com/ndbkernel/ndbkernel/transport"
	"github.com/ndbkernel/ndbkernel/xlog"
)

func main() {
	confPath := flag.String("conf", "", "path to kernel.ini")
	blocksPath := flag.String("blocks", "", "path to blocks.toml")
	flag.Parse()

	opts := conf.NewOptions()
	if *confPath != "" {
		var err error
		opts, err = opts.Load(*confPath)
		if err != nil {
			panic(err)
		}
	}

	if err := logger.InitLogger(logger.LogConfig{LogLevel: "info"}); err != nil {
		panic(err)
	}
	log := logrus.NewEntry(logger.Logger)

	if *blocksPath != "" {
		manifest, err := conf.LoadBlockManifest(*blocksPath)
		if err != nil {
			log.Fatalf("ndbkerneld: load block manifest: %v", err)
		}
		for _, b := range manifest.Blocks {
			log.Infof("ndbkerneld: block manifest declares %s (number=%d, instances=%d)", b.Name, b.Number, b.Instances)
		}
	}

	logDir := filepath.Join(opts.DataDir, "xlog")
	registry := block.NewRegistry()
	taskPool := gxsync.NewTaskPoolSimple(0)
	defer taskPool.Close()

	d := dispatcher.New(registry, log)

	restart, _, err := checkpoint.SelectLatest(opts.DataDir)
	if err != nil {
		log.Infof("ndbkerneld: no prior checkpoint found, starting from the beginning of the log: %v", err)
	}

	from := xlog.Position{}
	if restart != nil {
		from = xlog.Position{LogID: restart.RestartLogID, Offset: restart.RestartLogOff}
		log.Infof("ndbkerneld: resuming from checkpoint %d at log %d offset %d", restart.CheckpointNo, from.LogID, from.Offset)
	}

	reorderReg := reorder.NewRegistry()
	applier := recovery.NewApplier(reorderReg, log)
	if restart != nil {
		applier.SetIndexRedoPosition(xlog.Position{LogID: restart.IndRecLogID, Offset: restart.IndRecLogOff})
	}
	maxTableID, maxXactID := replay(opts, from, reorderReg, applier, log)

	writer, err := xlog.NewWriter(logDir, from.LogID, opts.LogFileThreshold, opts.Compression, log)
	if err != nil {
		log.Fatalf("ndbkerneld: open xlog writer: %v", err)
	}

	// Every table the replay touched left a reorder.Table entry behind
	// (reorderReg.Table creates one lazily on first Push), so that
	// registry's key set is exactly the set of tables recovery adopted
	// state for.
	tablePool := table.NewPool(opts.DataDir, opts.MaxOpenTables)
	defer tablePool.Close()
	for tableID := range reorderReg.All() {
		st := applier.Table(tableID)
		if _, err := tablePool.Acquire(tableID); err != nil {
			log.Warnf("ndbkerneld: acquire recovered table %d: %v", tableID, err)
			continue
		}
		if err := tablePool.AdoptRecovered(tableID, st, st.HeadRecEOF); err != nil {
			log.Warnf("ndbkerneld: adopt recovered table %d: %v", tableID, err)
		}
	}

	extents := datalog.NewManager()

	indexFlushPos := xlog.Position{}
	if restart != nil {
		indexFlushPos = xlog.Position{LogID: restart.IndRecLogID, Offset: restart.IndRecLogOff}
	}
	src := &kernelSource{
		writer:        writer,
		extents:       extents,
		applier:       applier,
		reorderReg:    reorderReg,
		maxTableID:    maxTableID,
		maxXactID:     maxXactID,
		indexFlushPos: indexFlushPos,
		keepLogFiles:  opts.MinLogFilesToKeep,
	}
	cp := checkpoint.New(opts.DataDir, opts, src, log)
	if _, err := cp.Resume(); err != nil {
		log.Infof("ndbkerneld: checkpointer starting fresh: %v", err)
	}

	stop := make(chan struct{})

	taskPool.AddTask(func() { dispatchLoop(d, stop) })
	taskPool.AddTask(func() { flushLoop(writer, opts.FlushInterval, stop, log) })
	taskPool.AddTask(func() { checkpointLoop(cp, opts.CheckpointIdleWait, stop, log) })

	addr := gxnet.HostAddress(opts.BindAddress, opts.Port)
	srv, err := transport.ListenAndServe(addr, d)
	if err != nil {
		log.Fatalf("ndbkerneld: listen on %s: %v", addr, err)
	}
	defer srv.Close()

	log.Infof("ndbkerneld: serving on %s, data dir %s", addr, opts.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("ndbkerneld: shutting down")
	close(stop)
	writer.Close()
}

// replay scans the xlog from position from, reordering each table's
// records into op-seq order and applying them in sequence, then forces
// out whatever remains queued behind unresolved gaps via
// SyncOperations at end-of-log (spec §4.6).
func replay(opts *conf.Options, from xlog.Position, reorderReg *reorder.Registry, applier *recovery.Applier, log *logrus.Entry) (maxTableID uint32, maxXactID uint64) {
	logDir := filepath.Join(opts.DataDir, "xlog")
	reader, err := xlog.NewReader(logDir, from, log)
	if err != nil {
		log.Fatalf("ndbkerneld: open xlog reader: %v", err)
	}

	var applied int
	for {
		rec, pos, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("ndbkerneld: xlog scan: %v", err)
		}
		if rec.TableID > maxTableID {
			maxTableID = rec.TableID
		}
		if rec.XactID > maxXactID {
			maxXactID = rec.XactID
		}

		tbl := reorderReg.Table(rec.TableID)
		tbl.Push(rec, pos)
		for _, ready := range tbl.DrainInSequence() {
			if err := applier.Apply(ready.Rec, true, ready.Pos); err != nil {
				log.Warnf("ndbkerneld: recovery apply (in sequence) table %d: %v", rec.TableID, err)
			}
			applied++
		}
	}

	for _, tbl := range reorderReg.All() {
		for _, queued := range tbl.SyncOperations() {
			if err := applier.Apply(queued.Rec, false, queued.Pos); err != nil {
				log.Warnf("ndbkerneld: recovery apply (out of sequence) table %d: %v", queued.Rec.TableID, err)
			}
			applied++
		}
	}

	swept := applier.SweptTransactions()
	log.Infof("ndbkerneld: recovery applied %d records, %d transactions swept without a seen BEGIN", applied, len(swept))
	return maxTableID, maxXactID
}

func dispatchLoop(d *dispatcher.Dispatcher, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if d.Pending() > 0 {
				d.RunUntilIdle()
			}
		}
	}
}

func flushLoop(w *xlog.Writer, interval time.Duration, stop <-chan struct{}, log *logrus.Entry) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.FlushUpTo(); err != nil {
				log.Warnf("ndbkerneld: periodic flush: %v", err)
			}
		}
	}
}

func checkpointLoop(cp *checkpoint.Checkpointer, idleWait time.Duration, stop <-chan struct{}, log *logrus.Entry) {
	if idleWait <= 0 {
		idleWait = 400 * time.Millisecond
	}
	ticker := time.NewTicker(idleWait)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := cp.Run(); err != nil {
				log.Warnf("ndbkerneld: checkpoint round: %v", err)
			}
		}
	}
}

// kernelSource adapts the writer, data-log extent manager, recovery
// applier and table reorderer to checkpoint.Source.
type kernelSource struct {
	writer     *xlog.Writer
	extents    *datalog.Manager
	applier    *recovery.Applier
	reorderReg *reorder.Registry

	maxTableID    uint32
	maxXactID     uint64
	indexFlushPos xlog.Position
	keepLogFiles  int
}

func (s *kernelSource) WriteHead() xlog.Position { return s.writer.WriteHead() }
func (s *kernelSource) MaxTableID() uint32       { return s.maxTableID }
func (s *kernelSource) MaxXactID() uint64        { return s.maxXactID }

func (s *kernelSource) LiveTransactionBeginPositions() []xlog.Position {
	return s.applier.LiveBeginPositions()
}

func (s *kernelSource) QueuedOpHeadPositions() []xlog.Position {
	return s.reorderReg.QueuedHeadPositions()
}

// IndexFlushPosition reports the ind_rec_log position loaded from the
// last checkpoint at startup. Nothing currently advances it at
// runtime past that starting value, since index writes are not yet
// tracked with their own durability barrier — a later checkpoint round
// still correctly replays everything from the retracted restart
// position, it just cannot skip index work an earlier round already
// covered.
func (s *kernelSource) IndexFlushPosition() xlog.Position { return s.indexFlushPos }

func (s *kernelSource) LogicallyDeletedExtents() []uint32 {
	return s.extents.LogicallyDeletedIDs()
}

func (s *kernelSource) RetireExtents(ids []uint32) {
	s.extents.Retire(ids)
}

func (s *kernelSource) LogFilesEligibleForDeletion(restartLogID uint32) []uint32 {
	return s.writer.ExistingLogFileIDsBelow(restartLogID, s.keepLogFiles)
}

func (s *kernelSource) RetireLogFiles(ids []uint32) {
	s.writer.DeleteLogFiles(ids)
}

func (s *kernelSource) FlushDirty(pace conf.FlushPaceMode) bool {
	if _, err := s.writer.FlushUpTo(); err != nil {
		return false
	}
	return true
}
