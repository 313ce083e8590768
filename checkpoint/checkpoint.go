package checkpoint

import (
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/ndbkernel/ndbkernel/conf"
	"github.com/ndbkernel/ndbkernel/xlog"
)

// Phase is one state of the checkpointer's state machine (spec §4.7):
// IDLE -> COLLECTING -> FLUSHING -> WRITING -> RETIRING -> IDLE.
type Phase int

const (
	Idle Phase = iota
	Collecting
	Flushing
	Writing
	Retiring
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Flushing:
		return "flushing"
	case Writing:
		return "writing"
	case Retiring:
		return "retiring"
	default:
		return "unknown"
	}
}

// Source supplies the information a checkpoint round needs to collect,
// implemented by the process wiring in cmd/ndbkerneld.
type Source interface {
	// WriteHead returns the xlog writer's current write position, the
	// upper bound the checkpoint's index covers.
	WriteHead() xlog.Position
	// MaxTableID and MaxXactID report the highest ids observed so far,
	// persisted so a later restart knows where to resume id allocation.
	MaxTableID() uint32
	MaxXactID() uint64
	// LiveTransactionBeginPositions returns the begin-log position of
	// every transaction that is LOGGED but not yet CLEANED, one of the
	// restart-position retraction inputs of spec §4.7 step 1.
	LiveTransactionBeginPositions() []xlog.Position
	// QueuedOpHeadPositions returns, for every table with an operation
	// still queued behind an unresolved gap, the log position of that
	// table's oldest queued op — the other retraction input of spec
	// §4.7 step 1.
	QueuedOpHeadPositions() []xlog.Position
	// IndexFlushPosition returns the log position up to which index
	// state is known durable, persisted as the restart record's
	// ind_rec_log position (spec §6, §4.6's index application rule).
	IndexFlushPosition() xlog.Position
	// LogicallyDeletedExtents returns extent ids awaiting the
	// following checkpoint's Retire call (spec §4.8).
	LogicallyDeletedExtents() []uint32
	// RetireExtents completes the delete lifecycle for ids collected by
	// the previous round.
	RetireExtents(ids []uint32)
	// LogFilesEligibleForDeletion returns the ids of xlog files that are
	// entirely before restartLogID and may be physically deleted,
	// keeping whatever trailing window the source configures (spec §4.7
	// step 4). This is a distinct id space from the data-log extent ids
	// LogicallyDeletedExtents reports.
	LogFilesEligibleForDeletion(restartLogID uint32) []uint32
	// RetireLogFiles physically deletes the xlog files ids collected by
	// the previous round's LogFilesEligibleForDeletion call.
	RetireLogFiles(ids []uint32)
	// FlushDirty blocks until every page dirtied before the collection
	// point is durable, respecting pace. It returns false if flushing
	// was aborted by observed writer activity under IdleOnly pacing.
	FlushDirty(pace conf.FlushPaceMode) bool
}

// Checkpointer drives one table's (or the whole instance's) checkpoint
// rounds through the IDLE -> COLLECTING -> FLUSHING -> WRITING ->
// RETIRING -> IDLE cycle (spec §4.7), grounded on
// server/innodb/engine.CheckpointManager's Start/WriteCheckpoint shape
// generalized from a single ever-growing JSON file sequence to the
// two-slot restart file rotation in codec.go.
type Checkpointer struct {
	mu   sync.Mutex
	dir  string
	opts *conf.Options
	src  Source
	log  *logrus.Entry

	phase Phase

	checkpointNo atomic.Uint32
	activeSlot   int

	pendingExtentDelete []uint32 // extent ids collected this round, retired next round
	pendingLogDelete    []uint32 // xlog file ids collected this round, retired next round
}

// New returns a Checkpointer writing restart files to dir.
func New(dir string, opts *conf.Options, src Source, log *logrus.Entry) *Checkpointer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Checkpointer{dir: dir, opts: opts, src: src, log: log, activeSlot: -1}
}

// Resume loads the latest valid restart file (if any) and positions
// the checkpointer's internal counters from it, so the next round
// continues the checkpoint_no sequence and knows which slot to
// overwrite next (the other one).
func (c *Checkpointer) Resume() (*Restart, error) {
	r, slot, err := SelectLatest(c.dir)
	if err != nil {
		c.activeSlot = 1 // nothing valid yet; first write goes to slot 0
		return nil, err
	}
	c.mu.Lock()
	c.checkpointNo.Store(r.CheckpointNo)
	c.activeSlot = slot
	c.mu.Unlock()
	return r, nil
}

// Phase reports the checkpointer's current state.
func (c *Checkpointer) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Checkpointer) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	c.log.Debugf("checkpoint: phase -> %s", p)
}

// Run executes exactly one checkpoint round end to end, returning the
// restart record it wrote. Concurrent callers are not supported; the
// caller (a single checkpointer goroutine, per spec §5) serializes
// calls to Run itself.
func (c *Checkpointer) Run() (*Restart, error) {
	c.setPhase(Collecting)
	writeHead := c.src.WriteHead()
	maxTableID := c.src.MaxTableID()
	maxXactID := c.src.MaxXactID()
	indexPos := c.src.IndexFlushPosition()
	extentsToDelete := c.src.LogicallyDeletedExtents()

	// Retract the restart position: it cannot sit past the begin
	// position of any still-live transaction, nor past the head of any
	// table's still-queued operation, or a crash after this checkpoint
	// would never replay work those positions still depend on (spec
	// §4.7 step 1).
	restartPos := writeHead
	for _, pos := range c.src.LiveTransactionBeginPositions() {
		if pos.Less(restartPos) {
			restartPos = pos
		}
	}
	for _, pos := range c.src.QueuedOpHeadPositions() {
		if pos.Less(restartPos) {
			restartPos = pos
		}
	}
	logsToDelete := c.src.LogFilesEligibleForDeletion(restartPos.LogID)

	c.setPhase(Flushing)
	if !c.src.FlushDirty(c.opts.FlushPaceMode) {
		c.setPhase(Idle)
		return nil, errAborted
	}

	c.setPhase(Writing)
	nextSlot := (c.activeSlot + 1) % 2
	if c.activeSlot < 0 {
		nextSlot = 0
	}
	checkpointNo := c.checkpointNo.Add(1)

	r := &Restart{
		CheckpointNo:  checkpointNo,
		RestartLogID:  restartPos.LogID,
		RestartLogOff: restartPos.Offset,
		MaxTableID:    maxTableID,
		MaxXactID:     maxXactID,
		IndRecLogID:   indexPos.LogID,
		IndRecLogOff:  indexPos.Offset,
		DeletedLogIDs: logsToDelete,
	}
	if err := WriteSlot(c.dir, nextSlot, r); err != nil {
		c.setPhase(Idle)
		return nil, err
	}
	c.mu.Lock()
	c.activeSlot = nextSlot
	previouslyPendingExtents := c.pendingExtentDelete
	c.pendingExtentDelete = extentsToDelete
	previouslyPendingLogs := c.pendingLogDelete
	c.pendingLogDelete = logsToDelete
	c.mu.Unlock()

	c.setPhase(Retiring)
	// The delete lists this round wrote down are not retired until the
	// *following* checkpoint confirms them (spec §4.8's two-phase
	// delete, applied the same way to both id spaces): retire what the
	// previous round recorded, not what this round just collected.
	c.src.RetireExtents(previouslyPendingExtents)
	c.src.RetireLogFiles(previouslyPendingLogs)

	c.setPhase(Idle)
	return r, nil
}

var errAborted = checkpointError("checkpoint: aborted by writer activity under idle_only pacing")

type checkpointError string

func (e checkpointError) Error() string { return string(e) }
