package signals

// ContinueBTag names the reason a block self-posted a CONTINUEB signal
// to resume background work across dispatcher turns without blocking
// its handler (spec §3 "CONTINUEB"). Each block that uses CONTINUEB
// defines its own tag space; these are DIH-style tags. The checkpointer
// and recovery applier do not post CONTINUEB.
type ContinueBTag uint32

const (
	// ZPackTableIntoPages resumes serializing a table's metadata into
	// checkpoint pages across multiple dispatcher turns.
	ZPackTableIntoPages ContinueBTag = iota
	// ZStartGCP resumes the next global checkpoint round.
	ZStartGCP
	// ZCheckGCPStop polls whether the current global checkpoint round has
	// stalled past its configured timeout.
	ZCheckGCPStop
)

// ContinueB is the signal body a block posts to itself, carrying a tag
// plus whatever state the resumed step needs.
type ContinueB struct {
	Tag  ContinueBTag
	Data []uint32
}
