package signal

import "fmt"

// MaxInlineWords is the largest inline word count a Signal may carry
// (spec §3: "up to 25 inline 32-bit words").
const MaxInlineWords = 25

// MaxSections is the largest number of long sections a Signal may carry
// (spec §3: "up to 3 long sections").
const MaxSections = 3

// ID names a signal schema the way TcKeyRef/AlterIndxReq/FailRep name
// theirs: a small stable integer a Block's handler switches on.
type ID uint16

// LongSection is a variable-length payload attached to a Signal out of
// line from its fixed inline words. A section is owned by exactly one
// Signal at a time: posting a signal transfers section ownership to the
// receiver, and a handler that forwards a section to another signal
// must not also retain it (spec §3: "Long section").
type LongSection struct {
	words []uint32
}

// NewLongSection copies words into a new LongSection.
func NewLongSection(words []uint32) *LongSection {
	cp := make([]uint32, len(words))
	copy(cp, words)
	return &LongSection{words: cp}
}

// Words returns the section's backing words. The caller must not
// mutate the returned slice; take ownership via Take if mutation or
// retention past the current handler is required.
func (s *LongSection) Words() []uint32 { return s.words }

// Len returns the number of words in the section.
func (s *LongSection) Len() int { return len(s.words) }

// Take hands ownership of the section's words to the caller, leaving
// the section empty. Used when a handler splices a section into a
// signal it is about to post onward rather than copying it.
func (s *LongSection) Take() []uint32 {
	w := s.words
	s.words = nil
	return w
}

// Signal is the fixed-layout message exchanged between blocks (spec
// §3). Its inline words carry the fixed part of a signal schema (e.g.
// LqhKeyReq's clientConnectPtr..requestInfo..transId2 fields); its
// sections carry variable-length data such as key or attribute lists.
type Signal struct {
	ID       ID
	Sender   BlockRef
	Receiver BlockRef

	// TraceID is echoed across a Req/Conf/Ref triplet and across the
	// wire so a remote peer's signals can be correlated with the local
	// post that produced them.
	TraceID uint32

	Data     [MaxInlineWords]uint32
	Length   uint8 // number of valid words in Data
	Sections [MaxSections]*LongSection
}

// NewSignal constructs a Signal with the given inline words, panicking
// if more than MaxInlineWords are supplied: a schema that needs more
// belongs in a section, not the fixed part.
func NewSignal(id ID, sender, receiver BlockRef, words ...uint32) *Signal {
	if len(words) > MaxInlineWords {
		panic(fmt.Sprintf("signal: %d inline words exceeds max %d", len(words), MaxInlineWords))
	}
	s := &Signal{ID: id, Sender: sender, Receiver: receiver}
	s.Length = uint8(copy(s.Data[:], words))
	return s
}

// Word returns inline word i, or 0 if i is beyond Length.
func (s *Signal) Word(i int) uint32 {
	if i < 0 || i >= int(s.Length) {
		return 0
	}
	return s.Data[i]
}

// SetSection attaches section to slot idx (0, 1, or 2), replacing
// whatever was there. Panics on an out-of-range slot: a schema with
// more than MaxSections is a signal design error, not a runtime one.
func (s *Signal) SetSection(idx int, section *LongSection) {
	if idx < 0 || idx >= MaxSections {
		panic(fmt.Sprintf("signal: section index %d out of range", idx))
	}
	s.Sections[idx] = section
}

// SectionCount returns how many of the three section slots are
// occupied, counting from slot 0 (sections are always packed from the
// front, matching the wire format's section-count field).
func (s *Signal) SectionCount() int {
	n := 0
	for _, sec := range s.Sections {
		if sec == nil {
			break
		}
		n++
	}
	return n
}

func (s *Signal) String() string {
	return fmt.Sprintf("signal(id=%d, %s->%s, len=%d, sections=%d)",
		s.ID, s.Sender, s.Receiver, s.Length, s.SectionCount())
}
