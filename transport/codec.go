package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ndbkernel/ndbkernel/signal"
)

// wireHeaderLen is the fixed part of the frame: receiver ref (4),
// sender ref (4), signal id (2), word length (1), section count (1),
// trace id (4) (spec §6 "remote wire format").
const wireHeaderLen = 4 + 4 + 2 + 1 + 1 + 4

// EncodeSignal serializes s into the remote wire format: the fixed
// header, s.Length inline words, then each section as a uint32 word
// count followed by its words.
func EncodeSignal(s *signal.Signal) ([]byte, error) {
	if s.Length > signal.MaxInlineWords {
		return nil, fmt.Errorf("transport: signal %d: %d inline words exceeds max", s.ID, s.Length)
	}

	buf := new(bytes.Buffer)
	buf.Grow(wireHeaderLen + int(s.Length)*4)

	binary.Write(buf, binary.BigEndian, uint32(s.Receiver))
	binary.Write(buf, binary.BigEndian, uint32(s.Sender))
	binary.Write(buf, binary.BigEndian, uint16(s.ID))
	binary.Write(buf, binary.BigEndian, uint8(s.Length))
	binary.Write(buf, binary.BigEndian, uint8(s.SectionCount()))
	binary.Write(buf, binary.BigEndian, s.TraceID)

	for i := 0; i < int(s.Length); i++ {
		binary.Write(buf, binary.BigEndian, s.Data[i])
	}
	for _, sec := range s.Sections {
		if sec == nil {
			break
		}
		words := sec.Words()
		binary.Write(buf, binary.BigEndian, uint32(len(words)))
		for _, w := range words {
			binary.Write(buf, binary.BigEndian, w)
		}
	}
	return buf.Bytes(), nil
}

// DecodeSignal parses the remote wire format produced by EncodeSignal.
// It returns (nil, 0, nil) if data does not yet contain a full frame,
// following the teacher's PkgHandler.Read convention of signaling
// "need more bytes" via a zero consumed-length rather than an error.
func DecodeSignal(data []byte) (*signal.Signal, int, error) {
	if len(data) < wireHeaderLen {
		return nil, 0, nil
	}

	r := bytes.NewReader(data)
	var receiver, sender uint32
	var id uint16
	var wordLen, sectionCount uint8
	var traceID uint32

	binary.Read(r, binary.BigEndian, &receiver)
	binary.Read(r, binary.BigEndian, &sender)
	binary.Read(r, binary.BigEndian, &id)
	binary.Read(r, binary.BigEndian, &wordLen)
	binary.Read(r, binary.BigEndian, &sectionCount)
	binary.Read(r, binary.BigEndian, &traceID)

	need := wireHeaderLen + int(wordLen)*4
	if len(data) < need {
		return nil, 0, nil
	}

	s := &signal.Signal{
		ID:       signal.ID(id),
		Sender:   signal.BlockRef(sender),
		Receiver: signal.BlockRef(receiver),
		TraceID:  traceID,
		Length:   wordLen,
	}
	for i := 0; i < int(wordLen); i++ {
		var w uint32
		binary.Read(r, binary.BigEndian, &w)
		s.Data[i] = w
	}

	consumed := need
	for i := 0; i < int(sectionCount); i++ {
		if len(data) < consumed+4 {
			return nil, 0, nil
		}
		wordCount := binary.BigEndian.Uint32(data[consumed : consumed+4])
		consumed += 4
		secEnd := consumed + int(wordCount)*4
		if len(data) < secEnd {
			return nil, 0, nil
		}
		words := make([]uint32, wordCount)
		for j := range words {
			words[j] = binary.BigEndian.Uint32(data[consumed+j*4 : consumed+j*4+4])
		}
		if i < signal.MaxSections {
			s.SetSection(i, signal.NewLongSection(words))
		}
		consumed = secEnd
	}

	return s, consumed, nil
}
