package xlog

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/pierrec/lz4/v4"

	"github.com/ndbkernel/ndbkernel/kernelerr"
)

// recordHeaderLen is the fixed part of an on-disk record: type (1),
// table id (4), xact id (8), op-seq (4), uncompressed payload length
// (4), stored (on-disk) payload length (4), checksum (4), compressed
// flag (1).
const recordHeaderLen = 1 + 4 + 8 + 4 + 4 + 4 + 4 + 1

// EncodeRecord serializes rec to its on-disk form. When compress is
// true and the payload is non-trivial, the payload is lz4-compressed
// before the checksum is computed over the stored (possibly
// compressed) bytes — checksum protects what is actually on disk, not
// the logical payload.
func EncodeRecord(rec *Record, compress bool) ([]byte, error) {
	payload := rec.Data
	compressed := false
	if compress && len(rec.Data) > 0 {
		buf := make([]byte, lz4.CompressBlockBound(len(rec.Data)))
		var c lz4.Compressor
		n, err := c.CompressBlock(rec.Data, buf)
		if err != nil {
			return nil, kernelerr.Structural(err, "xlog: lz4 compress")
		}
		if n > 0 && n < len(rec.Data) {
			payload = buf[:n]
			compressed = true
		}
	}

	checksum := xxhash.Checksum32(payload)

	out := new(bytes.Buffer)
	out.Grow(recordHeaderLen + len(payload))
	out.WriteByte(byte(rec.Type))
	binary.Write(out, binary.BigEndian, rec.TableID)
	binary.Write(out, binary.BigEndian, rec.XactID)
	binary.Write(out, binary.BigEndian, rec.OpSeq)
	binary.Write(out, binary.BigEndian, uint32(len(rec.Data)))
	binary.Write(out, binary.BigEndian, uint32(len(payload)))
	binary.Write(out, binary.BigEndian, checksum)
	if compressed {
		out.WriteByte(1)
	} else {
		out.WriteByte(0)
	}
	out.Write(payload)

	return out.Bytes(), nil
}

// DecodeRecord parses one record from the front of data. It returns
// (nil, 0, nil) if data does not yet hold a complete record, the same
// "need more bytes" convention transport.DecodeSignal uses. A checksum
// mismatch is reported as kernelerr.Structural: the caller (the
// reader's scan loop) treats it as the end of usable log, not a fatal
// error.
func DecodeRecord(data []byte) (*Record, int, error) {
	if len(data) < recordHeaderLen {
		return nil, 0, nil
	}

	typeByte := data[0]
	tableID := binary.BigEndian.Uint32(data[1:5])
	xactID := binary.BigEndian.Uint64(data[5:13])
	opSeq := binary.BigEndian.Uint32(data[13:17])
	uncompressedLen := binary.BigEndian.Uint32(data[17:21])
	storedLen := binary.BigEndian.Uint32(data[21:25])
	checksum := binary.BigEndian.Uint32(data[25:29])
	compressedByte := data[29]

	need := recordHeaderLen + int(storedLen)
	if len(data) < need {
		return nil, 0, nil
	}

	stored := data[recordHeaderLen:need]
	if xxhash.Checksum32(stored) != checksum {
		return nil, 0, kernelerr.Structural(fmt.Errorf("xlog: checksum mismatch"), "decode record")
	}

	payload := stored
	if compressedByte == 1 {
		dst := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(stored, dst)
		if err != nil {
			return nil, 0, kernelerr.Structural(err, "xlog: lz4 decompress")
		}
		payload = dst[:n]
	}

	rec := &Record{
		Type:     RecordType(typeByte),
		TableID:  tableID,
		XactID:   xactID,
		OpSeq:    opSeq,
		Data:     append([]byte(nil), payload...),
		Checksum: checksum,
	}
	return rec, need, nil
}
