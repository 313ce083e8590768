package xlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	rec := &Record{
		Type:    RecInsert,
		TableID: 42,
		XactID:  7,
		OpSeq:   3,
		Data:    []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	encoded, err := EncodeRecord(rec, false)
	require.NoError(t, err)

	got, consumed, err := DecodeRecord(encoded)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.TableID, got.TableID)
	assert.Equal(t, rec.XactID, got.XactID)
	assert.Equal(t, rec.OpSeq, got.OpSeq)
	assert.Equal(t, rec.Data, got.Data)
}

func TestEncodeDecodeRecordWithCompression(t *testing.T) {
	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i % 7) // compressible pattern
	}
	rec := &Record{Type: RecUpdate, TableID: 1, OpSeq: 1, Data: data}

	encoded, err := EncodeRecord(rec, true)
	require.NoError(t, err)

	got, _, err := DecodeRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestDecodeRecordPartialReturnsNilNil(t *testing.T) {
	rec := &Record{Type: RecInsert, TableID: 1, Data: []byte{1, 2, 3, 4, 5}}
	encoded, err := EncodeRecord(rec, false)
	require.NoError(t, err)

	got, consumed, err := DecodeRecord(encoded[:len(encoded)-2])
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, consumed)
}

func TestDecodeRecordEmptyInput(t *testing.T) {
	got, consumed, err := DecodeRecord(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, consumed)
}

func TestDecodeRecordChecksumMismatch(t *testing.T) {
	rec := &Record{Type: RecInsert, TableID: 1, Data: []byte{1, 2, 3, 4}}
	encoded, err := EncodeRecord(rec, false)
	require.NoError(t, err)

	corrupted := append([]byte(nil), encoded...)
	corrupted[len(corrupted)-1] ^= 0xFF

	got, _, err := DecodeRecord(corrupted)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestEncodeDecodeMultipleRecordsConcatenated(t *testing.T) {
	a := &Record{Type: RecInsert, TableID: 1, OpSeq: 0, Data: []byte{1}}
	b := &Record{Type: RecDelete, TableID: 1, OpSeq: 1, Data: []byte{2, 3}}

	encA, err := EncodeRecord(a, false)
	require.NoError(t, err)
	encB, err := EncodeRecord(b, false)
	require.NoError(t, err)

	buf := append(encA, encB...)
	gotA, consumed, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, a.Data, gotA.Data)

	gotB, _, err := DecodeRecord(buf[consumed:])
	require.NoError(t, err)
	assert.Equal(t, b.Data, gotB.Data)
}
