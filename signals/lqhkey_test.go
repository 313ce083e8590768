package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLqhKeyReqKeyLenField(t *testing.T) {
	r := &LqhKeyReq{}
	r.SetKeyLen(42)
	assert.Equal(t, uint32(42), r.KeyLen())
}

func TestLqhKeyReqLockTypeField(t *testing.T) {
	r := &LqhKeyReq{}
	r.SetLockType(LockExclusive)
	assert.Equal(t, LockExclusive, r.LockType())
}

func TestLqhKeyReqOperationField(t *testing.T) {
	r := &LqhKeyReq{}
	r.SetOperation(OpDelete)
	assert.Equal(t, OpDelete, r.Operation())
}

func TestLqhKeyReqBitFlagsAreIndependent(t *testing.T) {
	r := &LqhKeyReq{}
	r.SetDirty(true)
	r.SetInterpreted(true)
	r.SetSimple(false)
	r.SetReturnAI(true)
	r.SetMarker(false)
	r.SetNoDisk(true)
	r.SetRowID(true)

	assert.True(t, r.Dirty())
	assert.True(t, r.Interpreted())
	assert.False(t, r.Simple())
	assert.True(t, r.ReturnAI())
	assert.False(t, r.Marker())
	assert.True(t, r.NoDisk())
	assert.True(t, r.RowID())
}

func TestLqhKeyReqFieldsDoNotClobberEachOther(t *testing.T) {
	r := &LqhKeyReq{}
	r.SetKeyLen(511)
	r.SetLockType(LockWrite)
	r.SetOperation(OpInsert)
	r.SetDirty(true)

	assert.Equal(t, uint32(511), r.KeyLen())
	assert.Equal(t, LockWrite, r.LockType())
	assert.Equal(t, OpInsert, r.Operation())
	assert.True(t, r.Dirty())
}
