// Package signals holds the concrete signal schemas the block registry
// and dispatcher route by ID: their fixed inline layout, bit-packed
// request-info fields, and (for Req/Conf/Ref triplets) the matching
// confirm and refuse shapes.
package signals

import "github.com/ndbkernel/ndbkernel/signal"

// LqhKeyReq's inline field count (spec §3's "up to 25 inline words"
// instantiated for the record-operation request), grounded on
// LqhKeyReq::FixedSignalLength in LqhKey.hpp.
const LqhKeyReqFixedLength = 11

// LqhKeyReq requests a single-row read/insert/update/delete operation
// against a fragment, grounded on
// storage/ndb/include/kernel/signaldata/LqhKey.hpp.
type LqhKeyReq struct {
	ClientConnectPtr  uint32
	AttrLen           uint32
	HashValue         uint32
	RequestInfo       uint32
	TcBlockRef        signal.BlockRef
	TableSchemaVersion uint32
	FragmentData      uint32
	TransID1          uint32
	TransID2          uint32
	SavePointID       uint32
	ScanInfo          uint32 // union with numFiredTriggers depending on operation
}

// RequestInfo bit layout, grounded on LqhKeyReq::RequestInfo in
// LqhKey.hpp. Shift/width pairs, not an exhaustive re-declaration of
// every historical field: only the ones this kernel's recovery and
// dispatch paths actually inspect.
const (
	riKeyLenShift  = 0
	riKeyLenWidth  = 10
	riDisableFKBit = 0
	riNoTriggersBit = 1
	riLockTypeShift = 12
	riLockTypeWidth = 3
	riDirtyBit      = 16
	riInterpretedBit = 17
	riSimpleBit      = 18
	riOperationShift = 19
	riOperationWidth = 3
	riReturnAIBit    = 28
	riMarkerBit      = 29
	riNoDiskBit      = 30
	riRowIDBit       = 31
)

// LockType names LqhKeyReq's 3-bit lock-type field.
type LockType uint32

const (
	LockRead LockType = iota
	LockUpdate
	LockExclusive
	LockRefresh
	LockWrite
)

// Operation names LqhKeyReq's 3-bit operation field.
type Operation uint32

const (
	OpRead Operation = iota
	OpUpdate
	OpInsert
	OpDelete
	OpWrite
	OpReadEx
	OpRefresh
	OpUnlock
)

func (r *LqhKeyReq) KeyLen() uint32 {
	return signal.GetField(r.RequestInfo, riKeyLenShift, riKeyLenWidth)
}

func (r *LqhKeyReq) SetKeyLen(v uint32) {
	r.RequestInfo = signal.SetField(r.RequestInfo, riKeyLenShift, riKeyLenWidth, v)
}

func (r *LqhKeyReq) LockType() LockType {
	return LockType(signal.GetField(r.RequestInfo, riLockTypeShift, riLockTypeWidth))
}

func (r *LqhKeyReq) SetLockType(v LockType) {
	r.RequestInfo = signal.SetField(r.RequestInfo, riLockTypeShift, riLockTypeWidth, uint32(v))
}

func (r *LqhKeyReq) Operation() Operation {
	return Operation(signal.GetField(r.RequestInfo, riOperationShift, riOperationWidth))
}

func (r *LqhKeyReq) SetOperation(v Operation) {
	r.RequestInfo = signal.SetField(r.RequestInfo, riOperationShift, riOperationWidth, uint32(v))
}

func (r *LqhKeyReq) DisableFK() bool { return signal.GetBit(r.RequestInfo, riDisableFKBit) }
func (r *LqhKeyReq) SetDisableFK(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riDisableFKBit, v)
}

func (r *LqhKeyReq) NoTriggers() bool { return signal.GetBit(r.RequestInfo, riNoTriggersBit) }
func (r *LqhKeyReq) SetNoTriggers(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riNoTriggersBit, v)
}

func (r *LqhKeyReq) Dirty() bool { return signal.GetBit(r.RequestInfo, riDirtyBit) }
func (r *LqhKeyReq) SetDirty(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riDirtyBit, v)
}

func (r *LqhKeyReq) Interpreted() bool { return signal.GetBit(r.RequestInfo, riInterpretedBit) }
func (r *LqhKeyReq) SetInterpreted(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riInterpretedBit, v)
}

func (r *LqhKeyReq) Simple() bool { return signal.GetBit(r.RequestInfo, riSimpleBit) }
func (r *LqhKeyReq) SetSimple(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riSimpleBit, v)
}

func (r *LqhKeyReq) ReturnAI() bool { return signal.GetBit(r.RequestInfo, riReturnAIBit) }
func (r *LqhKeyReq) SetReturnAI(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riReturnAIBit, v)
}

func (r *LqhKeyReq) Marker() bool { return signal.GetBit(r.RequestInfo, riMarkerBit) }
func (r *LqhKeyReq) SetMarker(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riMarkerBit, v)
}

func (r *LqhKeyReq) NoDisk() bool { return signal.GetBit(r.RequestInfo, riNoDiskBit) }
func (r *LqhKeyReq) SetNoDisk(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riNoDiskBit, v)
}

func (r *LqhKeyReq) RowID() bool { return signal.GetBit(r.RequestInfo, riRowIDBit) }
func (r *LqhKeyReq) SetRowID(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, riRowIDBit, v)
}

// LqhKeyConf confirms a successful LqhKeyReq.
type LqhKeyConf struct {
	ConnectPtr  uint32
	OpPtr       uint32
	UserPtr     uint32
	ReadLen     uint32
	TransID1    uint32
	TransID2    uint32
	NumFiredTriggers uint32
}

// LqhKeyRef refuses a LqhKeyReq, echoing enough of the request for the
// sender to retry or report.
type LqhKeyRef struct {
	ConnectPtr  uint32
	UserPtr     uint32
	ErrorCode   uint32
	TransID1    uint32
	TransID2    uint32
}
