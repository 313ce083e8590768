package signals

// TcKeyRef is the minimal refuse shape a synthetic error reply uses
// when a signal addresses an absent block instance (spec §4.3's
// NF_FakeErrorREF), grounded on
// storage/ndb/include/kernel/signaldata/TcKeyRef.hpp.
type TcKeyRef struct {
	ConnectPtr uint32
	TransID1   uint32
	TransID2   uint32
	ErrorCode  uint32
	ErrorData  uint32
}

// NewFakeErrorRef builds the synthetic refuse for a sender whose Req
// addressed a non-zero instance that does not exist (spec §4.3). The
// registry and dispatcher do not send it; such signals are dropped.
func NewFakeErrorRef(connectPtr, transID1, transID2 uint32, errorCode ErrorCode) *TcKeyRef {
	return &TcKeyRef{
		ConnectPtr: connectPtr,
		TransID1:   transID1,
		TransID2:   transID2,
		ErrorCode:  uint32(errorCode),
	}
}
