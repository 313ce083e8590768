package signals

import "github.com/ndbkernel/ndbkernel/signal"

// AlterIndxReq requests an index be built or dropped, grounded on
// storage/ndb/include/kernel/signaldata/AlterIndx.hpp.
type AlterIndxReq struct {
	ClientRef    signal.BlockRef
	ClientData   uint32
	TransID1     uint32
	TransID2     uint32
	TransKey     uint32
	RequestInfo  uint32
	IndexID      uint32
	IndexVersion uint32
}

// rfBuildOfflineBit is AlterIndxReq::RequestInfo's "build without an
// online scan" bit, grounded on AlterIndx.hpp's RF_BUILD_OFFLINE.
const rfBuildOfflineBit = 8

func (r *AlterIndxReq) BuildOffline() bool { return signal.GetBit(r.RequestInfo, rfBuildOfflineBit) }
func (r *AlterIndxReq) SetBuildOffline(v bool) {
	r.RequestInfo = signal.SetBit(r.RequestInfo, rfBuildOfflineBit, v)
}

// AlterIndxConf confirms an AlterIndxReq.
type AlterIndxConf struct {
	SenderRef    signal.BlockRef
	SenderData   uint32
	TransID1     uint32
	TransID2     uint32
	IndexID      uint32
	IndexVersion uint32
}

// AlterIndxRef refuses an AlterIndxReq, grounded on AlterIndxRef in
// AlterIndx.hpp.
type AlterIndxRef struct {
	SenderRef    signal.BlockRef
	SenderData   uint32
	TransID1     uint32
	TransID2     uint32
	IndexID      uint32
	IndexVersion uint32
	ErrorCode    ErrorCode
	ErrorLine    uint32
	ErrorNodeID  uint32
	MasterNodeID uint32
}
