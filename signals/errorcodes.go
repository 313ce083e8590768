package signals

// ErrorCode is the wire-level error code carried in a Ref signal,
// grounded on the error enumerations in LqhKey.hpp, AlterIndx.hpp, and
// TcKeyRef.hpp.
type ErrorCode uint32

const (
	ErrNone ErrorCode = 0

	// ErrNodeFailedDuringRequest is the code a synthetic REF carries when
	// the addressed instance does not exist (spec §4.3 NF_FakeErrorREF).
	ErrNodeFailedDuringRequest ErrorCode = 4025

	// AlterIndxRef error codes, grounded on AlterIndxRef::ErrorCode in
	// storage/ndb/include/kernel/signaldata/AlterIndx.hpp.
	ErrBusy               ErrorCode = 701
	ErrNotMaster          ErrorCode = 702
	ErrIndexNotFound      ErrorCode = 4243
	ErrIndexExists        ErrorCode = 4244
	ErrBadRequestType     ErrorCode = 4247
	ErrNotAnIndex         ErrorCode = 4254
	ErrBadState           ErrorCode = 4347
	ErrInconsistency      ErrorCode = 4348
	ErrInvalidIndexVersion ErrorCode = 241
)
