package btree

import "errors"

var (
	// Error for opening an existing index whose header disagrees with the
	// caller's parameters.
	ErrBadIndexInfo = errors.New("existing index metadata does not match parameters")

	// Error for starting a scan with an operator outside the allowed sets.
	ErrBadOpcodes = errors.New("scan operators must be GT/GTE and LT/LTE")

	// Error for starting a scan whose lower bound exceeds its upper bound.
	ErrBadScanRange = errors.New("scan range lower bound exceeds upper bound")

	// Error for advancing or ending a scan when none is executing.
	ErrScanNotInitialized = errors.New("scan not initialized")

	// Signal that a scan has exhausted its matches. Callers treat this as
	// the normal end-of-stream.
	ErrIndexScanCompleted = errors.New("index scan completed")

	// Error for constructing an index over an attribute type that is not
	// implemented.
	ErrUnsupportedAttrType = errors.New("only integer attributes are supported")
)
