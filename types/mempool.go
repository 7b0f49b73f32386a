package types

import "fmt"

// RejectReason explains why a transaction was refused admission.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectInvalidSignature
	RejectInvalidNonce
	RejectBacklogExceeded
	RejectUnsupportedInstructionVersion
	RejectMalformed
	RejectDuplicateNonce
	RejectMempoolFull
	RejectRateLimited
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectInvalidSignature:
		return "InvalidSignature"
	case RejectInvalidNonce:
		return "InvalidNonce"
	case RejectBacklogExceeded:
		return "BacklogExceeded"
	case RejectUnsupportedInstructionVersion:
		return "UnsupportedInstructionVersion"
	case RejectMalformed:
		return "Malformed"
	case RejectDuplicateNonce:
		return "DuplicateNonce"
	case RejectMempoolFull:
		return "MempoolFull"
	case RejectRateLimited:
		return "RateLimited"
	default:
		return fmt.Sprintf("RejectReason(%d)", uint8(r))
	}
}

// Verdict is the admission decision for a submitted transaction.
type Verdict struct {
	Reason RejectReason `cramberry:"1"`
	// Expected and Got are set for RejectInvalidNonce.
	Expected uint64 `cramberry:"2"`
	Got      uint64 `cramberry:"3"`
	// Info is for debugging only.
	Info string `cramberry:"4"`
}

// Accepted returns true if the transaction was admitted.
func (v Verdict) Accepted() bool { return v.Reason == RejectNone }

// Reject builds a rejecting verdict.
func Reject(reason RejectReason, info string) Verdict {
	return Verdict{Reason: reason, Info: info}
}
