// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stf

import "fmt"

// Code is the opaque discriminant surfaced to the block consumer.
type Code string

const (
	CodeBadHeader    Code = "bad_header"
	CodeBadSeal      Code = "bad_seal"
	CodeBadExtrinsic Code = "bad_extrinsic"
	CodeBadGuarantee Code = "bad_guarantee"
	CodeBadAssurance Code = "bad_assurance"
	CodeBadDispute   Code = "bad_dispute"

	CodeBadTicketOrder   Code = "bad_ticket_order"
	CodeBadTicketAttempt Code = "bad_ticket_attempt"
	CodeBadTicketProof   Code = "bad_ticket_proof"
	CodeDuplicateTicket  Code = "duplicate_ticket"
	CodeUnexpectedTicket Code = "unexpected_ticket"

	CodePreimagesNotSorted Code = "preimages_not_sorted_unique"
	CodeServiceNotFound    Code = "service_not_found"
	CodePreimageUnneeded   Code = "preimage_unneeded"

	CodePVMPanic Code = "pvm_panic"
	CodePVMOog   Code = "pvm_oog"
	CodePVMFault Code = "pvm_fault"

	CodeStateBackend Code = "state_backend_error"
)

// TransitionError is the typed failure of a block transition. The prior
// state is always retained when one is returned.
type TransitionError struct {
	Code   Code
	Detail string
}

func (e *TransitionError) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is matches two transition errors by code, so callers can test against
// bare &TransitionError{Code: ...} sentinels.
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	return ok && t.Code == e.Code
}

func errCode(code Code, format string, args ...any) *TransitionError {
	return &TransitionError{Code: code, Detail: fmt.Sprintf(format, args...)}
}
