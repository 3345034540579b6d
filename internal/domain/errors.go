package domain

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers and transports.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindConflict
	KindValidation
	KindNoServiceAvailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_error"
	case KindNoServiceAvailable:
		return "no_service_available"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code a transport should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInvalidState, KindValidation, KindNoServiceAvailable:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified, caller-recoverable failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so wrapped predefined errors compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Err: e.Err}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error     { return newError(KindNotFound, code, msg) }
func Unauthorized(code, msg string) *Error { return newError(KindUnauthorized, code, msg) }
func InvalidState(code, msg string) *Error { return newError(KindInvalidState, code, msg) }
func Conflict(code, msg string) *Error     { return newError(KindConflict, code, msg) }
func Validation(code, msg string) *Error   { return newError(KindValidation, code, msg) }
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: msg, Err: err}
}

// KindOf extracts the Kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var (
	ErrBookingNotFound    = NotFound("booking_not_found", "booking not found")
	ErrUserNotFound       = NotFound("user_not_found", "user not found")
	ErrProviderNotFound   = NotFound("provider_not_found", "provider not found")
	ErrServiceNotFound    = NotFound("service_not_found", "service not found")
	ErrPaymentNotFound    = NotFound("payment_not_found", "payment not found")
	ErrCompletionNotFound = NotFound("completion_not_found", "completion not found")
	ErrSkillNotFound      = NotFound("skill_not_found", "service not in provider skills")

	ErrNotRequester        = Unauthorized("not_requester", "only the requester can perform this action")
	ErrNotAssignedProvider = Unauthorized("not_assigned_provider", "booking is assigned to another provider")
	ErrNotParticipant      = Unauthorized("not_participant", "caller is not a party of this booking")
	ErrNotProvider         = Unauthorized("not_provider", "caller is not a provider")
	ErrAdminOnly           = Unauthorized("admin_only", "admin role required")

	ErrInvalidTransition = InvalidState("invalid_transition", "status transition not allowed")
	ErrNotPending        = InvalidState("not_pending", "booking is not pending")
	ErrNotInProgress     = InvalidState("not_in_progress", "booking is not in progress")
	ErrNotCompleted      = InvalidState("not_completed", "booking must be completed first")
	ErrLedgerDisabled    = InvalidState("ledger_disabled", "ledger sync is not configured")

	ErrAlreadyRated      = Conflict("already_rated", "booking already rated")
	ErrAlreadyPaid       = Conflict("payment_exists", "payment already exists for this booking")
	ErrAlreadyAccepted   = Conflict("already_accepted", "booking already accepted")
	ErrConcurrentUpdate  = Conflict("concurrent_update", "booking was modified concurrently")
	ErrPaymentNotPending = Conflict("payment_not_pending", "payment is not pending")
	ErrProviderExists    = Conflict("provider_exists", "provider profile already exists")
	ErrSkillExists       = Conflict("skill_exists", "service already exists")

	ErrInvalidRating             = Validation("invalid_rating", "rating must be between 1 and 5")
	ErrInvalidStatus             = Validation("invalid_status", "unknown booking status")
	ErrInvalidMethod             = Validation("invalid_payment_method", "unknown payment method")
	ErrInvalidFileType           = Validation("invalid_file_type", "file type not allowed")
	ErrMissingLocation           = Validation("location_unavailable", "location data not available")
	ErrPaymentVerificationFailed = Validation("payment_verification_failed", "payment verification failed")

	ErrNoServiceAvailable = newError(KindNoServiceAvailable, "no_service_available", "no service available")
)
