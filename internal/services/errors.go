package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/pkg/otp"
)

// ErrorKind classifies a service failure for the transport layer
type ErrorKind string

const (
	KindNotFound                ErrorKind = "NotFound"
	KindInvalidInput            ErrorKind = "InvalidInput"
	KindInvalidTransition       ErrorKind = "InvalidTransition"
	KindExpired                 ErrorKind = "Expired"
	KindInvalid                 ErrorKind = "Invalid"
	KindSignatureMismatch       ErrorKind = "SignatureMismatch"
	KindInvalidWebhookSignature ErrorKind = "InvalidWebhookSignature"
	KindUnauthorized            ErrorKind = "Unauthorized"
	KindForbidden               ErrorKind = "Forbidden"
	KindConflict                ErrorKind = "Conflict"
	KindUnavailable             ErrorKind = "Unavailable"
	KindRateLimited             ErrorKind = "RateLimited"
	KindUpstreamFailure         ErrorKind = "UpstreamFailure"
	KindServerFault             ErrorKind = "ServerFault"
)

// Stable error codes
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeInvalidInput             = "INVALID_INPUT"
	CodeInvalidServiceID         = "INVALID_SERVICE_ID"
	CodeScheduleOrAddressMissing = "SCHEDULE_OR_ADDRESS_MISSING"
	CodeInvalidStatus            = "INVALID_STATUS"
	CodeInvalidAmount            = "INVALID_AMOUNT"
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodeOTPExpired               = "OTP_EXPIRED"
	CodeOTPInvalid               = "OTP_INVALID"
	CodeNoOTPRequested           = "NO_OTP_REQUESTED"
	CodeSignatureMismatch        = "SIGNATURE_MISMATCH"
	CodeInvalidWebhookSignature  = "INVALID_WEBHOOK_SIGNATURE"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeEmailNotVerified         = "EMAIL_NOT_VERIFIED"
	CodeForbidden                = "FORBIDDEN"
	CodeEmailTaken               = "EMAIL_TAKEN"
	CodeDuplicate                = "DUPLICATE"
	CodeTechnicianUnavailable    = "TECHNICIAN_UNAVAILABLE"
	CodeNoContactEmail           = "NO_CONTACT_EMAIL"
	CodeRateLimited              = "RATE_LIMITED"
	CodeGatewayError             = "GATEWAY_ERROR"
	CodeMailError                = "MAIL_ERROR"
	CodeStorageError             = "STORAGE_ERROR"
	CodeInternal                 = "INTERNAL_ERROR"
)

// Error is a classified service failure
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error onto a response status
func (e *Error) HTTPStatus() int {
	if e.Code == CodeNoContactEmail {
		return http.StatusUnprocessableEntity
	}
	switch e.Kind {
	case KindNotFound, KindUnavailable:
		return http.StatusNotFound
	case KindInvalidInput, KindExpired, KindInvalid, KindSignatureMismatch:
		return http.StatusBadRequest
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindUnauthorized, KindInvalidWebhookSignature:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NotFound reports a missing entity
func NotFound(entity string) *Error {
	return newError(KindNotFound, CodeNotFound, entity+" not found")
}

// InvalidInput reports a malformed request
func InvalidInput(message string) *Error {
	return newError(KindInvalidInput, CodeInvalidInput, message)
}

// InvalidServiceID reports a malformed or unknown service reference
func InvalidServiceID(raw string) *Error {
	return newError(KindInvalidInput, CodeInvalidServiceID, fmt.Sprintf("invalid service id %q", raw))
}

// ScheduleOrAddressMissing reports a booking request without when or where
func ScheduleOrAddressMissing() *Error {
	return newError(KindInvalidInput, CodeScheduleOrAddressMissing, "schedule time and address are required")
}

// InvalidStatus reports an unknown booking status value
func InvalidStatus(raw string) *Error {
	return newError(KindInvalidInput, CodeInvalidStatus, fmt.Sprintf("invalid status %q", raw))
}

// InvalidAmount reports a non-positive payment amount
func InvalidAmount() *Error {
	return newError(KindInvalidInput, CodeInvalidAmount, "amount must be greater than zero")
}

// InvalidTransition reports a move the booking state machine forbids
func InvalidTransition(from, to string) *Error {
	return newError(KindInvalidTransition, CodeInvalidTransition,
		fmt.Sprintf("cannot move booking from %s to %s", from, to))
}

// SignatureMismatch reports a checkout signature that does not verify
func SignatureMismatch() *Error {
	return newError(KindSignatureMismatch, CodeSignatureMismatch, "payment signature verification failed")
}

// InvalidWebhookSignature reports a webhook whose body signature is wrong
func InvalidWebhookSignature() *Error {
	return newError(KindInvalidWebhookSignature, CodeInvalidWebhookSignature, "invalid webhook signature")
}

// InvalidCredentials reports a failed login
func InvalidCredentials() *Error {
	return newError(KindUnauthorized, CodeInvalidCredentials, "invalid email or password")
}

// EmailNotVerified reports a login before the email was confirmed
func EmailNotVerified() *Error {
	return newError(KindForbidden, CodeEmailNotVerified, "please verify your email before logging in")
}

// Forbidden reports access to another user's resource
func Forbidden() *Error {
	return newError(KindForbidden, CodeForbidden, "you do not have access to this resource")
}

// EmailTaken reports a registration for an already verified email
func EmailTaken() *Error {
	return newError(KindConflict, CodeEmailTaken, "an account with this email already exists")
}

// Duplicate reports a unique constraint collision
func Duplicate(entity string) *Error {
	return newError(KindConflict, CodeDuplicate, entity+" already exists")
}

// TechnicianUnavailable reports a missing or inactive technician
func TechnicianUnavailable() *Error {
	return newError(KindUnavailable, CodeTechnicianUnavailable, "technician is not available")
}

// NoContactEmail reports a booking owner that cannot receive the OTP
func NoContactEmail() *Error {
	return newError(KindUnavailable, CodeNoContactEmail, "booking owner has no contact email")
}

// Upstream wraps a failure of an external dependency
func Upstream(code, message string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Code: code, Message: message, Err: err}
}

// Internal wraps an unexpected failure
func Internal(message string, err error) *Error {
	return &Error{Kind: KindServerFault, Code: CodeInternal, Message: message, Err: err}
}

// AsError extracts a classified error. Unclassified errors become ServerFault.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return &Error{Kind: KindRateLimited, Code: CodeRateLimited, Message: rlErr.Message, Err: err}
	}
	return Internal("internal server error", err)
}

// KindOf returns the kind of err
func KindOf(err error) ErrorKind {
	return AsError(err).Kind
}

// otpError maps OTP verification failures
func otpError(err error) *Error {
	switch {
	case errors.Is(err, otp.ErrExpired):
		return &Error{Kind: KindExpired, Code: CodeOTPExpired, Message: "code has expired, request a new one", Err: err}
	case errors.Is(err, otp.ErrNotRequested):
		return &Error{Kind: KindInvalid, Code: CodeNoOTPRequested, Message: "no code was requested", Err: err}
	default:
		return &Error{Kind: KindInvalid, Code: CodeOTPInvalid, Message: "invalid code", Err: err}
	}
}

// consumeError maps a failed OTP consumption. A stale write means another
// request used or replaced the code first.
func consumeError(err error) error {
	if errors.Is(err, database.ErrStale) {
		return otpError(otp.ErrNotRequested)
	}
	return storeError(err, "user")
}

// storeError maps repository sentinels, wrapping anything else as ServerFault
func storeError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return NotFound(entity)
	case errors.Is(err, database.ErrDuplicate):
		return Duplicate(entity)
	default:
		return Internal("failed to access "+entity, err)
	}
}
