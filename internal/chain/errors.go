package chain

import (
	"errors"
	"fmt"
)

// ErrAmbiguousOutcome marks a ledger call whose result is unknown: the
// transaction may or may not have landed. Callers must re-query chain state
// before any further state-changing action; the index is never written on
// this path.
var ErrAmbiguousOutcome = errors.New("ambiguous ledger outcome")

// ErrorCategory groups program errors for user-facing reporting.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFunds         ErrorCategory = "funds"
	CategoryAuthorization ErrorCategory = "authorization"
	CategoryStateConflict ErrorCategory = "state_conflict"
	CategoryExpiry        ErrorCategory = "expiry"
)

// Program error codes of the escrow program. The set is fixed; codes outside
// it from the same range are surfaced unmapped.
const (
	CodeInvalidHourlyRate        = 6000
	CodeInvalidEstimatedHours    = 6001
	CodePostNotOpen              = 6002
	CodePostAlreadyCompleted     = 6003
	CodePostAlreadyHasHelper     = 6004
	CodeHelpRequestNotFound      = 6005
	CodeHelpRequestNotPending    = 6006
	CodeUnauthorizedPublisher    = 6007
	CodeCannotCancelWithHelper   = 6008
	CodeInsufficientFunds        = 6009
	CodeInvalidPlatformFee       = 6010
	CodePostNotFound             = 6011
	CodeAlreadyApplied           = 6012
	CodeInvalidPostID            = 6013
	CodePostExpired              = 6014
	CodeInvalidTitleLength       = 6015
	CodeInvalidDescriptionLength = 6016
	CodeArithmeticOverflow       = 6017
	CodeInvalidValue             = 6018
)

// ProgramError is a deterministic rejection by the escrow program.
type ProgramError struct {
	Code     int
	Name     string
	Message  string
	Category ErrorCategory
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("escrow program error %d (%s): %s", e.Code, e.Name, e.Message)
}

// Is allows errors.Is matching against another ProgramError by code.
func (e *ProgramError) Is(target error) bool {
	var pe *ProgramError
	if errors.As(target, &pe) {
		return pe.Code == e.Code
	}
	return false
}

var programErrors = map[int]*ProgramError{
	CodeInvalidHourlyRate:        {CodeInvalidHourlyRate, "InvalidHourlyRate", "invalid hourly rate - must be greater than 0", CategoryValidation},
	CodeInvalidEstimatedHours:    {CodeInvalidEstimatedHours, "InvalidEstimatedHours", "invalid estimated hours - must be between 1 and 255", CategoryValidation},
	CodePostNotOpen:              {CodePostNotOpen, "PostNotOpen", "post is not open for applications", CategoryStateConflict},
	CodePostAlreadyCompleted:     {CodePostAlreadyCompleted, "PostAlreadyCompleted", "post is already completed", CategoryStateConflict},
	CodePostAlreadyHasHelper:     {CodePostAlreadyHasHelper, "PostAlreadyHasHelper", "post already has an accepted helper", CategoryStateConflict},
	CodeHelpRequestNotFound:      {CodeHelpRequestNotFound, "HelpRequestNotFound", "help request not found", CategoryStateConflict},
	CodeHelpRequestNotPending:    {CodeHelpRequestNotPending, "HelpRequestNotPending", "help request is not pending", CategoryStateConflict},
	CodeUnauthorizedPublisher:    {CodeUnauthorizedPublisher, "UnauthorizedPublisher", "only publisher can perform this action", CategoryAuthorization},
	CodeCannotCancelWithHelper:   {CodeCannotCancelWithHelper, "CannotCancelWithHelper", "cannot cancel post with accepted helper", CategoryStateConflict},
	CodeInsufficientFunds:        {CodeInsufficientFunds, "InsufficientFunds", "insufficient funds for post creation", CategoryFunds},
	CodeInvalidPlatformFee:       {CodeInvalidPlatformFee, "InvalidPlatformFee", "invalid platform fee", CategoryValidation},
	CodePostNotFound:             {CodePostNotFound, "PostNotFound", "post not found", CategoryStateConflict},
	CodeAlreadyApplied:           {CodeAlreadyApplied, "AlreadyApplied", "user already applied to this post", CategoryStateConflict},
	CodeInvalidPostID:            {CodeInvalidPostID, "InvalidPostID", "invalid post ID", CategoryValidation},
	CodePostExpired:              {CodePostExpired, "PostExpired", "post has expired", CategoryExpiry},
	CodeInvalidTitleLength:       {CodeInvalidTitleLength, "InvalidTitleLength", "invalid title length", CategoryValidation},
	CodeInvalidDescriptionLength: {CodeInvalidDescriptionLength, "InvalidDescriptionLength", "invalid description length", CategoryValidation},
	CodeArithmeticOverflow:       {CodeArithmeticOverflow, "ArithmeticOverflow", "arithmetic overflow", CategoryValidation},
	CodeInvalidValue:             {CodeInvalidValue, "InvalidValue", "invalid value", CategoryValidation},
}

// programErrorByCode maps an RPC error code to a ProgramError, if known.
func programErrorByCode(code int) (*ProgramError, bool) {
	pe, ok := programErrors[code]
	return pe, ok
}

// IsProgramError reports whether err is the program error with the given code.
func IsProgramError(err error, code int) bool {
	var pe *ProgramError
	return errors.As(err, &pe) && pe.Code == code
}

// CategoryOf classifies an error for user-facing reporting. Unknown errors
// default to state_conflict, the safest prompt for a re-read.
func CategoryOf(err error) ErrorCategory {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryStateConflict
}
