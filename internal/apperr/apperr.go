package apperr

import "fmt"

// Kind classifies an operation failure. Every error returned across the
// engine boundary carries exactly one Kind; callers branch on the kind,
// humans read the message.
type Kind int32

const (
	KindPaused Kind = iota
	KindUnauthorized
	KindInvalidParameter
	KindInvalidState
	KindInsufficientBalance
	KindOverflow
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPaused:
		return "Paused"
	case KindUnauthorized:
		return "Unauthorized"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindInvalidState:
		return "InvalidState"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindOverflow:
		return "Overflow"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is a typed, value-returned failure. It never wraps partial state:
// an operation that returns an Error has left every entity untouched.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches either the identical sentinel or any error of the same kind,
// so errors.Is(err, sentinel) and errors.Is(err, kindOnly) both work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" {
		return e.Kind == t.Kind
	}
	return e == t
}

// KindOf extracts the kind from an engine error. The second return is false
// for errors that did not originate in the engine.
func KindOf(err error) (Kind, bool) {
	e, ok := err.(*Error)
	if !ok {
		return 0, false
	}
	return e.Kind, true
}

// Sentinels, one per guard condition.
var (
	ErrProgramPaused = &Error{KindPaused, "program is currently paused"}

	ErrUnauthorized      = &Error{KindUnauthorized, "only authority can perform this action"}
	ErrUserNotAuthorized = &Error{KindUnauthorized, "caller not authorized for this market"}

	ErrInvalidOutcomeCount   = &Error{KindInvalidParameter, "invalid outcome count (must be 2-10)"}
	ErrOutcomeCountMismatch  = &Error{KindInvalidParameter, "outcome count mismatch between labels and pools"}
	ErrInvalidTradingFee     = &Error{KindInvalidParameter, "invalid trading fee (must be 1-500 bps)"}
	ErrInvalidOutcomeIndex   = &Error{KindInvalidParameter, "invalid outcome index"}
	ErrInvalidResolutionTime = &Error{KindInvalidParameter, "invalid resolution time"}
	ErrInvalidAmount         = &Error{KindInvalidParameter, "invalid amount"}
	ErrStringTooLong         = &Error{KindInvalidParameter, "string too long"}
	ErrReferralCodeInvalid   = &Error{KindInvalidParameter, "referral code invalid"}
	ErrReferralCodeInUse     = &Error{KindInvalidParameter, "referral code already in use"}
	ErrCannotInviteYourself  = &Error{KindInvalidParameter, "cannot invite yourself"}

	ErrMarketNotResolved       = &Error{KindInvalidState, "market not resolved yet"}
	ErrMarketAlreadyResolved   = &Error{KindInvalidState, "market already resolved"}
	ErrResolutionTimeNotReached = &Error{KindInvalidState, "market resolution time not reached"}
	ErrCreatorPegAlreadyClaimed = &Error{KindInvalidState, "creator peg already claimed"}
	ErrCannotWithdrawUnresolved = &Error{KindInvalidState, "cannot withdraw from unresolved market"}
	ErrNoFeesToWithdraw         = &Error{KindInvalidState, "no fees to withdraw"}
	ErrNoWinningsToRedeem       = &Error{KindInvalidState, "no winnings to redeem"}
	ErrInvitorAlreadySet        = &Error{KindInvalidState, "invitor already set for this user"}
	ErrGlobalAlreadyInitialized = &Error{KindInvalidState, "global config already initialized"}
	ErrProfileAlreadyExists     = &Error{KindInvalidState, "user profile already initialized"}

	ErrInsufficientFunds  = &Error{KindInsufficientBalance, "insufficient funds"}
	ErrInsufficientShares = &Error{KindInsufficientBalance, "insufficient shares to sell"}

	ErrArithmeticOverflow     = &Error{KindOverflow, "arithmetic overflow"}
	ErrMarketCalculationError = &Error{KindOverflow, "market calculation error"}

	ErrGlobalNotInitialized  = &Error{KindNotFound, "global config not initialized"}
	ErrProfileNotInitialized = &Error{KindNotFound, "user has not initialized their profile"}
	ErrMarketNotFound        = &Error{KindNotFound, "market not found"}
)
