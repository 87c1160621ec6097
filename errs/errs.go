// Package errs holds the stable error taxonomy shared by the nip26 and
// relay packages. Kinds are flat and comparable so callers can branch on
// them with errors.Is/errors.As without depending on the wrapped cause.
package errs

import "fmt"

// Kind identifies the category of a relaycore error.
type Kind int

const (
	// Url means a relay URL could not be parsed.
	Url Kind = iota
	// RelayEventSender means enqueuing a command failed because the
	// command channel is closed, typically after Terminate.
	RelayEventSender
	// Key means delegator key material was malformed.
	Key
	// Crypto means a low-level signature operation failed. Surfaced
	// unchanged from nip26.NewDelegationTag. DelegationTag.Validate never
	// returns it: a verification failure there surfaces as
	// ConditionsValidation with InvalidSignature.
	Crypto
	// ConditionsParseInvalidCondition means a conditions fragment used
	// an unrecognized prefix.
	ConditionsParseInvalidCondition
	// ConditionsParseNumeric means the numeric suffix of a condition
	// fragment failed to parse as a u64 decimal.
	ConditionsParseNumeric
	// ConditionsValidation wraps a ValidationError produced while
	// evaluating Conditions against EventProperties, or while verifying
	// a delegation signature.
	ConditionsValidation
	// DelegationTagParse means the tag's JSON shape, length, or leading
	// keyword was wrong.
	DelegationTagParse
)

func (k Kind) String() string {
	switch k {
	case Url:
		return "Url"
	case RelayEventSender:
		return "RelayEventSender"
	case Key:
		return "Key"
	case Crypto:
		return "Crypto"
	case ConditionsParseInvalidCondition:
		return "ConditionsParseInvalidCondition"
	case ConditionsParseNumeric:
		return "ConditionsParseNumeric"
	case ConditionsValidation:
		return "ConditionsValidation"
	case DelegationTagParse:
		return "DelegationTagParse"
	default:
		return "Unknown"
	}
}

// ValidationError is the specific reason a delegation tag or condition
// set failed evaluation. Only meaningful when Kind == ConditionsValidation.
type ValidationError int

const (
	// InvalidSignature means the delegation signature did not verify
	// against the claimed delegator/delegatee pair.
	InvalidSignature ValidationError = iota
	// InvalidKind means the event kind did not match a Kind condition.
	InvalidKind
	// CreatedTooEarly means the event's created_at was not strictly
	// after a CreatedAfter bound.
	CreatedTooEarly
	// CreatedTooLate means the event's created_at was not strictly
	// before a CreatedBefore bound.
	CreatedTooLate
)

func (v ValidationError) String() string {
	switch v {
	case InvalidSignature:
		return "InvalidSignature"
	case InvalidKind:
		return "InvalidKind"
	case CreatedTooEarly:
		return "CreatedTooEarly"
	case CreatedTooLate:
		return "CreatedTooLate"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across package boundaries.
// Kind is always set; Validation is only meaningful for
// Kind == ConditionsValidation; Err carries the wrapped cause, if any.
type Error struct {
	Kind       Kind
	Validation ValidationError
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == ConditionsValidation {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Validation, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Validation)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind (and, for
// ConditionsValidation, the same Validation).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	if e.Kind == ConditionsValidation {
		return e.Validation == t.Validation
	}
	return true
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func NewValidation(v ValidationError) *Error {
	return &Error{Kind: ConditionsValidation, Validation: v}
}

func NewValidationWrap(v ValidationError, cause error) *Error {
	return &Error{Kind: ConditionsValidation, Validation: v, Err: cause}
}
