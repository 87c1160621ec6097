// Package nip26 implements delegation tokens, tags, and conditions as
// described by NIP-26: a delegator signs a short-lived permission slip
// that lets a delegatee publish events on the delegator's behalf.
package nip26

import (
	"strconv"
	"strings"

	"github.com/shugur-labs/relaycore/errs"
)

// ConditionKind distinguishes the three condition fragments NIP-26 defines.
type ConditionKind int

const (
	ConditionKindKind ConditionKind = iota
	ConditionKindCreatedBefore
	ConditionKindCreatedAfter
)

// Condition is a single restriction within a delegation's condition
// query string, e.g. "kind=1" or "created_at<1700000000".
type Condition struct {
	Kind  ConditionKind
	Value uint64
}

func (c Condition) String() string {
	switch c.Kind {
	case ConditionKindKind:
		return "kind=" + strconv.FormatUint(c.Value, 10)
	case ConditionKindCreatedBefore:
		return "created_at<" + strconv.FormatUint(c.Value, 10)
	case ConditionKindCreatedAfter:
		return "created_at>" + strconv.FormatUint(c.Value, 10)
	default:
		return ""
	}
}

// ParseCondition parses a single condition fragment such as "kind=1".
func ParseCondition(s string) (Condition, error) {
	if rest, ok := strings.CutPrefix(s, "kind="); ok {
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Condition{}, errs.New(errs.ConditionsParseNumeric, err)
		}
		return Condition{Kind: ConditionKindKind, Value: n}, nil
	}
	if rest, ok := strings.CutPrefix(s, "created_at<"); ok {
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Condition{}, errs.New(errs.ConditionsParseNumeric, err)
		}
		return Condition{Kind: ConditionKindCreatedBefore, Value: n}, nil
	}
	if rest, ok := strings.CutPrefix(s, "created_at>"); ok {
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Condition{}, errs.New(errs.ConditionsParseNumeric, err)
		}
		return Condition{Kind: ConditionKindCreatedAfter, Value: n}, nil
	}
	return Condition{}, errs.New(errs.ConditionsParseInvalidCondition, nil)
}

// EventProperties is the minimal projection of an event a Condition set
// is evaluated against.
type EventProperties struct {
	Kind      uint64
	CreatedAt uint64
}

// Evaluate reports whether props satisfies c, returning the specific
// ValidationError reason on failure.
func (c Condition) Evaluate(props EventProperties) error {
	switch c.Kind {
	case ConditionKindKind:
		if props.Kind != c.Value {
			return errs.NewValidation(errs.InvalidKind)
		}
	case ConditionKindCreatedBefore:
		if props.CreatedAt >= c.Value {
			return errs.NewValidation(errs.CreatedTooLate)
		}
	case ConditionKindCreatedAfter:
		if props.CreatedAt <= c.Value {
			return errs.NewValidation(errs.CreatedTooEarly)
		}
	}
	return nil
}

// Conditions is an ordered sequence of Condition, serialized as an
// "&"-joined string.
type Conditions []Condition

func (c Conditions) String() string {
	parts := make([]string, len(c))
	for i, cond := range c {
		parts[i] = cond.String()
	}
	return strings.Join(parts, "&")
}

// ParseConditions parses an "&"-joined condition query string. An empty
// string yields an empty, always-satisfied Conditions.
func ParseConditions(s string) (Conditions, error) {
	if s == "" {
		return Conditions{}, nil
	}
	fragments := strings.Split(s, "&")
	out := make(Conditions, 0, len(fragments))
	for _, f := range fragments {
		cond, err := ParseCondition(f)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

// Evaluate checks props against every condition in order, returning the
// first failure.
func (c Conditions) Evaluate(props EventProperties) error {
	for _, cond := range c {
		if err := cond.Evaluate(props); err != nil {
			return err
		}
	}
	return nil
}
