package nip26

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/shugur-labs/relaycore/errs"
)

func mustHex32(t *testing.T, s string) [32]byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		t.Fatalf("bad hex32 %q: %v", s, err)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

// S1 — Conditions canonical form.
func TestConditionsCanonicalForm(t *testing.T) {
	conds := Conditions{
		{Kind: ConditionKindKind, Value: 1},
		{Kind: ConditionKindCreatedAfter, Value: 1676067553},
		{Kind: ConditionKindCreatedBefore, Value: 1678659553},
	}
	want := "kind=1&created_at>1676067553&created_at<1678659553"
	if got := conds.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	parsed, err := ParseConditions(want)
	if err != nil {
		t.Fatalf("ParseConditions: %v", err)
	}
	if len(parsed) != len(conds) {
		t.Fatalf("round trip length mismatch: %v vs %v", parsed, conds)
	}
	for i := range conds {
		if parsed[i] != conds[i] {
			t.Fatalf("round trip mismatch at %d: got %+v want %+v", i, parsed[i], conds[i])
		}
	}
}

// S2 — DelegationToken preimage.
func TestDelegationTokenPreimage(t *testing.T) {
	delegatee := mustHex32(t, "477318cfb5427b9cfc66a9fa376150c1ddbc62115ae27cef72417eb959691396")
	condStr := "kind=1&created_at>1674834236&created_at<1677426236"
	conds, err := ParseConditions(condStr)
	if err != nil {
		t.Fatalf("ParseConditions: %v", err)
	}
	token := NewDelegationToken(delegatee, conds)
	want := "nostr:delegation:" + hex.EncodeToString(delegatee[:]) + ":" + condStr
	if string(token) != want {
		t.Fatalf("token = %q, want %q", token, want)
	}
}

// S3 — Verify a known tag.
func TestDelegationTagValidateKnownGood(t *testing.T) {
	tag, err := DelegationTagFromJSON([]byte(`["delegation","1a459a8a6aa6441d480ba665fb8fb21a4cfe8bcacb7d87300f8046a558a3fce4","kind=1&created_at>1676067553&created_at<1678659553","369aed09c1ad52fceb77ecd6c16f2433eac4a3803fc41c58876a5b60f4f36b9493d5115e5ec5a0ce6c3668ffe5b58d47f2cbc97233833bb7e908f66dbbbd9d36"]`))
	if err != nil {
		t.Fatalf("DelegationTagFromJSON: %v", err)
	}
	delegatee := mustHex32(t, "bea8aeb6c1657e33db5ac75a83910f77e8ec6145157e476b5b88c6e85b1fab34")
	err = tag.Validate(delegatee, EventProperties{Kind: 1, CreatedAt: 1677000000})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// S4 — Condition boundary.
func TestConditionBoundary(t *testing.T) {
	before := Condition{Kind: ConditionKindCreatedBefore, Value: 1000}
	if err := before.Evaluate(EventProperties{CreatedAt: 1000}); !isValidation(err, errs.CreatedTooLate) {
		t.Fatalf("want CreatedTooLate, got %v", err)
	}
	if err := before.Evaluate(EventProperties{CreatedAt: 999}); err != nil {
		t.Fatalf("want ok, got %v", err)
	}

	after := Condition{Kind: ConditionKindCreatedAfter, Value: 1000}
	if err := after.Evaluate(EventProperties{CreatedAt: 1000}); !isValidation(err, errs.CreatedTooEarly) {
		t.Fatalf("want CreatedTooEarly, got %v", err)
	}
	if err := after.Evaluate(EventProperties{CreatedAt: 1001}); err != nil {
		t.Fatalf("want ok, got %v", err)
	}
}

// S5 — Validate with wrong delegatee.
func TestDelegationTagValidateWrongDelegatee(t *testing.T) {
	tag, err := DelegationTagFromJSON([]byte(`["delegation","1a459a8a6aa6441d480ba665fb8fb21a4cfe8bcacb7d87300f8046a558a3fce4","kind=1&created_at>1676067553&created_at<1678659553","369aed09c1ad52fceb77ecd6c16f2433eac4a3803fc41c58876a5b60f4f36b9493d5115e5ec5a0ce6c3668ffe5b58d47f2cbc97233833bb7e908f66dbbbd9d36"]`))
	if err != nil {
		t.Fatalf("DelegationTagFromJSON: %v", err)
	}
	wrong := mustHex32(t, "14b91c20c0287495615210ef7772192d43eca6d2a34342e723bd237035e7955b")
	err = tag.Validate(wrong, EventProperties{Kind: 1, CreatedAt: 1677000000})
	if !isValidation(err, errs.InvalidSignature) {
		t.Fatalf("want InvalidSignature, got %v", err)
	}
}

func isValidation(err error, want errs.ValidationError) bool {
	e, ok := err.(*errs.Error)
	return ok && e.Kind == errs.ConditionsValidation && e.Validation == want
}

func TestEmptyConditionsRoundTrip(t *testing.T) {
	var c Conditions
	if c.String() != "" {
		t.Fatalf("empty Conditions.String() = %q, want empty", c.String())
	}
	parsed, err := ParseConditions("")
	if err != nil {
		t.Fatalf("ParseConditions(\"\"): %v", err)
	}
	if len(parsed) != 0 {
		t.Fatalf("ParseConditions(\"\") = %v, want empty", parsed)
	}
}

func TestBuildAndValidateRoundTrip(t *testing.T) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	delegatee := mustHex32(t, "477318cfb5427b9cfc66a9fa376150c1ddbc62115ae27cef72417eb959691396")
	conds := Conditions{{Kind: ConditionKindKind, Value: 1}}

	tag, err := NewDelegationTag(sk, delegatee, conds)
	if err != nil {
		t.Fatalf("NewDelegationTag: %v", err)
	}

	if err := tag.Validate(delegatee, EventProperties{Kind: 1, CreatedAt: 100}); err != nil {
		t.Fatalf("Validate ok case: %v", err)
	}
	if err := tag.Validate(delegatee, EventProperties{Kind: 2, CreatedAt: 100}); !isValidation(err, errs.InvalidKind) {
		t.Fatalf("want InvalidKind, got %v", err)
	}

	other := mustHex32(t, "bea8aeb6c1657e33db5ac75a83910f77e8ec6145157e476b5b88c6e85b1fab34")
	if err := tag.Validate(other, EventProperties{Kind: 1, CreatedAt: 100}); !isValidation(err, errs.InvalidSignature) {
		t.Fatalf("want InvalidSignature for wrong delegatee, got %v", err)
	}
}

func TestDelegationTagJSONRoundTrip(t *testing.T) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	delegatee := mustHex32(t, "477318cfb5427b9cfc66a9fa376150c1ddbc62115ae27cef72417eb959691396")
	conds := Conditions{{Kind: ConditionKindKind, Value: 42}}

	tag, err := NewDelegationTag(sk, delegatee, conds)
	if err != nil {
		t.Fatalf("NewDelegationTag: %v", err)
	}
	data, err := tag.AsJSON()
	if err != nil {
		t.Fatalf("AsJSON: %v", err)
	}
	parsed, err := DelegationTagFromJSON(data)
	if err != nil {
		t.Fatalf("DelegationTagFromJSON: %v", err)
	}
	if parsed.DelegatorPubkey != tag.DelegatorPubkey || parsed.Signature != tag.Signature {
		t.Fatalf("round trip mismatch")
	}
	if parsed.Conditions.String() != tag.Conditions.String() {
		t.Fatalf("conditions mismatch: %q vs %q", parsed.Conditions.String(), tag.Conditions.String())
	}
}

func TestDelegationTagFromJSONRejectsBadShape(t *testing.T) {
	cases := [][]byte{
		[]byte(`["delegation","a","b"]`),
		[]byte(`["nope","aa","bb","cc"]`),
		[]byte(`["delegation","zz","kind=1","cc"]`),
	}
	for _, c := range cases {
		if _, err := DelegationTagFromJSON(c); err == nil {
			t.Fatalf("expected error for %s", c)
		}
	}
}

func TestParseConditionRejectsUnknownPrefix(t *testing.T) {
	if _, err := ParseCondition("whatever=1"); err == nil {
		t.Fatalf("expected error")
	} else if e, ok := err.(*errs.Error); !ok || e.Kind != errs.ConditionsParseInvalidCondition {
		t.Fatalf("wrong error kind: %v", err)
	}
}

func TestParseConditionRejectsBadNumber(t *testing.T) {
	if _, err := ParseCondition("kind=abc"); err == nil {
		t.Fatalf("expected error")
	} else if e, ok := err.(*errs.Error); !ok || e.Kind != errs.ConditionsParseNumeric {
		t.Fatalf("wrong error kind: %v", err)
	}
}

func TestSignatureHexWidth(t *testing.T) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	delegatee := mustHex32(t, "477318cfb5427b9cfc66a9fa376150c1ddbc62115ae27cef72417eb959691396")
	tag, err := NewDelegationTag(sk, delegatee, nil)
	if err != nil {
		t.Fatalf("NewDelegationTag: %v", err)
	}
	sigHex := hex.EncodeToString(tag.Signature[:])
	if len(sigHex) != 128 {
		t.Fatalf("signature hex length = %d, want 128", len(sigHex))
	}
}
