package nip26

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/shugur-labs/relaycore/errs"
)

// DelegationTag is the signed (delegator, conditions, signature) triple
// attached to an event to prove the event was authorized by delegator.
type DelegationTag struct {
	DelegatorPubkey [32]byte
	Conditions      Conditions
	Signature       [64]byte
}

// NewDelegationTag signs a fresh delegation: delegatorKey grants
// delegateePk the right to publish events matching conditions.
func NewDelegationTag(delegatorKey *btcec.PrivateKey, delegateePk [32]byte, conditions Conditions) (*DelegationTag, error) {
	token := NewDelegationToken(delegateePk, conditions)
	hashed := sha256.Sum256(token.Bytes())

	sig, err := schnorr.Sign(delegatorKey, hashed[:])
	if err != nil {
		return nil, errs.New(errs.Crypto, err)
	}

	var delegatorPub [32]byte
	copy(delegatorPub[:], schnorr.SerializePubKey(delegatorKey.PubKey()))

	var sigBytes [64]byte
	copy(sigBytes[:], sig.Serialize())

	return &DelegationTag{
		DelegatorPubkey: delegatorPub,
		Conditions:      conditions,
		Signature:       sigBytes,
	}, nil
}

// Validate reconstructs the preimage for delegateePk (never a pubkey
// found elsewhere in the tag), verifies the signature against
// DelegatorPubkey, then evaluates Conditions against props. A
// low-level signature-verification failure is remapped to
// ConditionsValidation/InvalidSignature so the public taxonomy stays
// stable regardless of the underlying crypto library's error shape.
func (t *DelegationTag) Validate(delegateePk [32]byte, props EventProperties) error {
	token := NewDelegationToken(delegateePk, t.Conditions)
	hashed := sha256.Sum256(token.Bytes())

	pubKey, err := schnorr.ParsePubKey(t.DelegatorPubkey[:])
	if err != nil {
		return errs.NewValidationWrap(errs.InvalidSignature, err)
	}
	sig, err := schnorr.ParseSignature(t.Signature[:])
	if err != nil {
		return errs.NewValidationWrap(errs.InvalidSignature, err)
	}
	if !sig.Verify(hashed[:], pubKey) {
		return errs.NewValidation(errs.InvalidSignature)
	}

	return t.Conditions.Evaluate(props)
}

// AsJSON renders the canonical ["delegation", delegator_hex,
// conditions_string, signature_hex] array.
func (t *DelegationTag) AsJSON() ([]byte, error) {
	return json.Marshal([]string{
		delegationKeyword,
		hex.EncodeToString(t.DelegatorPubkey[:]),
		t.Conditions.String(),
		hex.EncodeToString(t.Signature[:]),
	})
}

// DelegationTagFromJSON parses a 4-element ["delegation", ...] array.
// Any other length, a first element other than "delegation", or a hex
// field that fails to decode as the expected width is rejected.
func DelegationTagFromJSON(data []byte) (*DelegationTag, error) {
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, errs.New(errs.DelegationTagParse, err)
	}
	return DelegationTagFromStrings(arr)
}

// DelegationTagFromStrings parses the already-decoded 4-string form,
// as found inside an event's tag list.
func DelegationTagFromStrings(arr []string) (*DelegationTag, error) {
	if len(arr) != 4 {
		return nil, errs.New(errs.DelegationTagParse, nil)
	}
	if arr[0] != delegationKeyword {
		return nil, errs.New(errs.DelegationTagParse, nil)
	}

	delegatorBytes, err := hex.DecodeString(arr[1])
	if err != nil || len(delegatorBytes) != 32 {
		return nil, errs.New(errs.DelegationTagParse, err)
	}
	conditions, err := ParseConditions(arr[2])
	if err != nil {
		return nil, err
	}
	sigBytes, err := hex.DecodeString(arr[3])
	if err != nil || len(sigBytes) != 64 {
		return nil, errs.New(errs.DelegationTagParse, err)
	}

	var tag DelegationTag
	copy(tag.DelegatorPubkey[:], delegatorBytes)
	tag.Conditions = conditions
	copy(tag.Signature[:], sigBytes)
	return &tag, nil
}
