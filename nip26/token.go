package nip26

import "encoding/hex"

const delegationKeyword = "delegation"

// DelegationToken is the fixed-form preimage a delegator signs to grant
// a delegatee permission under conditions. Once built it is immutable;
// Bytes returns the exact UTF-8 signing preimage, byte-for-byte.
type DelegationToken string

// NewDelegationToken materializes "nostr:delegation:<hex(delegateePk)>:<conditions>".
// No trimming or escaping is applied to conditions.String().
func NewDelegationToken(delegateePk [32]byte, conditions Conditions) DelegationToken {
	return DelegationToken("nostr:" + delegationKeyword + ":" + hex.EncodeToString(delegateePk[:]) + ":" + conditions.String())
}

// Bytes returns the UTF-8 signing preimage.
func (t DelegationToken) Bytes() []byte {
	return []byte(t)
}

func (t DelegationToken) String() string {
	return string(t)
}
