package marketplace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Address is a 32-byte record or account identity.
type Address [32]byte

var zeroAddress Address

// String returns the hex form of the address.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == zeroAddress }

// MarshalText implements encoding.TextMarshaler so addresses render as
// hex in JSON payloads.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a hex address.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 64-char hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("parse address: want %d bytes, got %d", len(a), len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// NewAddress mints a fresh, unique record address.
func NewAddress() Address {
	u := uuid.New()
	return sha256.Sum256(u[:])
}

// DeriveAddress computes a deterministic address from a tag and seed
// parts. The same inputs always produce the same address, which is how
// escrow and profile records get exactly one slot each.
func DeriveAddress(tag string, seeds ...[]byte) Address {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, s := range seeds {
		h.Write(s)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// EscrowAddress is the derived escrow record address for a task.
func EscrowAddress(task Address) Address {
	return DeriveAddress("escrow", task[:])
}

// EscrowVaultAddress is the derived token holding account for an escrow.
func EscrowVaultAddress(escrow Address) Address {
	return DeriveAddress("escrow_token", escrow[:])
}

// ProfileAddress is the derived agent profile address for an owner.
func ProfileAddress(owner Address) Address {
	return DeriveAddress("profile", owner[:])
}

// Authority is an opaque capability proving the right to move value out
// of a token holding account.
type Authority [32]byte

// SignerAuthority is the authority of an authenticated caller over its
// own holding accounts. Caller authentication itself is the host's job;
// the engine only derives this once the caller identity is established.
func SignerAuthority(owner Address) Authority {
	return Authority(DeriveAddress("signer", owner[:]))
}

// escrowAuthority is the engine-internal capability over an escrow's
// vault. It stays unexported and is never returned through any surface;
// custody rests on the vault only honoring transfers the engine signs.
func escrowAuthority(escrow Address, salt uint8) Authority {
	return Authority(DeriveAddress("escrow_authority", escrow[:], []byte{salt}))
}
