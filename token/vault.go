// Package token implements the fungible-token transfer collaborator:
// holding accounts keyed by 32-byte addresses, each guarded by an
// authority capability, with an atomic Transfer between them.
package token

import (
	"context"
	"sync"

	"taskmarket-backend/core/marketplace"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrAccountNotFound   = Err("holding account not found")
	ErrAccountExists     = Err("holding account already exists")
	ErrInvalidAuthority  = Err("authority proof is invalid")
	ErrInsufficientFunds = Err("insufficient funds")
	ErrMintMismatch      = Err("accounts hold different mints")
	ErrAccountNotEmpty   = Err("holding account still has a balance")
	ErrBalanceOverflow   = Err("balance overflow")
)

// Account is one token holding account.
type Account struct {
	Addr      marketplace.Address
	Owner     marketplace.Address
	Mint      marketplace.Address
	Balance   uint64
	authority marketplace.Authority
}

// Vault is an in-process token ledger. All mutation happens under one
// mutex, so a Transfer either fully applies or fully fails.
type Vault struct {
	mu       sync.Mutex
	accounts map[marketplace.Address]*Account
}

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{accounts: make(map[marketplace.Address]*Account)}
}

// CreateHolding registers a new holding account with zero balance.
func (v *Vault) CreateHolding(_ context.Context, addr, owner, mint marketplace.Address, auth marketplace.Authority) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.accounts[addr]; ok {
		return ErrAccountExists
	}
	v.accounts[addr] = &Account{Addr: addr, Owner: owner, Mint: mint, authority: auth}
	return nil
}

// Transfer moves amount from one holding account to another. It fails
// atomically when the source is missing, the authority does not match
// the source account, the mints differ, or the balance is short.
func (v *Vault) Transfer(_ context.Context, from, to marketplace.Address, auth marketplace.Authority, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	src, ok := v.accounts[from]
	if !ok {
		return ErrAccountNotFound
	}
	dst, ok := v.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if src.authority != auth {
		return ErrInvalidAuthority
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Balance < amount {
		return ErrInsufficientFunds
	}
	if dst.Balance+amount < dst.Balance {
		return ErrBalanceOverflow
	}
	src.Balance -= amount
	dst.Balance += amount
	return nil
}

// CloseHolding removes an empty holding account. Closing an account
// that still holds funds is refused so value can never be destroyed.
func (v *Vault) CloseHolding(_ context.Context, addr marketplace.Address, auth marketplace.Authority) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	acct, ok := v.accounts[addr]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.authority != auth {
		return ErrInvalidAuthority
	}
	if acct.Balance != 0 {
		return ErrAccountNotEmpty
	}
	delete(v.accounts, addr)
	return nil
}

// Balance reports the current balance of a holding account.
func (v *Vault) Balance(_ context.Context, addr marketplace.Address) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	acct, ok := v.accounts[addr]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return acct.Balance, nil
}

// MintTo credits a holding account out of thin air. This is the on-ramp
// the surrounding deployment uses to seed client balances; the engine
// itself never mints.
func (v *Vault) MintTo(_ context.Context, addr marketplace.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	acct, ok := v.accounts[addr]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Balance+amount < acct.Balance {
		return ErrBalanceOverflow
	}
	acct.Balance += amount
	return nil
}
