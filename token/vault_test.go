package token

import (
	"context"
	"math"
	"testing"

	"taskmarket-backend/core/marketplace"
)

func setupAccounts(t *testing.T) (*Vault, marketplace.Address, marketplace.Address, marketplace.Authority) {
	t.Helper()
	vault := NewVault()
	ctx := context.Background()

	mint := marketplace.DeriveAddress("vault_test", []byte("mint"))
	alice := marketplace.DeriveAddress("vault_test", []byte("alice"))
	bob := marketplace.DeriveAddress("vault_test", []byte("bob"))
	aliceAuth := marketplace.SignerAuthority(alice)

	if err := vault.CreateHolding(ctx, alice, alice, mint, aliceAuth); err != nil {
		t.Fatalf("CreateHolding: %v", err)
	}
	if err := vault.CreateHolding(ctx, bob, bob, mint, marketplace.SignerAuthority(bob)); err != nil {
		t.Fatalf("CreateHolding: %v", err)
	}
	if err := vault.MintTo(ctx, alice, 100); err != nil {
		t.Fatalf("MintTo: %v", err)
	}
	return vault, alice, bob, aliceAuth
}

func TestTransfer(t *testing.T) {
	vault, alice, bob, aliceAuth := setupAccounts(t)
	ctx := context.Background()

	t.Run("moves funds with the right authority", func(t *testing.T) {
		if err := vault.Transfer(ctx, alice, bob, aliceAuth, 40); err != nil {
			t.Fatalf("Transfer: %v", err)
		}
		if got, _ := vault.Balance(ctx, alice); got != 60 {
			t.Errorf("Expected 60 but got %d", got)
		}
		if got, _ := vault.Balance(ctx, bob); got != 40 {
			t.Errorf("Expected 40 but got %d", got)
		}
	})

	t.Run("wrong authority rejected", func(t *testing.T) {
		err := vault.Transfer(ctx, alice, bob, marketplace.SignerAuthority(bob), 1)
		if err != ErrInvalidAuthority {
			t.Errorf("Expected ErrInvalidAuthority but got %v", err)
		}
	})

	t.Run("short balance rejected without partial movement", func(t *testing.T) {
		before, _ := vault.Balance(ctx, bob)
		if err := vault.Transfer(ctx, alice, bob, aliceAuth, 1_000); err != ErrInsufficientFunds {
			t.Errorf("Expected ErrInsufficientFunds but got %v", err)
		}
		after, _ := vault.Balance(ctx, bob)
		if before != after {
			t.Errorf("Expected destination untouched but balance moved from %d to %d", before, after)
		}
	})

	t.Run("missing accounts rejected", func(t *testing.T) {
		ghost := marketplace.DeriveAddress("vault_test", []byte("ghost"))
		if err := vault.Transfer(ctx, ghost, bob, aliceAuth, 1); err != ErrAccountNotFound {
			t.Errorf("Expected ErrAccountNotFound but got %v", err)
		}
		if err := vault.Transfer(ctx, alice, ghost, aliceAuth, 1); err != ErrAccountNotFound {
			t.Errorf("Expected ErrAccountNotFound but got %v", err)
		}
	})

	t.Run("mint mismatch rejected", func(t *testing.T) {
		otherMint := marketplace.DeriveAddress("vault_test", []byte("other_mint"))
		carol := marketplace.DeriveAddress("vault_test", []byte("carol"))
		if err := vault.CreateHolding(ctx, carol, carol, otherMint, marketplace.SignerAuthority(carol)); err != nil {
			t.Fatalf("CreateHolding: %v", err)
		}
		if err := vault.Transfer(ctx, alice, carol, aliceAuth, 1); err != ErrMintMismatch {
			t.Errorf("Expected ErrMintMismatch but got %v", err)
		}
	})
}

func TestBalanceOverflow(t *testing.T) {
	vault, alice, _, aliceAuth := setupAccounts(t)
	ctx := context.Background()

	mint := marketplace.DeriveAddress("vault_test", []byte("mint"))
	full := marketplace.DeriveAddress("vault_test", []byte("full"))
	if err := vault.CreateHolding(ctx, full, full, mint, marketplace.SignerAuthority(full)); err != nil {
		t.Fatalf("CreateHolding: %v", err)
	}
	if err := vault.MintTo(ctx, full, math.MaxUint64); err != nil {
		t.Fatalf("MintTo: %v", err)
	}

	t.Run("mint into a full account rejected", func(t *testing.T) {
		if err := vault.MintTo(ctx, full, 1); err != ErrBalanceOverflow {
			t.Errorf("Expected ErrBalanceOverflow but got %v", err)
		}
		if got, _ := vault.Balance(ctx, full); got != math.MaxUint64 {
			t.Errorf("Expected balance untouched but got %d", got)
		}
	})

	t.Run("transfer into a full account rejected without partial movement", func(t *testing.T) {
		before, _ := vault.Balance(ctx, alice)
		if err := vault.Transfer(ctx, alice, full, aliceAuth, 1); err != ErrBalanceOverflow {
			t.Errorf("Expected ErrBalanceOverflow but got %v", err)
		}
		after, _ := vault.Balance(ctx, alice)
		if before != after {
			t.Errorf("Expected source untouched but balance moved from %d to %d", before, after)
		}
	})
}

func TestCreateAndCloseHolding(t *testing.T) {
	vault, alice, _, aliceAuth := setupAccounts(t)
	ctx := context.Background()

	t.Run("duplicate create rejected", func(t *testing.T) {
		mint := marketplace.DeriveAddress("vault_test", []byte("mint"))
		if err := vault.CreateHolding(ctx, alice, alice, mint, aliceAuth); err != ErrAccountExists {
			t.Errorf("Expected ErrAccountExists but got %v", err)
		}
	})

	t.Run("funded account cannot close", func(t *testing.T) {
		if err := vault.CloseHolding(ctx, alice, aliceAuth); err != ErrAccountNotEmpty {
			t.Errorf("Expected ErrAccountNotEmpty but got %v", err)
		}
	})

	t.Run("empty account closes and can be recreated", func(t *testing.T) {
		mint := marketplace.DeriveAddress("vault_test", []byte("mint"))
		addr := marketplace.DeriveAddress("vault_test", []byte("temp"))
		auth := marketplace.SignerAuthority(addr)
		if err := vault.CreateHolding(ctx, addr, addr, mint, auth); err != nil {
			t.Fatalf("CreateHolding: %v", err)
		}
		if err := vault.CloseHolding(ctx, addr, auth); err != nil {
			t.Fatalf("CloseHolding: %v", err)
		}
		if _, err := vault.Balance(ctx, addr); err != ErrAccountNotFound {
			t.Errorf("Expected ErrAccountNotFound after close but got %v", err)
		}
		if err := vault.CreateHolding(ctx, addr, addr, mint, auth); err != nil {
			t.Errorf("Expected recreate to succeed but got %v", err)
		}
	})

	t.Run("close needs the account authority", func(t *testing.T) {
		mint := marketplace.DeriveAddress("vault_test", []byte("mint"))
		addr := marketplace.DeriveAddress("vault_test", []byte("temp2"))
		if err := vault.CreateHolding(ctx, addr, addr, mint, marketplace.SignerAuthority(addr)); err != nil {
			t.Fatalf("CreateHolding: %v", err)
		}
		if err := vault.CloseHolding(ctx, addr, aliceAuth); err != ErrInvalidAuthority {
			t.Errorf("Expected ErrInvalidAuthority but got %v", err)
		}
	})
}
