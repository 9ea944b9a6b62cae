package marketplace

import "testing"

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress("escrow", []byte("seed"))
	b := DeriveAddress("escrow", []byte("seed"))
	if a != b {
		t.Error("Expected derivation to be deterministic")
	}
	if DeriveAddress("escrow", []byte("seed")) == DeriveAddress("profile", []byte("seed")) {
		t.Error("Expected different tags to separate the derivation domains")
	}
}

func TestNewAddress(t *testing.T) {
	a := NewAddress()
	b := NewAddress()
	if a == b {
		t.Error("Expected fresh addresses to differ")
	}
	if a.IsZero() {
		t.Error("Expected a fresh address to be non-zero")
	}
}

func TestDerivedRecordAddresses(t *testing.T) {
	task := NewAddress()
	escrow := EscrowAddress(task)
	if escrow == EscrowVaultAddress(escrow) {
		t.Error("Expected the escrow record and its vault to live at different addresses")
	}
	if EscrowAddress(task) != escrow {
		t.Error("Expected escrow address to be a pure function of the task")
	}
	owner := NewAddress()
	if ProfileAddress(owner) == ProfileAddress(NewAddress()) {
		t.Error("Expected distinct owners to get distinct profile addresses")
	}
}

func TestAddressTextRoundTrip(t *testing.T) {
	a := NewAddress()
	parsed, err := ParseAddress(a.String())
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if parsed != a {
		t.Errorf("Expected %s but got %s", a, parsed)
	}

	for _, bad := range []string{"", "zz", "abcd", a.String() + "00"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("Expected ParseAddress(%q) to fail", bad)
		}
	}
}

func TestSignerAuthorityIsPerOwner(t *testing.T) {
	a := NewAddress()
	b := NewAddress()
	if SignerAuthority(a) == SignerAuthority(b) {
		t.Error("Expected different owners to hold different authorities")
	}
	if SignerAuthority(a) != SignerAuthority(a) {
		t.Error("Expected the authority derivation to be deterministic")
	}
}

func TestCheckedMath(t *testing.T) {
	if _, err := checkedAddU64(^uint64(0), 1); err != ErrAmountOverflow {
		t.Errorf("Expected ErrAmountOverflow but got %v", err)
	}
	if v, err := checkedAddU64(40, 2); err != nil || v != 42 {
		t.Errorf("Expected 42 but got %d, %v", v, err)
	}
	if _, err := checkedSubU64(1, 2); err != ErrAmountUnderflow {
		t.Errorf("Expected ErrAmountUnderflow but got %v", err)
	}
	if _, err := checkedAddU32(^uint32(0), 1); err != ErrRatingSumOverflow {
		t.Errorf("Expected ErrRatingSumOverflow but got %v", err)
	}
	if _, err := checkedAddI64(int64(1)<<62, int64(1)<<62); err != ErrTimelineOverflow {
		t.Errorf("Expected ErrTimelineOverflow but got %v", err)
	}
	if _, err := sumMilestoneAmounts([]Milestone{{Amount: ^uint64(0)}, {Amount: 1}}); err != ErrAmountOverflow {
		t.Errorf("Expected ErrAmountOverflow but got %v", err)
	}
}
