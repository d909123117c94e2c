package types

import (
	"testing"
)

func TestPubkeyBase58RoundTrip(t *testing.T) {
	const s = "SPoo1Ku8WFXoNDMHPsrGSTSG1Y47rzgn41SLUNakuHy"
	p, err := PubkeyFromBase58(s)
	if err != nil {
		t.Fatalf("PubkeyFromBase58 failed: %v", err)
	}
	if p.String() != s {
		t.Errorf("String: got %s, want %s", p.String(), s)
	}

	text, err := p.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	var decoded Pubkey
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if decoded != p {
		t.Error("decoded pubkey mismatch")
	}
}

func TestPubkeyInvalidLength(t *testing.T) {
	if _, err := PubkeyFromBytes(make([]byte, 31)); err != ErrInvalidPubkey {
		t.Errorf("expected ErrInvalidPubkey, got %v", err)
	}
	if _, err := PubkeyFromBase58("abc"); err == nil {
		t.Error("expected error for short base58 key")
	}
}

func TestPubkeyCompare(t *testing.T) {
	a := Pubkey{1}
	b := Pubkey{2}
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Error("unexpected ordering")
	}
	if !(Pubkey{}).IsZero() || a.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestFindProgramAddress(t *testing.T) {
	vote := Pubkey{7}
	pool := Pubkey{9}

	addr1, bump1, err := FindProgramAddress([][]byte{vote[:], pool[:]}, StakePoolProgramAddr)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}
	addr2, bump2, err := FindProgramAddress([][]byte{vote[:], pool[:]}, StakePoolProgramAddr)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Error("derivation should be deterministic")
	}
	if isOnCurve(addr1[:]) {
		t.Error("derived address must be off curve")
	}

	other, _, err := FindProgramAddress([][]byte{[]byte("transient"), vote[:], pool[:]}, StakePoolProgramAddr)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}
	if other == addr1 {
		t.Error("different seeds should derive different addresses")
	}
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	long := make([]byte, MaxSeedLen+1)
	if _, err := CreateProgramAddress([][]byte{long}, StakePoolProgramAddr); err != ErrMaxSeedLengthExceeded {
		t.Errorf("expected ErrMaxSeedLengthExceeded, got %v", err)
	}
	many := make([][]byte, MaxSeeds+1)
	if _, err := CreateProgramAddress(many, StakePoolProgramAddr); err != ErrMaxSeedsExceeded {
		t.Errorf("expected ErrMaxSeedsExceeded, got %v", err)
	}
}

func TestCreateProgramAddressKnownVectors(t *testing.T) {
	program := MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	seedKey := MustPubkeyFromBase58("SeedPubey1111111111111111111111111111111111")

	tests := []struct {
		name  string
		seeds [][]byte
		want  string
	}{
		{"empty and one", [][]byte{{}, {1}}, "BwqrghZA2htAcqq8dzP1WDAhTXYTYWj7CHxF5j7TDBAe"},
		{"utf8", [][]byte{[]byte("☉"), {0}}, "13yWmRpaTR4r5nAktwLqMpRNr28tnVUZw26rTvPSSB19"},
		{"two words", [][]byte{[]byte("Talking"), []byte("Squirrels")}, "2fnQrngrQT4SeLcdToJAD96phoEjNL2man2kfRLCASVk"},
		{"pubkey seed", [][]byte{seedKey[:], {1}}, "976ymqVnfE32QFe6NfGDctSvVa36LWnvYxhU6G2232YL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateProgramAddress(tt.seeds, program)
			if err != nil {
				t.Fatalf("CreateProgramAddress failed: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFindProgramAddressMatchesCreate(t *testing.T) {
	program := MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	seeds := [][]byte{[]byte("Lil'"), []byte("Bits")}

	addr, bump, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}
	again, err := CreateProgramAddress(append(seeds, []byte{bump}), program)
	if err != nil {
		t.Fatalf("CreateProgramAddress with bump %d failed: %v", bump, err)
	}
	if again != addr {
		t.Errorf("got %s, want %s", again, addr)
	}
}

func TestIsOnCurve(t *testing.T) {
	// ed25519 base point, y = 4/5.
	base := []byte{
		0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	}
	if !isOnCurve(base) {
		t.Error("base point should be on curve")
	}
	if !isOnCurve(make([]byte, 32)) {
		t.Error("y = 0 should be on curve")
	}
	if isOnCurve(make([]byte, 31)) {
		t.Error("short input should be rejected")
	}
}
