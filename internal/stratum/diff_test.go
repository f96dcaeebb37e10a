package stratum

import "testing"

func TestEffectiveDifficultyBTC(t *testing.T) {
	got := EffectiveDifficulty(DiffBTC, DiffMultipliers{One: 1, Share: 1, Stratum: 2}, 10)
	if got != 20 {
		t.Fatalf("EffectiveDifficulty() = %v, want 20", got)
	}
}

func TestEffectiveDifficultyNeoScryptRescales(t *testing.T) {
	got := EffectiveDifficulty(DiffNeoScrypt, DiffMultipliers{One: 1, Share: 1, Stratum: 1}, 65536)
	if got != 1 {
		t.Fatalf("EffectiveDifficulty() = %v, want 1", got)
	}
}

func TestParseDiffModeRejectsUnknown(t *testing.T) {
	if _, ok := ParseDiffMode("litecoin"); ok {
		t.Fatalf("ParseDiffMode() accepted an unknown mode")
	}
}

func TestParseMerkleModeRoundTrip(t *testing.T) {
	for _, s := range []string{"SHA256D", "singleSHA256"} {
		mode, ok := ParseMerkleMode(s)
		if !ok || mode.String() != s {
			t.Fatalf("ParseMerkleMode(%q) = %v, %v", s, mode, ok)
		}
	}
}
