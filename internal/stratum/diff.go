package stratum

// DiffMode selects the target-to-difficulty conversion a pool expects.
// Different coin families scale the canonical 256-bit target differently;
// btc and neoScrypt are the two this repository's original pool set used.
type DiffMode int

const (
	DiffBTC DiffMode = iota
	DiffNeoScrypt
)

func ParseDiffMode(s string) (DiffMode, bool) {
	switch s {
	case "btc":
		return DiffBTC, true
	case "neoScrypt":
		return DiffNeoScrypt, true
	default:
		return 0, false
	}
}

func (m DiffMode) String() string {
	switch m {
	case DiffBTC:
		return "btc"
	case DiffNeoScrypt:
		return "neoScrypt"
	default:
		return "unknown"
	}
}

// MerkleMode selects the coinbase-hashing rule used to fold the merkle
// branch into the block header.
type MerkleMode int

const (
	MerkleSHA256D MerkleMode = iota
	MerkleSingleSHA256
)

func ParseMerkleMode(s string) (MerkleMode, bool) {
	switch s {
	case "SHA256D":
		return MerkleSHA256D, true
	case "singleSHA256":
		return MerkleSingleSHA256, true
	default:
		return 0, false
	}
}

func (m MerkleMode) String() string {
	switch m {
	case MerkleSHA256D:
		return "SHA256D"
	case MerkleSingleSHA256:
		return "singleSHA256"
	default:
		return "unknown"
	}
}

// DiffMultipliers rescales the raw "difficulty 1" target a pool announces.
// Each field must be a positive number; a pool config with a zero or
// negative multiplier is rejected at load time, not at use time.
type DiffMultipliers struct {
	One     float64 // scales diff-1 target into this pool's native unit
	Share   float64 // scales a share's computed difficulty for comparison
	Stratum float64 // scales mining.set_difficulty's value into the native unit
}

// Valid reports whether every multiplier is a positive, non-zero number.
func (d DiffMultipliers) Valid() bool {
	return d.One > 0 && d.Share > 0 && d.Stratum > 0
}

// EffectiveDifficulty converts a pool-announced mining.set_difficulty value
// into the difficulty the session compares shares against, honoring both
// the pool's multiplier and its diff mode. neoScrypt pools historically
// report difficulty pre-scaled by 65536 relative to the btc convention.
func EffectiveDifficulty(mode DiffMode, mul DiffMultipliers, announced float64) float64 {
	scaled := announced * mul.Stratum
	if mode == DiffNeoScrypt {
		scaled /= 65536.0
	}
	return scaled
}
