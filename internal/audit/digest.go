package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Digest computes the chain hash of a record's canonical bytes.
type Digest interface {
	Name() string
	Sum(data []byte) string
	// Genesis is the prev_hash of the first record in a ledger.
	Genesis() string
}

var (
	// XXHash is the default digest: 64-bit xxhash rendered as 16 hex digits.
	// It detects accidental and casual edits but is not collision resistant.
	XXHash Digest = xxDigest{}
	// SHA256 produces "sha256:"-prefixed hex digests.
	SHA256 Digest = sha256Digest{}
)

// GenesisHash is the prev_hash of the first record under the default digest.
const GenesisHash = "0000000000000000"

type xxDigest struct{}

func (xxDigest) Name() string    { return "xxhash" }
func (xxDigest) Genesis() string { return GenesisHash }

func (xxDigest) Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

type sha256Digest struct{}

func (sha256Digest) Name() string { return "sha256" }

func (sha256Digest) Genesis() string {
	return "sha256:" + strings.Repeat("0", 64)
}

func (sha256Digest) Sum(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DigestByName resolves a configured digest name. Empty selects XXHash.
func DigestByName(name string) (Digest, error) {
	switch strings.ToLower(name) {
	case "", "xxhash":
		return XXHash, nil
	case "sha256":
		return SHA256, nil
	default:
		return nil, fmt.Errorf("audit: unknown digest %q", name)
	}
}
