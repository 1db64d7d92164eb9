package password

import (
	"github.com/alexedwards/argon2id"
)

// Hasher wraps argon2id with fixed parameters chosen to keep verify latency
// around the 100ms budget.
type Hasher struct {
	params *argon2id.Params
}

func NewHasher() *Hasher {
	return &Hasher{params: argon2id.DefaultParams}
}

// Hash derives a salted one-way digest of the plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	return argon2id.CreateHash(plaintext, h.params)
}

// Verify reports whether plaintext matches the stored digest. A malformed
// digest verifies false rather than surfacing an error to the login path.
func (h *Hasher) Verify(plaintext, digest string) bool {
	match, err := argon2id.ComparePasswordAndHash(plaintext, digest)
	if err != nil {
		return false
	}
	return match
}
