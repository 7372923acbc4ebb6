// Package pow implements the proof-of-work stamp carried by beacon requests.
//
// A token is the string "<minute>:<salt>:<counter>" where minute is a unix
// timestamp truncated to minute granularity. The client brute-forces the
// counter until the SHA-256 digest of the whole string reaches the required
// number of leading zero bits; the server recounts over the literal token
// bytes. Both sides share the counting rule in LeadingZeroBits, so the check
// is byte-for-byte symmetric.
package pow

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// DefaultDifficulty is the required number of leading zero bits.
const DefaultDifficulty = 10

// Freshness bounds applied by Verify to the embedded minute timestamp.
const (
	MaxAge          = 2 * time.Minute
	FutureTolerance = 1 * time.Minute
)

// Verification failures.
var (
	ErrMalformed  = errors.New("pow: malformed token")
	ErrStale      = errors.New("pow: token timestamp out of window")
	ErrDifficulty = errors.New("pow: difficulty not met")
)

// LeadingZeroBits counts leading zero bits of the SHA-256 digest of data:
// 8 per full zero byte, plus the partial count of the first non-zero byte,
// then stops.
func LeadingZeroBits(data []byte) int {
	sum := sha256.Sum256(data)
	n := 0
	for _, b := range sum {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}

// Generate brute-forces a token whose digest meets the difficulty and
// returns it base64-encoded for the X-Pow header. The work is CPU-bound but
// cheap at difficulty 10 (about a thousand hashes on average).
func Generate(now time.Time, salt string, difficulty int) string {
	minute := now.Truncate(time.Minute).Unix()
	seed := fmt.Sprintf("%d:%s:", minute, salt)
	for counter := 0; ; counter++ {
		token := seed + strconv.Itoa(counter)
		if LeadingZeroBits([]byte(token)) >= difficulty {
			return base64.StdEncoding.EncodeToString([]byte(token))
		}
	}
}

// Verify decodes an X-Pow header value, checks the embedded minute timestamp
// against [now-MaxAge, now+FutureTolerance], and recounts the difficulty
// over the literal decoded bytes.
func Verify(encoded string, now time.Time, difficulty int) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ErrMalformed
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return ErrMalformed
	}
	minute, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrMalformed
	}
	ts := time.Unix(minute, 0)
	if now.Sub(ts) > MaxAge || ts.Sub(now) > FutureTolerance {
		return ErrStale
	}
	if LeadingZeroBits(raw) < difficulty {
		return ErrDifficulty
	}
	return nil
}
