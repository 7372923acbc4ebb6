package pow

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeadingZeroBits_CountingRule(t *testing.T) {
	// The rule sums full zero bytes then the partial count of the first
	// non-zero byte, and stops there. Pin it against hand-computed digests.
	for _, input := range []string{"", "a", "1690000000:salt:42"} {
		sum := sha256.Sum256([]byte(input))
		want := 0
		for _, b := range sum {
			if b == 0 {
				want += 8
				continue
			}
			for mask := byte(0x80); mask != 0 && b&mask == 0; mask >>= 1 {
				want++
			}
			break
		}
		require.Equal(t, want, LeadingZeroBits([]byte(input)), "input %q", input)
	}
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	now := time.Now()
	tok := Generate(now, "salty", DefaultDifficulty)
	require.NoError(t, Verify(tok, now, DefaultDifficulty))

	// The server counts over the literal decoded bytes, so the winning
	// token must meet the difficulty on its own.
	raw, err := base64.StdEncoding.DecodeString(tok)
	require.NoError(t, err)
	require.GreaterOrEqual(t, LeadingZeroBits(raw), DefaultDifficulty)
}

func TestVerify_StaleTimestamp(t *testing.T) {
	now := time.Now()
	tok := Generate(now.Add(-3*time.Minute), "salty", DefaultDifficulty)
	// Hash is valid, freshness is not.
	require.ErrorIs(t, Verify(tok, now, DefaultDifficulty), ErrStale)
}

func TestVerify_FutureTimestamp(t *testing.T) {
	now := time.Now()
	tok := Generate(now.Add(5*time.Minute), "salty", DefaultDifficulty)
	require.ErrorIs(t, Verify(tok, now, DefaultDifficulty), ErrStale)
}

func TestVerify_Malformed(t *testing.T) {
	require.ErrorIs(t, Verify("not-base64!!", time.Now(), DefaultDifficulty), ErrMalformed)

	noCounter := base64.StdEncoding.EncodeToString([]byte("1690000000:salt"))
	require.ErrorIs(t, Verify(noCounter, time.Now(), DefaultDifficulty), ErrMalformed)

	badMinute := base64.StdEncoding.EncodeToString([]byte("abc:salt:1"))
	require.ErrorIs(t, Verify(badMinute, time.Now(), DefaultDifficulty), ErrMalformed)
}

func TestVerify_DifficultyNotMet(t *testing.T) {
	now := time.Now()
	// A fresh timestamp with a counter that was never brute-forced will
	// essentially never reach 32 leading zero bits.
	tok := Generate(now, "salty", DefaultDifficulty)
	raw, err := base64.StdEncoding.DecodeString(tok)
	require.NoError(t, err)
	require.ErrorIs(t, Verify(base64.StdEncoding.EncodeToString(raw), now, 32), ErrDifficulty)
}
