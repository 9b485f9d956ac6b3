package keyset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocards/internal/crypto"
)

func genKeys(t *testing.T, n int) []crypto.PublicKey {
	t.Helper()
	p := crypto.NewEd25519Provider()
	out := make([]crypto.PublicKey, n)
	for i := range out {
		kp, err := p.GenerateKeyPair()
		require.NoError(t, err)
		out[i] = kp.Public
	}
	return out
}

func reversed(in []crypto.PublicKey) []crypto.PublicKey {
	out := make([]crypto.PublicKey, len(in))
	for i, k := range in {
		out[len(in)-1-i] = k
	}
	return out
}

func TestEqual_Properties(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5} {
		a := genKeys(t, n)
		assert.True(t, Equal(a, a), "reflexive n=%d", n)
		assert.True(t, Equal(a, reversed(a)), "order independent n=%d", n)

		extra := genKeys(t, 1)[0]
		assert.False(t, Equal(a, append(append([]crypto.PublicKey{}, a...), extra)), "extra key n=%d", n)
	}
}

func TestEqual_ByteExact(t *testing.T) {
	a := genKeys(t, 2)
	b := []crypto.PublicKey{a[1].Clone(), a[0].Clone()}
	assert.True(t, Equal(a, b))

	b[0][0] ^= 0xff
	assert.False(t, Equal(a, b))
}

func TestEqual_Multiplicity(t *testing.T) {
	k := genKeys(t, 2)
	assert.False(t, Equal([]crypto.PublicKey{k[0], k[0], k[1]}, []crypto.PublicKey{k[0], k[1], k[1]}))
	assert.True(t, Equal([]crypto.PublicKey{k[0], k[1], k[0]}, []crypto.PublicKey{k[0], k[0], k[1]}))
	assert.False(t, Equal([]crypto.PublicKey{k[0], k[0]}, []crypto.PublicKey{k[0]}))
	assert.True(t, Equal(nil, []crypto.PublicKey{}))
}

func TestDiff(t *testing.T) {
	k := genKeys(t, 3)
	onlyA, onlyB := Diff([]crypto.PublicKey{k[0], k[1], k[1]}, []crypto.PublicKey{k[1], k[2]})
	require.Len(t, onlyA, 2)
	assert.True(t, Equal(onlyA, []crypto.PublicKey{k[0], k[1]}))
	require.Len(t, onlyB, 1)
	assert.True(t, onlyB[0].Equal(k[2]))

	onlyA, onlyB = Diff(k, reversed(k))
	assert.Empty(t, onlyA)
	assert.Empty(t, onlyB)
}

func TestFingerprints_Sorted(t *testing.T) {
	k := genKeys(t, 4)
	assert.Equal(t, Fingerprints(k), Fingerprints(reversed(k)))
	for _, fp := range Fingerprints(k) {
		assert.Len(t, fp, 16)
	}
}
