package es256

import (
	"crypto/hmac"
	"crypto/sha256"
	"math/big"
)

// nonceGenerator is HMAC_DRBG with SHA-256 seeded as in RFC 6979, section 3.2.
// For P-256 with SHA-256 qlen == hlen, so bits2int needs no shifting.
type nonceGenerator struct {
	k []byte
	v []byte
	// set after the first candidate, to apply step h.3 before the next one
	started bool
}

func newNonceGenerator(d []byte, digest []byte) *nonceGenerator {
	// bits2octets(h1) = int2octets(bits2int(h1) mod q)
	h := new(big.Int).SetBytes(digest)
	if h.Cmp(order) >= 0 {
		h.Sub(h, order)
	}
	h1 := h.FillBytes(make([]byte, ScalarSize))

	g := &nonceGenerator{
		k: make([]byte, sha256.Size),
		v: make([]byte, sha256.Size),
	}
	for i := range g.v {
		g.v[i] = 0x01
	}

	// step d, e
	g.k = g.mac(g.v, []byte{0x00}, d, h1)
	g.v = g.mac(g.v)
	// step f, g
	g.k = g.mac(g.v, []byte{0x01}, d, h1)
	g.v = g.mac(g.v)
	return g
}

func (g *nonceGenerator) mac(data ...[]byte) []byte {
	m := hmac.New(sha256.New, g.k)
	for _, b := range data {
		m.Write(b)
	}
	return m.Sum(nil)
}

// next returns the next nonce candidate k, with 1 <= k < n
func (g *nonceGenerator) next() *big.Int {
	for {
		if g.started {
			// step h.3
			g.k = g.mac(g.v, []byte{0x00})
			g.v = g.mac(g.v)
		}
		g.started = true

		// step h.2, one HMAC output is enough when qlen == hlen
		g.v = g.mac(g.v)
		k := new(big.Int).SetBytes(g.v)
		if k.Sign() > 0 && k.Cmp(order) < 0 {
			return k
		}
	}
}

// wipe clears the generator state
func (g *nonceGenerator) wipe() {
	clear(g.k)
	clear(g.v)
}
