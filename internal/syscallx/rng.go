package syscallx

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"
)

type rngTable struct {
	generators map[uint32]*mathrand.ChaCha8
}

func newRNGTable() *rngTable {
	t := &rngTable{generators: make(map[uint32]*mathrand.ChaCha8)}
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing would mean the host has no entropy
		// source at all; fall back to a fixed seed rather than a nil
		// generator so rand_int stays usable.
		binary.LittleEndian.PutUint64(seed[:8], 0x53617475726e0001)
	}
	t.generators[0] = mathrand.NewChaCha8(seed)
	return t
}

func expandSeed(seed uint32) [32]byte {
	var out [32]byte
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], seed)
	for i := 0; i < 32; i += 4 {
		copy(out[i:i+4], buf[:])
	}
	return out
}

func (t *rngTable) seed(id, seed uint32) {
	t.generators[id] = mathrand.NewChaCha8(expandSeed(seed))
}

func (t *rngTable) get(id uint32) *mathrand.ChaCha8 {
	g, ok := t.generators[id]
	if !ok {
		g = mathrand.NewChaCha8(expandSeed(id))
		t.generators[id] = g
	}
	return g
}
