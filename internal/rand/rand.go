package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" // reduced base64
)

var charsetLen = len(charset)

var defaultRandBytes = newRandBytes()

func newRandBytes() *randBytes {
	randomBytes := make([]byte, bytesInUint64*2)

	if _, err := cryptorand.Read(randomBytes); err != nil {
		panic("unreachable")
	}

	return &randBytes{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(randomBytes[:8]),
			binary.LittleEndian.Uint64(randomBytes[8:]),
		)),
	}
}

type randBytes struct {
	mut sync.Mutex
	rng *rand.Rand
}

// String returns a random string of the given length over the reduced
// base64 charset. The output seeds correlation-id prefixes, not secrets,
// so uniformity and unpredictability requirements are relaxed.
func String(length int) string {
	buf := make([]byte, length)

	defaultRandBytes.mut.Lock()
	for i := range buf {
		buf[i] = charset[defaultRandBytes.rng.IntN(charsetLen)]
	}
	defaultRandBytes.mut.Unlock()

	return string(buf)
}
