package cryptocore

import (
	"bytes"
	"crypto/rand"
	"log"
	"sync"
)

// prefetchMultiplier sizes each crypto/rand read as a multiple of the
// nonce length, amortizing the syscall over several Get calls.
// Grounded on the teacher's adaptive RNG prefetcher: same idea (buffer
// random bytes ahead of need instead of calling crypto/rand.Read per
// nonce), without its background refill/profiling goroutines, which
// require an explicit Close() per instance. The key manager creates and
// drops a CryptoCore for every block or meta encryption and decryption,
// so any instance holding a live goroutine would leak one per call.
const prefetchMultiplier = 64

// ivGenerator hands out fresh random nonces of a fixed length, refilling
// its buffer synchronously from crypto/rand when it runs dry.
type ivGenerator struct {
	mu    sync.Mutex
	ivLen int
	buf   bytes.Buffer
	chunk int
}

func newIVGenerator(ivLen int) *ivGenerator {
	chunk := ivLen * prefetchMultiplier
	if chunk <= 0 {
		chunk = ivLen
	}
	return &ivGenerator{ivLen: ivLen, chunk: chunk}
}

// Get returns ivLen fresh random bytes.
func (g *ivGenerator) Get() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]byte, g.ivLen)
	n, _ := g.buf.Read(out)
	if n == g.ivLen {
		return out
	}

	fresh := make([]byte, g.chunk)
	if _, err := rand.Read(fresh); err != nil {
		log.Panicf("ivgenerator: crypto/rand failed: %v", err)
	}
	g.buf.Reset()
	g.buf.Write(fresh)

	n, err := g.buf.Read(out)
	if n != g.ivLen || err != nil {
		log.Panicf("ivgenerator: could not satisfy read: have=%d want=%d err=%v", n, g.ivLen, err)
	}
	return out
}
