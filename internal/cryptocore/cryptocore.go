// Package cryptocore provides the authenticated-encryption backends used
// by the key manager (internal/keymanager) to encrypt file meta and data
// blocks. It knows nothing about the container format; it only turns keys
// into AEADs and hands out fresh nonces.
package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/teefs/secobjfs/internal/cpudetection"
	"github.com/teefs/secobjfs/internal/tlog"
)

// KeyLen is the key size, in bytes, used by every backend (256 bits).
const KeyLen = 32

// AuthTagLen is the GCM/Poly1305 authentication tag length in bytes.
const AuthTagLen = 16

// Backend identifies which AEAD implementation a CryptoCore wraps.
type Backend int

const (
	// BackendAESGCM is AES-256-GCM via crypto/aes + crypto/cipher.
	BackendAESGCM Backend = iota
	// BackendXChaCha20Poly1305 is golang.org/x/crypto/chacha20poly1305.NewX.
	BackendXChaCha20Poly1305
)

func (b Backend) String() string {
	switch b {
	case BackendAESGCM:
		return "AES-256-GCM"
	case BackendXChaCha20Poly1305:
		return "XChaCha20-Poly1305"
	default:
		return "unknown"
	}
}

// CryptoCore wraps one AEAD instance and its nonce generator, bound to
// exactly one key.
type CryptoCore struct {
	AEADCipher cipher.AEAD
	Backend    Backend
	// IVLen is the nonce length this backend expects.
	IVLen int
	IVGen *ivGenerator
}

// New builds a CryptoCore for the given key and backend. key must be
// KeyLen bytes.
func New(key []byte, backend Backend) (*CryptoCore, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("cryptocore: bad key length %d, want %d", len(key), KeyLen)
	}
	var aead cipher.AEAD
	var err error
	switch backend {
	case BackendAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case BackendXChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("cryptocore: unknown backend %d", backend)
	}
	if err != nil {
		return nil, err
	}
	cc := &CryptoCore{
		AEADCipher: aead,
		Backend:    backend,
		IVLen:      aead.NonceSize(),
	}
	cc.IVGen = newIVGenerator(cc.IVLen)
	tlog.Debug.Printf("cryptocore.New: backend=%s ivLen=%d overhead=%d", backend, cc.IVLen, aead.Overhead())
	return cc, nil
}

// Overhead returns nonce+tag bytes added to any plaintext of this backend.
func (cc *CryptoCore) Overhead() int {
	return cc.IVLen + cc.AEADCipher.Overhead()
}

// Wipe attempts to make the key material behind this CryptoCore
// unrecoverable. Go's GC does not guarantee zeroing, so this is
// best-effort: it drops references so the old key can be collected.
func (cc *CryptoCore) Wipe() {
	cc.AEADCipher = nil
	cc.IVGen = nil
}

// PreferredBackend recommends a backend for this host, grounded on
// cpudetection's feature probe: AES-NI hosts get AES-GCM, others get
// XChaCha20-Poly1305 since it has no hardware-acceleration dependency.
func PreferredBackend() Backend {
	if cpudetection.New().GetFeatures().AESNI {
		return BackendAESGCM
	}
	return BackendXChaCha20Poly1305
}
