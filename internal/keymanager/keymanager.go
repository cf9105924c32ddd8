// Package keymanager is a reference implementation of the key-management
// collaborator (K in the engine's external-interface contract): it mints
// and wraps File Encryption Keys and performs the authenticated
// encryption of meta and data-block records on behalf of internal/blockio.
//
// It is grounded on the teacher's internal/cryptocore for the AEAD
// primitives and on internal/kdf for turning a passphrase into the
// session-wrapping key. Nothing here is a TEE concept: it is the
// reference collaborator a caller supplies so the engine can be tested
// and run standalone.
package keymanager

import (
	"crypto/rand"
	"fmt"

	"github.com/teefs/secobjfs/internal/blockio"
	"github.com/teefs/secobjfs/internal/cryptocore"
	"github.com/teefs/secobjfs/internal/memprotect"
	"github.com/teefs/secobjfs/internal/tlog"
)

// Manager is the reference KeyManager. It holds a single long-lived
// wrapping key, passed to New, used to wrap/unwrap every file's FEK.
type Manager struct {
	wrapCore *cryptocore.CryptoCore
	mprot    *memprotect.MemoryProtection
}

// New builds a Manager that wraps FEKs under wrapKey (exactly
// cryptocore.KeyLen bytes — callers typically derive this once via
// internal/kdf from a passphrase and keep it for the process lifetime).
func New(wrapKey []byte, backend cryptocore.Backend) (*Manager, error) {
	cc, err := cryptocore.New(wrapKey, backend)
	if err != nil {
		return nil, fmt.Errorf("keymanager: %w", err)
	}
	mp := memprotect.New()
	mp.LockMemory(wrapKey)
	return &Manager{wrapCore: cc, mprot: mp}, nil
}

// Close wipes the wrapping key. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.wrapCore.Wipe()
	m.mprot.Cleanup()
}

// HeaderSize implements blockio.KeyManager.
//
// KindBlock records carry only the payload's own nonce+tag, sealed under
// a key derived from the file's FEK; m.wrapCore.Overhead() is a stand-in
// for that per-file core's overhead since both share the same backend
// and therefore the same IV and tag length.
// KindMeta records additionally carry a wrapped FEK (itself nonce+tag
// around cryptocore.KeyLen bytes of key material) ahead of the payload's
// own nonce+tag.
func (m *Manager) HeaderSize(kind blockio.Kind) int {
	switch kind {
	case blockio.KindBlock:
		return m.wrapCore.Overhead()
	case blockio.KindMeta:
		return m.wrapCore.Overhead() + cryptocore.KeyLen + m.wrapCore.Overhead()
	default:
		return 0
	}
}

// GenerateFEK implements blockio.KeyManager.
func (m *Manager) GenerateFEK(uuid [16]byte) ([]byte, error) {
	fek := make([]byte, cryptocore.KeyLen)
	if _, err := rand.Read(fek); err != nil {
		return nil, fmt.Errorf("keymanager: generate FEK: %w", err)
	}
	return fek, nil
}

// Encrypt implements blockio.KeyManager.
func (m *Manager) Encrypt(kind blockio.Kind, uuid [16]byte, fek, plaintext []byte) ([]byte, error) {
	switch kind {
	case blockio.KindBlock:
		fekCore, err := cryptocore.New(fek, m.wrapCore.Backend)
		if err != nil {
			return nil, fmt.Errorf("keymanager: %w", err)
		}
		defer fekCore.Wipe()
		return m.sealWithCore(fekCore, uuid[:], plaintext)
	case blockio.KindMeta:
		wrappedFEK, err := m.sealWithCore(m.wrapCore, uuid[:], fek)
		if err != nil {
			return nil, fmt.Errorf("keymanager: wrap FEK: %w", err)
		}
		fekCore, err := cryptocore.New(fek, m.wrapCore.Backend)
		if err != nil {
			return nil, fmt.Errorf("keymanager: %w", err)
		}
		defer fekCore.Wipe()
		payload, err := m.sealWithCore(fekCore, nil, plaintext)
		if err != nil {
			return nil, fmt.Errorf("keymanager: seal meta payload: %w", err)
		}
		out := make([]byte, 0, len(wrappedFEK)+len(payload))
		out = append(out, wrappedFEK...)
		out = append(out, payload...)
		return out, nil
	default:
		return nil, fmt.Errorf("keymanager: unknown kind %d", kind)
	}
}

// Decrypt implements blockio.KeyManager.
func (m *Manager) Decrypt(kind blockio.Kind, uuid [16]byte, fek, ciphertext []byte) (plaintext, fekOut []byte, err error) {
	switch kind {
	case blockio.KindBlock:
		fekCore, err := cryptocore.New(fek, m.wrapCore.Backend)
		if err != nil {
			return nil, nil, fmt.Errorf("keymanager: %w", err)
		}
		defer fekCore.Wipe()
		pt, err := m.openWithCore(fekCore, uuid[:], ciphertext)
		if err != nil {
			return nil, nil, err
		}
		return pt, fek, nil
	case blockio.KindMeta:
		wrappedLen := m.wrapCore.Overhead() + cryptocore.KeyLen
		if len(ciphertext) < wrappedLen {
			tlog.Debug.Printf("keymanager: meta ciphertext too short: %d < %d", len(ciphertext), wrappedLen)
			return nil, nil, blockio.ErrMACInvalid
		}
		unwrappedFEK, err := m.openWithCore(m.wrapCore, uuid[:], ciphertext[:wrappedLen])
		if err != nil {
			return nil, nil, err
		}
		fekCore, err := cryptocore.New(unwrappedFEK, m.wrapCore.Backend)
		if err != nil {
			return nil, nil, fmt.Errorf("keymanager: %w", err)
		}
		defer fekCore.Wipe()
		pt, err := m.openWithCore(fekCore, nil, ciphertext[wrappedLen:])
		if err != nil {
			return nil, nil, err
		}
		return pt, unwrappedFEK, nil
	default:
		return nil, nil, fmt.Errorf("keymanager: unknown kind %d", kind)
	}
}

// sealWithCore produces iv||AEAD-seal(plaintext) under cc, authenticating
// ad (nil for no associated data).
func (m *Manager) sealWithCore(cc *cryptocore.CryptoCore, ad []byte, plaintext []byte) ([]byte, error) {
	iv := cc.IVGen.Get()
	sealed := cc.AEADCipher.Seal(nil, iv, plaintext, ad)
	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// openWithCore is sealWithCore's inverse; ad must match what sealing used.
func (m *Manager) openWithCore(cc *cryptocore.CryptoCore, ad []byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < cc.IVLen {
		return nil, blockio.ErrMACInvalid
	}
	iv := ciphertext[:cc.IVLen]
	sealed := ciphertext[cc.IVLen:]
	plaintext, err := cc.AEADCipher.Open(nil, iv, sealed, ad)
	if err != nil {
		return nil, blockio.ErrMACInvalid
	}
	return plaintext, nil
}
