// Package blockio implements the encrypted block I/O layer: encrypt-then-
// write and read-then-decrypt wrappers over the RPC transport, using the
// per-file FEK. It owns no state of its own; it is driven by objmeta (for
// meta records) and blockengine (for data blocks) and knows nothing about
// the container's offset arithmetic beyond the offset it is given.
package blockio

import (
	"errors"
	"fmt"
)

// Kind identifies which of the two record types a block I/O call is
// operating on. The two kinds use different header sizes and FEK
// handling, per the key manager's contract.
type Kind int

const (
	// KindMeta identifies a file-meta record. Its header additionally
	// carries the record's wrapped FEK.
	KindMeta Kind = iota
	// KindBlock identifies a data block record. Its FEK is supplied by
	// the caller rather than recovered from the header.
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// ErrMACInvalid is returned internally by a KeyManager on authentication
// failure. blockio always upgrades it to ErrCorrupt before it is visible
// to callers outside this package, per the engine's error handling design.
var ErrMACInvalid = errors.New("blockio: MAC verification failed")

// ErrCorrupt signals that a record failed authentication: the ciphertext
// (or the on-disk counter framing it) has been tampered with or damaged.
var ErrCorrupt = errors.New("blockio: corrupt object")

// KeyManager is the reference collaborator K: it knows the header size
// of each record kind, can mint a fresh FEK wrapped for a session
// identity, and performs the authenticated encryption/decryption of
// both meta and block records.
type KeyManager interface {
	// HeaderSize returns H_kind, the authenticated-encryption header
	// size in bytes for records of the given kind.
	HeaderSize(kind Kind) int
	// GenerateFEK creates a fresh File Encryption Key, to be wrapped
	// under uuid the next time a KindMeta record is encrypted.
	GenerateFEK(uuid [16]byte) ([]byte, error)
	// Encrypt produces ciphertext of length HeaderSize(kind)+len(plaintext).
	// For KindMeta, fek is wrapped into the header under uuid. For
	// KindBlock, the payload is sealed under a key derived from fek, with
	// uuid bound in as associated data (so a block ciphertext copied onto
	// another session's container fails authentication).
	Encrypt(kind Kind, uuid [16]byte, fek, plaintext []byte) (ciphertext []byte, err error)
	// Decrypt authenticates and decrypts ciphertext. For KindMeta, fek
	// is ignored on input and the unwrapped FEK is returned as fekOut;
	// for KindBlock, fek is required on input and fekOut equals it.
	// Returns ErrMACInvalid on authentication failure.
	Decrypt(kind Kind, uuid [16]byte, fek, ciphertext []byte) (plaintext, fekOut []byte, err error)
}

// Transport is the reference collaborator R: positional I/O against the
// untrusted backing file. Reads and writes may be short; the engine
// treats a read that returns zero bytes as "slot empty".
type Transport interface {
	Open(path string, create bool) (fd int, err error)
	Close(fd int) error
	ReadAt(fd int, buf []byte, offset int64) (n int, err error)
	WriteAt(fd int, buf []byte, offset int64) (n int, err error)
	Rename(oldPath, newPath string, overwrite bool) error
	Remove(path string) error
	Fsync(fd int) error
}

// EncryptAndWrite encrypts plaintext under fek (kind-dependent handling
// per KeyManager.Encrypt) and writes the ciphertext to fd at offset.
func EncryptAndWrite(km KeyManager, tr Transport, fd int, kind Kind, offset int64, uuid [16]byte, fek, plaintext []byte) error {
	ciphertext, err := km.Encrypt(kind, uuid, fek, plaintext)
	if err != nil {
		return fmt.Errorf("blockio: encrypt %s: %w", kind, err)
	}
	n, err := tr.WriteAt(fd, ciphertext, offset)
	if err != nil {
		return fmt.Errorf("blockio: write %s at %d: %w", kind, offset, err)
	}
	if n != len(ciphertext) {
		return fmt.Errorf("blockio: short write of %s at %d: wrote %d of %d bytes", kind, offset, n, len(ciphertext))
	}
	return nil
}

// ReadAndDecrypt reads HeaderSize(kind)+plaintextLen bytes at offset and
// decrypts them. A zero-length read (never-written slot) is reported via
// ok=false with a nil error: callers treat that as "slot empty", not as
// a failure. On MAC failure it returns ErrCorrupt.
func ReadAndDecrypt(km KeyManager, tr Transport, fd int, kind Kind, offset int64, plaintextLen int, uuid [16]byte, fek []byte) (plaintext, fekOut []byte, ok bool, err error) {
	want := km.HeaderSize(kind) + plaintextLen
	buf := make([]byte, want)
	n, err := tr.ReadAt(fd, buf, offset)
	if err != nil {
		return nil, nil, false, fmt.Errorf("blockio: read %s at %d: %w", kind, offset, err)
	}
	if n == 0 {
		return nil, nil, false, nil
	}
	plaintext, fekOut, err = km.Decrypt(kind, uuid, fek, buf[:n])
	if err != nil {
		if errors.Is(err, ErrMACInvalid) {
			return nil, nil, false, ErrCorrupt
		}
		return nil, nil, false, fmt.Errorf("blockio: decrypt %s at %d: %w", kind, offset, err)
	}
	return plaintext, fekOut, true, nil
}
