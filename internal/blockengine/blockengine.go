// Package blockengine implements the block engine (C4): reading a
// logical block of a committed meta, and staging an out-of-place write
// of a logical block into a candidate meta under construction.
package blockengine

import (
	"fmt"

	"github.com/teefs/secobjfs/internal/blockio"
	"github.com/teefs/secobjfs/internal/layout"
	"github.com/teefs/secobjfs/internal/objmeta"
)

// Engine reads and writes data blocks against a container.
type Engine struct {
	km    blockio.KeyManager
	tr    blockio.Transport
	sizes layout.Sizes
}

// New returns an Engine bound to the given collaborators and sizing.
func New(km blockio.KeyManager, tr blockio.Transport, sizes layout.Sizes) *Engine {
	return &Engine{km: km, tr: tr, sizes: sizes}
}

// ReadBlock reads logical block n of meta's active slot. A never-written
// slot (zero-length read) yields an all-zero BlockSize buffer with no
// error, matching the "logical holes read as zero" contract. uuid is the
// session identity the block's ciphertext was bound to at write time.
func (e *Engine) ReadBlock(fd int, uuid [16]byte, meta objmeta.Meta, n uint64) ([]byte, error) {
	offset := e.sizes.BlockOffset(meta.BackupVersionTable, n, true)
	plaintext, _, ok, err := blockio.ReadAndDecrypt(e.km, e.tr, fd, blockio.KindBlock, offset, layout.BlockSize, uuid, meta.FEK)
	if err != nil {
		return nil, fmt.Errorf("blockengine: read block %d: %w", n, err)
	}
	if !ok {
		return make([]byte, layout.BlockSize), nil
	}
	if len(plaintext) != layout.BlockSize {
		return nil, fmt.Errorf("%w: block %d decrypted to %d bytes, want %d", blockio.ErrCorrupt, n, len(plaintext), layout.BlockSize)
	}
	return plaintext, nil
}

// WriteBlock encrypts and writes plaintext (exactly BlockSize bytes) to
// the shadow slot of logical block n relative to candidate, then flips
// candidate's backup-version bit for block n so a later commit of
// candidate makes this write authoritative. On failure, candidate is
// left untouched.
func (e *Engine) WriteBlock(fd int, uuid [16]byte, candidate *objmeta.Meta, n uint64, plaintext []byte) error {
	if len(plaintext) != layout.BlockSize {
		return fmt.Errorf("blockengine: write block %d: plaintext length %d, want %d", n, len(plaintext), layout.BlockSize)
	}
	offset := e.sizes.BlockOffset(candidate.BackupVersionTable, n, false)
	if err := blockio.EncryptAndWrite(e.km, e.tr, fd, blockio.KindBlock, offset, uuid, candidate.FEK, plaintext); err != nil {
		return fmt.Errorf("blockengine: write block %d: %w", n, err)
	}
	layout.ToggleBitN(candidate.BackupVersionTable, n)
	return nil
}
