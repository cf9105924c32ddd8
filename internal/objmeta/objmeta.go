// Package objmeta implements the meta manager (C3): creating, reading,
// and two-phase-committing the file-meta record that names a file's
// length, block-slot bitmap, and wrapped FEK.
package objmeta

import (
	"encoding/binary"
	"fmt"

	"github.com/teefs/secobjfs/internal/blockio"
	"github.com/teefs/secobjfs/internal/layout"
)

// Info is the plaintext meta-info record: everything but the FEK and
// counter, exactly as stored (encrypted) in a meta slot.
type Info struct {
	// Length is the logical file size in bytes.
	Length uint64
	// BackupVersionTable has one bit per block; bit i selects which of
	// the two physical slots holds block i's authoritative version.
	BackupVersionTable []byte
	// Reserved is opaque key-manager-owned data carried alongside Info
	// but never interpreted here.
	Reserved []byte
}

// Meta wraps Info with the fields the container format stores alongside
// it in memory (not all of these are part of the on-disk meta-info
// payload; FEK and Counter live in the wider record, per spec).
type Meta struct {
	Info
	// FEK is the unwrapped File Encryption Key for this file, held only
	// in memory for the lifetime of the open handle.
	FEK []byte
	// Counter is the meta-generation counter this Meta was read from or
	// will be committed at.
	Counter uint32
}

// Clone returns a deep copy of m suitable for building a commit candidate.
func (m Meta) Clone() Meta {
	out := m
	out.BackupVersionTable = append([]byte(nil), m.BackupVersionTable...)
	out.Reserved = append([]byte(nil), m.Reserved...)
	out.FEK = append([]byte(nil), m.FEK...)
	return out
}

// numBlocksPerFile is carried by the Manager: it sizes the
// backup-version-table bitmap and is an ABI-visible constant for a given
// deployment.
type Manager struct {
	km              blockio.KeyManager
	tr              blockio.Transport
	sizes           layout.Sizes
	numBlocksPerFile uint64
}

// New returns a Manager bound to the given collaborators and container
// sizing parameters.
func New(km blockio.KeyManager, tr blockio.Transport, sizes layout.Sizes, numBlocksPerFile uint64) *Manager {
	return &Manager{km: km, tr: tr, sizes: sizes, numBlocksPerFile: numBlocksPerFile}
}

func (m *Manager) tableBytes() int {
	return int((m.numBlocksPerFile + 7) / 8)
}

func (m *Manager) infoSize() int {
	// 8 bytes length + table. Reserved is not counted, so the meta slot
	// has no room for a non-empty Reserved; Create leaves it empty.
	return 8 + m.tableBytes()
}

func (m *Manager) encodeInfo(info Info) []byte {
	buf := make([]byte, m.infoSize()+len(info.Reserved))
	binary.LittleEndian.PutUint64(buf[0:8], info.Length)
	copy(buf[8:8+m.tableBytes()], info.BackupVersionTable)
	copy(buf[m.infoSize():], info.Reserved)
	return buf
}

func (m *Manager) decodeInfo(buf []byte) (Info, error) {
	if len(buf) < m.infoSize() {
		return Info{}, fmt.Errorf("objmeta: meta-info too short: %d < %d", len(buf), m.infoSize())
	}
	info := Info{
		Length:             binary.LittleEndian.Uint64(buf[0:8]),
		BackupVersionTable: append([]byte(nil), buf[8:8+m.tableBytes()]...),
		Reserved:           append([]byte(nil), buf[m.infoSize():]...),
	}
	return info, nil
}

// Create initializes a brand-new file's meta: all-ones backup-version
// table, zero length, a freshly generated FEK wrapped under uuid. It
// writes the meta to slot 0 and the initial counter (0) to the
// container, and returns the resulting in-memory Meta.
func (m *Manager) Create(fd int, uuid [16]byte) (Meta, error) {
	table := make([]byte, m.tableBytes())
	for i := range table {
		table[i] = 0xFF
	}
	fek, err := m.km.GenerateFEK(uuid)
	if err != nil {
		return Meta{}, fmt.Errorf("objmeta: create: %w", err)
	}
	info := Info{Length: 0, BackupVersionTable: table}
	plaintext := m.encodeInfo(info)

	// There is no currently-committed counter yet, so the write target
	// is whichever slot becomes active once counter 0 is live: slot 0,
	// per the active-slot invariant (meta_counter & 1 == 0 selects slot 0).
	offset := m.sizes.MetaOffset(0, true)
	if err := blockio.EncryptAndWrite(m.km, m.tr, fd, blockio.KindMeta, offset, uuid, fek, plaintext); err != nil {
		return Meta{}, fmt.Errorf("objmeta: create: write meta: %w", err)
	}
	if err := m.writeCounter(fd, 0); err != nil {
		return Meta{}, fmt.Errorf("objmeta: create: write counter: %w", err)
	}
	return Meta{Info: info, FEK: fek, Counter: 0}, nil
}

// Open reads an existing file's counter and active meta slot.
func (m *Manager) Open(fd int, uuid [16]byte) (Meta, error) {
	counter, err := m.readCounter(fd)
	if err != nil {
		return Meta{}, err
	}
	offset := m.sizes.MetaOffset(counter, true)
	plaintext, fek, ok, err := blockio.ReadAndDecrypt(m.km, m.tr, fd, blockio.KindMeta, offset, m.infoSize(), uuid, nil)
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, fmt.Errorf("%w: active meta slot is empty", blockio.ErrCorrupt)
	}
	info, err := m.decodeInfo(plaintext)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %v", blockio.ErrCorrupt, err)
	}
	return Meta{Info: info, FEK: fek, Counter: counter}, nil
}

// Commit writes candidate to the shadow meta slot (relative to the
// manager's last-known committed counter) and then, on success, writes
// the new counter value, the operation's linearization point. On any
// failure before the counter write, current is returned unchanged and
// the on-disk state is untouched.
func (m *Manager) Commit(fd int, uuid [16]byte, current Meta, candidate Meta) (Meta, error) {
	candidate.Counter = current.Counter + 1
	plaintext := m.encodeInfo(candidate.Info)
	offset := m.sizes.MetaOffset(current.Counter, false)
	if err := blockio.EncryptAndWrite(m.km, m.tr, fd, blockio.KindMeta, offset, uuid, candidate.FEK, plaintext); err != nil {
		return current, fmt.Errorf("objmeta: commit: write shadow meta: %w", err)
	}
	if err := m.writeCounter(fd, candidate.Counter); err != nil {
		return current, fmt.Errorf("objmeta: commit: write counter: %w", err)
	}
	return candidate, nil
}

func (m *Manager) readCounter(fd int) (uint32, error) {
	buf := make([]byte, layout.CounterSize)
	n, err := m.tr.ReadAt(fd, buf, 0)
	if err != nil {
		return 0, fmt.Errorf("objmeta: read counter: %w", err)
	}
	if n != layout.CounterSize {
		return 0, fmt.Errorf("%w: counter read returned %d bytes, want %d", blockio.ErrCorrupt, n, layout.CounterSize)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (m *Manager) writeCounter(fd int, counter uint32) error {
	buf := make([]byte, layout.CounterSize)
	binary.LittleEndian.PutUint32(buf, counter)
	n, err := m.tr.WriteAt(fd, buf, 0)
	if err != nil {
		return err
	}
	if n != layout.CounterSize {
		return fmt.Errorf("objmeta: short counter write: wrote %d of %d bytes", n, layout.CounterSize)
	}
	return nil
}
