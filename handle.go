package secobjfs

import (
	"errors"
	"fmt"

	"github.com/teefs/secobjfs/internal/blockio"
	"github.com/teefs/secobjfs/internal/objmeta"
	"github.com/teefs/secobjfs/internal/rangeio"
)

type handleState int

const (
	handleOpen handleState = iota
	handleClosed
)

// Whence selects the reference point for Seek, mirroring POSIX lseek.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Handle is an open secure object: a meta snapshot, a cursor position,
// and the RPC descriptor for the backing file. It is mutated only by its
// owning caller; callers are responsible for serializing operations
// against a single Handle.
type Handle struct {
	eng   *Engine
	path  string
	fd    int
	meta  objmeta.Meta
	uuid  [16]byte
	pos   int64
	state handleState
}

// Close releases the RPC descriptor and retires the handle. Other calls
// on a closed Handle return ErrBadParameters; a repeated Close returns nil.
func (h *Handle) Close() error {
	if h.state == handleClosed {
		return nil
	}
	h.state = handleClosed
	delete(h.eng.handles, h.path)
	if err := h.eng.tr.Close(h.fd); err != nil {
		return fmt.Errorf("%w: close %q: %v", ErrGeneric, h.path, err)
	}
	return nil
}

func (h *Handle) checkOpen() error {
	if h.state != handleOpen {
		return fmt.Errorf("%w: handle is closed", ErrBadParameters)
	}
	return nil
}

// Length returns the object's current logical length.
func (h *Handle) Length() int64 {
	return int64(h.meta.Length)
}

// Counter returns the meta-generation counter last committed for this
// handle.
func (h *Handle) Counter() uint32 {
	return h.meta.Counter
}

// Read reads up to len(buf) bytes starting at the handle's cursor,
// clamped to the object's length, and advances the cursor by the number
// of bytes actually read.
func (h *Handle) Read(buf []byte) (int, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	if h.pos > int64(h.meta.Length) {
		return 0, nil
	}
	remaining := int64(h.meta.Length) - h.pos
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	if n <= 0 {
		return 0, nil
	}
	got, err := rangeio.ReadRange(h.eng.block, h.fd, h.uuid, h.meta, h.pos, n)
	if err != nil {
		if errors.Is(err, blockio.ErrCorrupt) {
			return 0, ErrCorruptObject
		}
		return 0, fmt.Errorf("%w: read: %v", ErrGeneric, err)
	}
	copy(buf, got)
	h.pos += int64(len(got))
	return len(got), nil
}

// Write writes len(data) bytes at the handle's cursor and advances it.
// If the cursor is past the current length, the gap is zero-filled by an
// internal truncate-extend committed before the write's own commit; a
// crash between the two exposes a zero-filled-but-dataless file at the
// new length, which is within the contract (there was no prior guarantee
// about content past a bare seek).
func (h *Handle) Write(data []byte) (int, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	maxSize := h.eng.cfg.MaxFileSize()
	end := h.pos + int64(len(data))
	if end < h.pos || end > maxSize {
		return 0, fmt.Errorf("%w: write would exceed max object size", ErrBadParameters)
	}

	if int64(h.meta.Length) < h.pos {
		if err := h.truncateExtend(h.pos); err != nil {
			return 0, err
		}
	}

	candidate := h.meta.Clone()
	if err := rangeio.WriteRange(h.eng.block, h.fd, h.uuid, &candidate, h.pos, data, int64(len(data))); err != nil {
		return 0, fmt.Errorf("%w: write: %v", ErrGeneric, err)
	}
	committed, err := h.eng.meta.Commit(h.fd, h.uuid, h.meta, candidate)
	if err != nil {
		return 0, fmt.Errorf("%w: commit write: %v", ErrGeneric, err)
	}
	h.meta = committed
	h.pos = end
	return len(data), nil
}

// Seek repositions the cursor. Seeking past the current length is legal
// and creates no storage until a subsequent write.
func (h *Handle) Seek(offset int64, whence Whence) (int64, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	var newPos int64
	switch whence {
	case SeekSet:
		newPos = offset
	case SeekCur:
		newPos = h.pos + offset
	case SeekEnd:
		newPos = int64(h.meta.Length) + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrBadParameters, whence)
	}
	if newPos < 0 {
		newPos = 0
	}
	if newPos > h.eng.cfg.MaxFileSize() {
		return 0, fmt.Errorf("%w: seek target exceeds max object size", ErrBadParameters)
	}
	h.pos = newPos
	return h.pos, nil
}

// Truncate resizes the object to newLen. Extending zero-fills the new
// tail; shrinking leaves stale blocks in place untouched (they are
// simply no longer reachable past the new length).
func (h *Handle) Truncate(newLen int64) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if newLen < 0 || newLen > h.eng.cfg.MaxFileSize() {
		return fmt.Errorf("%w: truncate target out of range", ErrBadParameters)
	}
	return h.truncateExtend(newLen)
}

// truncateExtend implements both the public Truncate and the internal
// extend-before-write path: copy the meta, set length, zero-fill the
// newly-visible tail when growing, and commit.
func (h *Handle) truncateExtend(newLen int64) error {
	candidate := h.meta.Clone()
	oldLen := int64(candidate.Length)
	candidate.Length = uint64(newLen)
	if newLen > oldLen {
		if err := rangeio.WriteRange(h.eng.block, h.fd, h.uuid, &candidate, oldLen, nil, newLen-oldLen); err != nil {
			return fmt.Errorf("%w: truncate-extend: %v", ErrGeneric, err)
		}
		candidate.Length = uint64(newLen)
	}
	committed, err := h.eng.meta.Commit(h.fd, h.uuid, h.meta, candidate)
	if err != nil {
		return fmt.Errorf("%w: commit truncate: %v", ErrGeneric, err)
	}
	h.meta = committed
	return nil
}

// Fsync requires a live handle and passes through to the RPC transport.
func (h *Handle) Fsync() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.eng.tr.Fsync(h.fd); err != nil {
		return fmt.Errorf("%w: fsync %q: %v", ErrGeneric, h.path, err)
	}
	return nil
}
