package reetransport

import (
	"fmt"
	"sync"
)

// Fake is an in-memory blockio.Transport backed by byte slices, for tests
// that need deterministic crash injection (drop writes after a point) or
// bit-flip tampering without touching a real filesystem.
type Fake struct {
	mu    sync.Mutex
	files map[string][]byte
	open  map[int]string
	next  int

	// DropWritesAfter, if non-zero, silently discards (but reports as
	// successful) every WriteAt call whose sequence number is strictly
	// greater than this value, simulating a crash mid-stream. Sequence
	// numbers start at 1 and increment on every WriteAt across all fds.
	DropWritesAfter int
	writeSeq        int
}

// NewFake returns an empty in-memory transport.
func NewFake() *Fake {
	return &Fake{
		files: make(map[string][]byte),
		open:  make(map[int]string),
	}
}

// Open implements blockio.Transport.
func (f *Fake) Open(path string, create bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.files[path]
	if create {
		if exists {
			return -1, fmt.Errorf("reetransport: fake: %s already exists", path)
		}
		f.files[path] = nil
	} else if !exists {
		return -1, fmt.Errorf("reetransport: fake: %s does not exist", path)
	}
	fd := f.next
	f.next++
	f.open[fd] = path
	return fd, nil
}

// Close implements blockio.Transport.
func (f *Fake) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.open[fd]; !ok {
		return fmt.Errorf("reetransport: fake: close of unknown fd %d", fd)
	}
	delete(f.open, fd)
	return nil
}

// ReadAt implements blockio.Transport.
func (f *Fake) ReadAt(fd int, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.open[fd]
	if !ok {
		return 0, fmt.Errorf("reetransport: fake: unknown fd %d", fd)
	}
	data := f.files[path]
	if offset < 0 || offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	return n, nil
}

// WriteAt implements blockio.Transport. If DropWritesAfter is set and
// this call's sequence number exceeds it, the bytes are not applied but
// the call still reports success, simulating a crash the caller cannot
// detect until the next read.
func (f *Fake) WriteAt(fd int, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.open[fd]
	if !ok {
		return 0, fmt.Errorf("reetransport: fake: unknown fd %d", fd)
	}
	f.writeSeq++
	if f.DropWritesAfter != 0 && f.writeSeq > f.DropWritesAfter {
		return len(buf), nil
	}
	data := f.files[path]
	end := offset + int64(len(buf))
	if int64(len(data)) < end {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[offset:end], buf)
	f.files[path] = data
	return len(buf), nil
}

// Rename implements blockio.Transport.
func (f *Fake) Rename(oldPath, newPath string, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[oldPath]
	if !ok {
		return fmt.Errorf("reetransport: fake: %s does not exist", oldPath)
	}
	if _, exists := f.files[newPath]; exists && !overwrite {
		return fmt.Errorf("reetransport: fake: %s already exists", newPath)
	}
	f.files[newPath] = data
	delete(f.files, oldPath)
	return nil
}

// Remove implements blockio.Transport.
func (f *Fake) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		return fmt.Errorf("reetransport: fake: %s does not exist", path)
	}
	delete(f.files, path)
	return nil
}

// Fsync implements blockio.Transport. Everything is already "durable" in
// memory, so this is a no-op once the fd is validated.
func (f *Fake) Fsync(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.open[fd]; !ok {
		return fmt.Errorf("reetransport: fake: unknown fd %d", fd)
	}
	return nil
}

// WriteSeqForTest returns the sequence number of the most recent
// WriteAt call, so a test can set DropWritesAfter to "everything from
// here on" without hard-coding how many writes a setup phase performed.
func (f *Fake) WriteSeqForTest() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeSeq
}

// FlipBit flips one bit in the stored bytes of path at byteOffset, for
// tamper-detection tests. Panics if path is unknown or the offset is out
// of range — test helper, not production code.
func (f *Fake) FlipBit(path string, byteOffset int64, bit uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok || byteOffset < 0 || byteOffset >= int64(len(data)) {
		panic(fmt.Sprintf("reetransport: fake: FlipBit out of range for %s at %d", path, byteOffset))
	}
	data[byteOffset] ^= 1 << bit
}
