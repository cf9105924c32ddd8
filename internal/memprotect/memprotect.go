// Package memprotect provides best-effort memory protection for the
// sensitive key material a handle holds while open: the FEK, the
// session-wrapping key derived by internal/kdf, and any CryptoCore
// scratch buffers. It locks pages against swap (mlock) and excludes them
// from core dumps (MADV_DONTDUMP) where the platform supports it, and
// always supports secure zeroing regardless of platform.
package memprotect

import (
	"crypto/rand"
	"runtime"
	"syscall"
	"unsafe"
)

// MemoryProtection tracks the memory regions locked through it so they
// can be released on Cleanup.
type MemoryProtection struct {
	lockedPages []unsafe.Pointer
	enabled     bool
}

// New creates a new MemoryProtection instance with protection enabled.
func New() *MemoryProtection {
	return &MemoryProtection{enabled: true}
}

// Cleanup unlocks all tracked memory regions. Best-effort: some systems
// require the original size to unlock, which this struct does not keep,
// so this call may be a partial no-op on those platforms.
func (mp *MemoryProtection) Cleanup() {
	for _, ptr := range mp.lockedPages {
		munlock(ptr, 0)
	}
	mp.lockedPages = mp.lockedPages[:0]
}

// Disable turns protection off; LockMemory becomes a no-op.
func (mp *MemoryProtection) Disable() {
	mp.enabled = false
}

// IsEnabled reports whether protection is active.
func (mp *MemoryProtection) IsEnabled() bool {
	return mp.enabled
}

// PageSize returns the system page size.
func PageSize() int {
	return syscall.Getpagesize()
}

// AllocatePageAligned allocates a buffer whose backing array is rounded
// up to a whole number of pages and locks it. The start address is not
// aligned to a page boundary beyond what the Go allocator happens to give.
func (mp *MemoryProtection) AllocatePageAligned(size int) []byte {
	if !mp.enabled {
		return make([]byte, size)
	}
	pageSize := PageSize()
	alignedSize := ((size + pageSize - 1) / pageSize) * pageSize
	data := make([]byte, alignedSize)
	mp.LockMemory(data)
	return data[:size]
}

// SecureZero overwrites data with zeros.
func SecureZero(data []byte) {
	if len(data) == 0 {
		return
	}
	defer runtime.KeepAlive(data)
	for i := range data {
		data[i] = 0
	}
}

// SecureRandom overwrites data with fresh random bytes, useful for
// destroying a key in place before it is dropped.
func SecureRandom(data []byte) {
	if len(data) == 0 {
		return
	}
	defer runtime.KeepAlive(data)
	if _, err := rand.Read(data); err != nil {
		for i := range data {
			data[i] = byte(i)
		}
	}
}
