package secobjfs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/teefs/secobjfs/internal/cryptocore"
	"github.com/teefs/secobjfs/internal/keymanager"
	"github.com/teefs/secobjfs/internal/reetransport"
	"github.com/teefs/secobjfs/internal/session"
)

func newTestEngine(t *testing.T) (*Engine, *reetransport.Fake) {
	t.Helper()
	km, err := keymanager.New(bytes.Repeat([]byte{0x99}, cryptocore.KeyLen), cryptocore.BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	tr := reetransport.NewFake()
	sess := session.NewStatic([16]byte{1, 2, 3, 4})
	eng := New(km, tr, sess, Config{NumBlocksPerFile: 64}, StorageTypeDefault)
	return eng, tr
}

// S1: create, write 3 bytes at pos 0, close, reopen, read back.
func TestScenarioS1CreateWriteReopenRead(t *testing.T) {
	eng, _ := newTestEngine(t)
	h, err := eng.Create("/obj/a")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x02, 0x03}
	if n, err := h.Write(want); err != nil || n != len(want) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	h2, err := eng.Open("/obj/a")
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Close()
	if h2.Length() != 3 {
		t.Fatalf("length = %d, want 3", h2.Length())
	}
	if h2.Counter() != 1 {
		t.Fatalf("counter = %d, want 1", h2.Counter())
	}
	got := make([]byte, 3)
	if n, err := h2.Read(got); err != nil || n != 3 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %x, want %x", got, want)
	}
}

// S2: seek past the end and write one byte; the gap reads back as zero.
func TestScenarioS2WriteAtOffsetZeroFillsHole(t *testing.T) {
	eng, _ := newTestEngine(t)
	h, err := eng.Create("/obj/b")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.Seek(300, SeekSet); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte{0xAA}); err != nil {
		t.Fatal(err)
	}
	if h.Length() != 301 {
		t.Fatalf("length = %d, want 301", h.Length())
	}

	got := make([]byte, 301)
	if _, err := h.Seek(0, SeekSet); err != nil {
		t.Fatal(err)
	}
	if n, err := h.Read(got); err != nil || n != 301 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	for i := 0; i < 300; i++ {
		if got[i] != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, got[i])
		}
	}
	if got[300] != 0xAA {
		t.Fatalf("byte 300 = %#x, want 0xAA", got[300])
	}
}

// S3: write a full block, then patch 10 bytes in the middle.
func TestScenarioS3PartialOverwrite(t *testing.T) {
	eng, _ := newTestEngine(t)
	h, err := eng.Create("/obj/c")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	full := bytes.Repeat([]byte{0x55}, 256)
	if _, err := h.Write(full); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Seek(100, SeekSet); err != nil {
		t.Fatal(err)
	}
	patch := bytes.Repeat([]byte{0xFF}, 10)
	if _, err := h.Write(patch); err != nil {
		t.Fatal(err)
	}

	want := append([]byte(nil), full...)
	copy(want[100:110], patch)
	got := make([]byte, 256)
	if _, err := h.Seek(0, SeekSet); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Read(got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("mismatch:\ngot  %x\nwant %x", got, want)
	}
	if h.Counter() != 2 {
		t.Fatalf("counter = %d, want 2", h.Counter())
	}
}

// S4: write, truncate down, then truncate back up; the regrown region
// must read back as zero, not the stale bytes that used to live there.
func TestScenarioS4TruncateDownThenUp(t *testing.T) {
	eng, _ := newTestEngine(t)
	h, err := eng.Create("/obj/d")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	data := bytes.Repeat([]byte{0x7E}, 512)
	if _, err := h.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := h.Truncate(100); err != nil {
		t.Fatal(err)
	}
	if h.Length() != 100 {
		t.Fatalf("length = %d, want 100", h.Length())
	}

	got := make([]byte, 1000)
	if _, err := h.Seek(0, SeekSet); err != nil {
		t.Fatal(err)
	}
	n, err := h.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if n != 100 {
		t.Fatalf("read n = %d, want 100", n)
	}
	if !bytes.Equal(got[:100], data[:100]) {
		t.Fatal("prefix after shrink must match the original data")
	}

	if err := h.Truncate(200); err != nil {
		t.Fatal(err)
	}
	got2 := make([]byte, 100)
	if _, err := h.Seek(100, SeekSet); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Read(got2); err != nil {
		t.Fatal(err)
	}
	for i, b := range got2 {
		if b != 0 {
			t.Fatalf("regrown byte %d = %#x, want 0", i, b)
		}
	}
}

// S5: a crash that drops the counter write of a commit but not its
// shadow-meta write must leave the container at the prior committed
// state, not a half-applied one.
func TestScenarioS5CrashDuringSecondWriteCommit(t *testing.T) {
	eng, tr := newTestEngine(t)
	h, err := eng.Create("/obj/e")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte{0x11}); err != nil {
		t.Fatal(err)
	}
	if h.Counter() != 1 {
		t.Fatalf("counter after first write = %d, want 1", h.Counter())
	}

	// The second write touches the same block (one WriteBlock call) and
	// then commits (shadow-meta write, counter write). Allow exactly the
	// block write and the shadow-meta write through and drop the
	// counter write, simulating a crash at the exact point spec
	// scenario S5 describes.
	seqBefore := tr.WriteSeqForTest()
	tr.DropWritesAfter = seqBefore + 2
	if _, err := h.Seek(1, SeekSet); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte{0x22}); err != nil {
		t.Fatal(err)
	}
	h.Close()

	reopened, err := eng.Open("/obj/e")
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Counter() != 1 {
		t.Fatalf("counter after crash-reopen = %d, want 1 (the dropped commit never happened)", reopened.Counter())
	}
	got := make([]byte, 2)
	if _, err := reopened.Read(got); err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x11 {
		t.Fatalf("byte 0 = %#x, want 0x11 (state after the first, successfully committed write)", got[0])
	}
	if got[1] != 0 {
		t.Fatalf("byte 1 = %#x, want 0 (the second write's commit never landed)", got[1])
	}
}

// S6: a flipped bit in the active meta slot fails Open; a flipped bit in
// an active block slot still lets Open succeed but fails the Read that
// touches that block.
func TestScenarioS6TamperedMetaAndBlockAreDetected(t *testing.T) {
	eng, tr := newTestEngine(t)
	h, err := eng.Create("/obj/f")
	if err != nil {
		t.Fatal(err)
	}
	// 1024 bytes spans blocks 0-3 exactly, so block 3 is fully written
	// and has real ciphertext to tamper with.
	if _, err := h.Write(bytes.Repeat([]byte{0x01}, 1024)); err != nil {
		t.Fatal(err)
	}
	metaOffset := eng.sizes.MetaOffset(h.meta.Counter, true)
	blockOffset := eng.sizes.BlockOffset(h.meta.BackupVersionTable, 3, true)
	h.Close()

	tr.FlipBit("/obj/f", metaOffset, 0)
	if _, err := eng.Open("/obj/f"); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("open after meta tamper: got %v, want ErrCorruptObject", err)
	}

	// Undo the meta tamper and instead corrupt block 3.
	tr.FlipBit("/obj/f", metaOffset, 0)
	tr.FlipBit("/obj/f", blockOffset, 0)

	h2, err := eng.Open("/obj/f")
	if err != nil {
		t.Fatalf("open after block tamper should succeed: %v", err)
	}
	defer h2.Close()
	if _, err := h2.Seek(3*256, SeekSet); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 256)
	if _, err := h2.Read(buf); !errors.Is(err, ErrCorruptObject) {
		t.Fatalf("read of tampered block 3: got %v, want ErrCorruptObject", err)
	}
}
