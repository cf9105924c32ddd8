package rangeio

import (
	"bytes"
	"testing"

	"github.com/teefs/secobjfs/internal/blockengine"
	"github.com/teefs/secobjfs/internal/cryptocore"
	"github.com/teefs/secobjfs/internal/keymanager"
	"github.com/teefs/secobjfs/internal/layout"
	"github.com/teefs/secobjfs/internal/objmeta"
	"github.com/teefs/secobjfs/internal/reetransport"
)

func newTestEngine(t *testing.T) (*blockengine.Engine, *objmeta.Manager, *reetransport.Fake, int, [16]byte) {
	t.Helper()
	km, err := keymanager.New(bytes.Repeat([]byte{0x11}, cryptocore.KeyLen), cryptocore.BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	tr := reetransport.NewFake()
	sizes := layout.Sizes{
		HMeta:        km.HeaderSize(0),
		HBlock:       km.HeaderSize(1),
		MetaInfoSize: 8 + 2, // 16 blocks worth of bitmap for this test
	}
	mm := objmeta.New(km, tr, sizes, 16)
	eng := blockengine.New(km, tr, sizes)
	uuid := [16]byte{7}
	fd, err := tr.Open("/obj/test", true)
	if err != nil {
		t.Fatal(err)
	}
	return eng, mm, tr, fd, uuid
}

func TestWriteRangeThenReadRangeRoundTrip(t *testing.T) {
	eng, mm, _, fd, uuid := newTestEngine(t)
	meta, err := mm.Create(fd, uuid)
	if err != nil {
		t.Fatal(err)
	}
	candidate := meta.Clone()
	// Zero-fill [0, 300) first, as the facade's truncate-extend does before
	// a write past the end: a slot inside the file that was never written
	// reads back as zero bytes on disk, which fail authentication.
	if err := WriteRange(eng, fd, uuid, &candidate, 0, nil, 300); err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{0x5A}, 10)
	if err := WriteRange(eng, fd, uuid, &candidate, 300, data, int64(len(data))); err != nil {
		t.Fatal(err)
	}
	if candidate.Length != 310 {
		t.Fatalf("length = %d, want 310", candidate.Length)
	}
	committed, err := mm.Commit(fd, uuid, meta, candidate)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ReadRange(eng, fd, uuid, committed, 0, 310)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 310 {
		t.Fatalf("read length %d, want 310", len(got))
	}
	for i := 0; i < 300; i++ {
		if got[i] != 0 {
			t.Fatalf("byte %d = %#x, want 0 (zero-filled hole)", i, got[i])
		}
	}
	if !bytes.Equal(got[300:310], data) {
		t.Fatalf("tail mismatch: got %x want %x", got[300:310], data)
	}
}

func TestWriteRangeZeroFillExtend(t *testing.T) {
	eng, mm, _, fd, uuid := newTestEngine(t)
	meta, err := mm.Create(fd, uuid)
	if err != nil {
		t.Fatal(err)
	}
	candidate := meta.Clone()
	if err := WriteRange(eng, fd, uuid, &candidate, 0, nil, 512); err != nil {
		t.Fatal(err)
	}
	if candidate.Length != 512 {
		t.Fatalf("length = %d, want 512", candidate.Length)
	}
	got, err := ReadRange(eng, fd, uuid, candidate, 0, 512)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestWriteRangePartialBlockPatch(t *testing.T) {
	eng, mm, _, fd, uuid := newTestEngine(t)
	meta, err := mm.Create(fd, uuid)
	if err != nil {
		t.Fatal(err)
	}
	candidate := meta.Clone()
	full := bytes.Repeat([]byte{0x55}, 256)
	if err := WriteRange(eng, fd, uuid, &candidate, 0, full, 256); err != nil {
		t.Fatal(err)
	}
	committed, err := mm.Commit(fd, uuid, meta, candidate)
	if err != nil {
		t.Fatal(err)
	}

	candidate2 := committed.Clone()
	patch := bytes.Repeat([]byte{0xFF}, 10)
	if err := WriteRange(eng, fd, uuid, &candidate2, 100, patch, 10); err != nil {
		t.Fatal(err)
	}
	committed2, err := mm.Commit(fd, uuid, committed, candidate2)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ReadRange(eng, fd, uuid, committed2, 0, 256)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte(nil), full...)
	copy(want[100:110], patch)
	if !bytes.Equal(got, want) {
		t.Fatalf("mismatch:\ngot  %x\nwant %x", got, want)
	}
	if committed2.Counter != 2 {
		t.Fatalf("counter = %d, want 2", committed2.Counter)
	}
}
