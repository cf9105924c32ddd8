package keymanager

import (
	"bytes"
	"testing"

	"github.com/teefs/secobjfs/internal/blockio"
	"github.com/teefs/secobjfs/internal/cryptocore"
)

func testWrapKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, cryptocore.KeyLen)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestMetaRoundTrip(t *testing.T) {
	m, err := New(testWrapKey(t), cryptocore.BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	uuid := [16]byte{1, 2, 3}
	fek, err := m.GenerateFEK(uuid)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("meta-info-payload")

	ct, err := m.Encrypt(blockio.KindMeta, uuid, fek, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if len(ct) != m.HeaderSize(blockio.KindMeta)+len(plaintext) {
		t.Fatalf("ciphertext length %d, want %d", len(ct), m.HeaderSize(blockio.KindMeta)+len(plaintext))
	}

	gotPT, gotFEK, err := m.Decrypt(blockio.KindMeta, uuid, nil, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotPT, plaintext) {
		t.Fatalf("decrypted payload mismatch: got %q want %q", gotPT, plaintext)
	}
	if !bytes.Equal(gotFEK, fek) {
		t.Fatal("unwrapped FEK does not match generated FEK")
	}
}

func TestMetaTamperDetection(t *testing.T) {
	m, err := New(testWrapKey(t), cryptocore.BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	uuid := [16]byte{9}
	fek, err := m.GenerateFEK(uuid)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := m.Encrypt(blockio.KindMeta, uuid, fek, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	ct[len(ct)-1] ^= 0xFF
	if _, _, err := m.Decrypt(blockio.KindMeta, uuid, nil, ct); err != blockio.ErrMACInvalid {
		t.Fatalf("got err %v, want ErrMACInvalid", err)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	m, err := New(testWrapKey(t), cryptocore.BackendXChaCha20Poly1305)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	fek := make([]byte, cryptocore.KeyLen)
	plaintext := bytes.Repeat([]byte{0x42}, 256)

	ct, err := m.Encrypt(blockio.KindBlock, [16]byte{}, fek, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if len(ct) != m.HeaderSize(blockio.KindBlock)+len(plaintext) {
		t.Fatalf("ciphertext length %d, want %d", len(ct), m.HeaderSize(blockio.KindBlock)+len(plaintext))
	}
	gotPT, gotFEK, err := m.Decrypt(blockio.KindBlock, [16]byte{}, fek, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotPT, plaintext) {
		t.Fatal("decrypted block mismatch")
	}
	if !bytes.Equal(gotFEK, fek) {
		t.Fatal("fekOut should echo the input fek for KindBlock")
	}
}

func TestBlockTamperDetection(t *testing.T) {
	m, err := New(testWrapKey(t), cryptocore.BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	fek := make([]byte, cryptocore.KeyLen)
	ct, err := m.Encrypt(blockio.KindBlock, [16]byte{}, fek, bytes.Repeat([]byte{0xAA}, 256))
	if err != nil {
		t.Fatal(err)
	}
	ct[0] ^= 0x01
	if _, _, err := m.Decrypt(blockio.KindBlock, [16]byte{}, fek, ct); err != blockio.ErrMACInvalid {
		t.Fatalf("got err %v, want ErrMACInvalid", err)
	}
}
