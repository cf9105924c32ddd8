package cryptocore

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeyLen)
	if _, err := rand.Read(k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestAESGCMRoundTrip(t *testing.T) {
	cc, err := New(testKey(t), BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("0123456789abcdef")
	ad := []byte("associated-data")
	nonce := cc.IVGen.Get()
	ct := cc.AEADCipher.Seal(nil, nonce, plaintext, ad)
	pt, err := cc.AEADCipher.Open(nil, nonce, ct, ad)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestXChaCha20Poly1305RoundTrip(t *testing.T) {
	cc, err := New(testKey(t), BackendXChaCha20Poly1305)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := bytes.Repeat([]byte{0x42}, 256)
	ad := []byte("ad")
	nonce := cc.IVGen.Get()
	ct := cc.AEADCipher.Seal(nil, nonce, plaintext, ad)
	pt, err := cc.AEADCipher.Open(nil, nonce, ct, ad)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Error("round trip mismatch")
	}
}

func TestTamperDetection(t *testing.T) {
	cc, err := New(testKey(t), BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	nonce := cc.IVGen.Get()
	ct := cc.AEADCipher.Seal(nil, nonce, []byte("secret"), nil)
	ct[0] ^= 0xFF
	if _, err := cc.AEADCipher.Open(nil, nonce, ct, nil); err == nil {
		t.Fatal("expected MAC failure on tampered ciphertext")
	}
}

func TestIVGeneratorUnique(t *testing.T) {
	cc, err := New(testKey(t), BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for i := 0; i < 512; i++ {
		iv := cc.IVGen.Get()
		if len(iv) != cc.IVLen {
			t.Fatalf("wrong IV length: %d", len(iv))
		}
		key := string(iv)
		if seen[key] {
			t.Fatal("duplicate IV generated")
		}
		seen[key] = true
	}
}

func TestWipeClearsCipher(t *testing.T) {
	cc, err := New(testKey(t), BackendAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	cc.Wipe()
	if cc.AEADCipher != nil || cc.IVGen != nil {
		t.Error("Wipe should drop references to key material")
	}
}
