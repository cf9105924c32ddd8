package kdf

import "testing"

func TestArgon2idDeriveKeyDeterministic(t *testing.T) {
	a, err := NewArgon2idKDF()
	if err != nil {
		t.Fatal(err)
	}
	k1, err := a.DeriveKey([]byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	k2, err := a.DeriveKey([]byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(k1) != int(a.KeyLen) {
		t.Fatalf("got key length %d, want %d", len(k1), a.KeyLen)
	}
	for i := range k1 {
		if k1[i] != k2[i] {
			t.Fatal("same salt+password must derive the same key")
		}
	}
}

func TestArgon2idRejectsWeakParams(t *testing.T) {
	a, err := NewArgon2idKDF()
	if err != nil {
		t.Fatal(err)
	}
	a.Iterations = 0
	if _, err := a.DeriveKey([]byte("pw")); err == nil {
		t.Fatal("expected validation error for zero iterations")
	}
}

func TestScryptDeriveKeyDeterministic(t *testing.T) {
	s, err := NewScryptKDF(scryptMinLogN)
	if err != nil {
		t.Fatal(err)
	}
	k1, err := s.DeriveKey([]byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	k2, err := s.DeriveKey([]byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if string(k1) != string(k2) {
		t.Fatal("same salt+password must derive the same key")
	}
}

func TestScryptRejectsWeakParams(t *testing.T) {
	s, err := NewScryptKDF(scryptMinLogN)
	if err != nil {
		t.Fatal(err)
	}
	s.R = 1
	if _, err := s.DeriveKey([]byte("pw")); err == nil {
		t.Fatal("expected validation error for weak R")
	}
}
