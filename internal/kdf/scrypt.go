package kdf

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"github.com/teefs/secobjfs/internal/cryptocore"
)

const (
	// ScryptDefaultLogN is the default scrypt logN configuration parameter.
	// N=2^17 uses 128MB of memory.
	ScryptDefaultLogN = 17

	scryptMinR      = 8
	scryptMinP      = 1
	scryptMinLogN   = 10
	scryptMinSaltLen = 32
)

// ScryptKDF is an instance of the scrypt key derivation function, kept
// alongside Argon2id so containers created by older configurations
// remain derivable.
type ScryptKDF struct {
	Salt   []byte
	N      int
	R      int
	P      int
	KeyLen int
}

// NewScryptKDF returns a new ScryptKDF with a fresh random salt. logN<=0
// selects ScryptDefaultLogN.
func NewScryptKDF(logN int) (ScryptKDF, error) {
	salt := make([]byte, cryptocore.KeyLen)
	if _, err := rand.Read(salt); err != nil {
		return ScryptKDF{}, err
	}
	n := ScryptDefaultLogN
	if logN > 0 {
		n = logN
	}
	return ScryptKDF{
		Salt:   salt,
		N:      1 << uint(n),
		R:      8,
		P:      1,
		KeyLen: cryptocore.KeyLen,
	}, nil
}

// DeriveKey returns a new key derived from pw using scrypt.
func (s *ScryptKDF) DeriveKey(pw []byte) ([]byte, error) {
	if err := s.validateParams(); err != nil {
		return nil, err
	}
	return scrypt.Key(pw, s.Salt, s.N, s.R, s.P, s.KeyLen)
}

func (s *ScryptKDF) validateParams() error {
	minN := 1 << scryptMinLogN
	if s.N < minN {
		return fmt.Errorf("kdf: scrypt N below minimum: value=%d, min=%d", s.N, minN)
	}
	if s.R < scryptMinR {
		return fmt.Errorf("kdf: scrypt R below minimum: value=%d, min=%d", s.R, scryptMinR)
	}
	if s.P < scryptMinP {
		return fmt.Errorf("kdf: scrypt P below minimum: value=%d, min=%d", s.P, scryptMinP)
	}
	if len(s.Salt) < scryptMinSaltLen {
		return fmt.Errorf("kdf: scrypt salt length below minimum: value=%d, min=%d", len(s.Salt), scryptMinSaltLen)
	}
	if s.KeyLen < cryptocore.KeyLen {
		return fmt.Errorf("kdf: scrypt KeyLen below minimum: value=%d, min=%d", s.KeyLen, cryptocore.KeyLen)
	}
	return nil
}
