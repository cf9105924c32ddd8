// Package kdf derives the session-wrapping key the reference key manager
// (internal/keymanager) uses to wrap/unwrap FEKs. It never touches the
// container format; it is a pure password/passphrase -> key function,
// grounded on the teacher's internal/configfile.
package kdf

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/teefs/secobjfs/internal/cryptocore"
)

const (
	// Argon2idDefaultMemory is the default memory usage in KB (64MB).
	Argon2idDefaultMemory = 64 * 1024
	// Argon2idDefaultIterations is the default number of iterations.
	Argon2idDefaultIterations = 3
	// Argon2idDefaultParallelism is the default parallelism factor.
	Argon2idDefaultParallelism = 4

	argon2idMinMemory      = 16 * 1024
	argon2idMinIterations  = 1
	argon2idMinParallelism = 1
	argon2idMinSaltLen     = 16
)

// Argon2idKDF is an instance of the Argon2id key derivation function.
type Argon2idKDF struct {
	Salt        []byte
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLen      uint32
}

// NewArgon2idKDF returns an Argon2idKDF with secure defaults and a fresh
// random salt.
func NewArgon2idKDF() (Argon2idKDF, error) {
	salt := make([]byte, cryptocore.KeyLen)
	if _, err := rand.Read(salt); err != nil {
		return Argon2idKDF{}, err
	}
	return Argon2idKDF{
		Salt:        salt,
		Memory:      Argon2idDefaultMemory,
		Iterations:  Argon2idDefaultIterations,
		Parallelism: Argon2idDefaultParallelism,
		KeyLen:      cryptocore.KeyLen,
	}, nil
}

// DeriveKey returns a new key derived from pw using Argon2id. It returns
// an error instead of exiting the process: this package is linked into a
// library, and a library must never call os.Exit.
func (a *Argon2idKDF) DeriveKey(pw []byte) ([]byte, error) {
	if err := a.validateParams(); err != nil {
		return nil, err
	}
	return argon2.IDKey(pw, a.Salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLen), nil
}

func (a *Argon2idKDF) validateParams() error {
	if a.Memory < argon2idMinMemory {
		return fmt.Errorf("kdf: argon2id memory below minimum: value=%d KB, min=%d KB", a.Memory, argon2idMinMemory)
	}
	if a.Iterations < argon2idMinIterations {
		return fmt.Errorf("kdf: argon2id iterations below minimum: value=%d, min=%d", a.Iterations, argon2idMinIterations)
	}
	if a.Parallelism < argon2idMinParallelism {
		return fmt.Errorf("kdf: argon2id parallelism below minimum: value=%d, min=%d", a.Parallelism, argon2idMinParallelism)
	}
	if len(a.Salt) < argon2idMinSaltLen {
		return fmt.Errorf("kdf: argon2id salt length below minimum: value=%d, min=%d", len(a.Salt), argon2idMinSaltLen)
	}
	if a.KeyLen < cryptocore.KeyLen {
		return fmt.Errorf("kdf: argon2id key length below minimum: value=%d, min=%d", a.KeyLen, cryptocore.KeyLen)
	}
	return nil
}
