// Package session is a reference implementation of the session accessor
// collaborator (S): it yields the identity used to wrap a FEK at create
// time. In a TEE this identity normally comes from the calling Trusted
// Application's instance UUID; here it is an injectable value so tests
// and cmd/secobjctl can supply one without a real TEE runtime underneath.
package session

// Info describes the currently active session.
type Info struct {
	UUID [16]byte
}

// Accessor is the reference collaborator S.
type Accessor interface {
	CurrentSession() Info
}

// Static is an Accessor that always returns the same Info, suitable for
// a single-session process such as secobjctl or a test harness.
type Static struct {
	info Info
}

// NewStatic returns a Static accessor that always reports uuid.
func NewStatic(uuid [16]byte) Static {
	return Static{info: Info{UUID: uuid}}
}

// CurrentSession implements Accessor.
func (s Static) CurrentSession() Info {
	return s.info
}
