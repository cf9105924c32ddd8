package secobjfs

// StorageType identifies this engine to higher layers. When the
// transport-class toggle selects an RPMB-backed RPC transport instead of
// the default one, the identifier's high byte shifts by one: a pure
// namespace flag, not a format change.
type StorageType uint32

const (
	// StorageTypeDefault identifies the engine when backed by the
	// default RPC transport class.
	StorageTypeDefault StorageType = 0x00000001
	// StorageTypeRPMB identifies the engine when backed by an
	// RPMB-class RPC transport.
	StorageTypeRPMB StorageType = 0x01000001
)
