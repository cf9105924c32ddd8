package secobjfs

import "errors"

// Error codes exposed to callers. MAC_INVALID never crosses this
// boundary: blockio upgrades it to blockio.ErrCorrupt, which the facade
// reports as ErrCorruptObject.
var (
	// ErrBadParameters signals invalid input: a nil/overlong path, an
	// out-of-range seek, truncate, or write.
	ErrBadParameters = errors.New("secobjfs: bad parameters")
	// ErrOutOfMemory signals scratch allocation failure.
	ErrOutOfMemory = errors.New("secobjfs: out of memory")
	// ErrItemNotFound signals the requested object does not exist.
	ErrItemNotFound = errors.New("secobjfs: item not found")
	// ErrCorruptObject signals a counter, meta, or block failed
	// authentication, or the counter field had the wrong size.
	ErrCorruptObject = errors.New("secobjfs: corrupt object")
	// ErrGeneric is the catch-all for RPC transport failures without a
	// more specific classification.
	ErrGeneric = errors.New("secobjfs: generic failure")
)
