package keyledgerconst

const (
	// NoPreviousKey is the old index reported by rotateKey when the caller's
	// history was empty before the call.
	NoPreviousKey = -1

	// ErrOutOfRange is returned on access to an index outside of the owner's
	// history.
	ErrOutOfRange = "index out of range"

	// ErrAlreadyRevoked is returned on an attempt to revoke an entry that has
	// already been revoked.
	ErrAlreadyRevoked = "key already revoked"
)
