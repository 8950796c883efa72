package keyledger

import (
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/iterator"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/management"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/std"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
	"github.com/nspcc-dev/neo-go/pkg/interop/storage"
	"github.com/keyledger/keyledger-contract/common"
	"github.com/keyledger/keyledger-contract/contracts/keyledger/keyledgerconst"
)

type (
	// KeyEntry is a single registered key instance in an owner's history.
	KeyEntry struct {
		// Raw key material, opaque to the contract.
		PublicKey []byte
		// Algorithm identifier, not validated against any enum.
		Alg string
		// Block timestamp (ms) of the registering transaction.
		RegisteredAt int
		// Timestamp (ms) after which the entry can't be active, 0 means
		// the entry never expires.
		ExpiresAt int
		// Revocation flag, set at most once.
		Revoked bool
	}

	// ActiveKey is a result of the getActiveKey method. Found is false and
	// the rest of the fields are zero if the owner has no active key.
	ActiveKey struct {
		PublicKey    []byte
		Alg          string
		RegisteredAt int
		ExpiresAt    int
		Revoked      bool
		Found        bool
	}

	// Rotation is a result of the rotateKey method. OldIndex is
	// [keyledgerconst.NoPreviousKey] if the history was empty before the
	// rotation.
	Rotation struct {
		OldIndex int
		NewIndex int
	}
)

const (
	countPrefix = 'c'
	entryPrefix = 'k'
)

// nolint:deadcode,unused
func _deploy(data any, isUpdate bool) {
	if isUpdate {
		args := data.([]any)
		version := args[len(args)-1].(int)

		common.CheckVersion(version)

		return
	}

	runtime.Log("key ledger contract initialized")
}

// Update method updates contract source code and manifest. It can be invoked
// only by committee.
func Update(nefFile, manifest []byte, data any) {
	if !common.HasUpdateAccess() {
		panic("only committee can update contract")
	}

	contract.Call(interop.Hash160(management.Hash), "update",
		contract.All, nefFile, manifest, common.AppendVersion(data))
	runtime.Log("key ledger contract updated")
}

// RegisterKey appends a new key entry to the history of the transaction
// sender and returns the index of the new entry. The public key is stored
// as is, the contract performs no format or algorithm validation beyond
// requiring non-empty key material. ExpiresAt is a timestamp in milliseconds,
// 0 disables expiration.
//
// It produces KeyRegistered notification.
func RegisterKey(publicKey []byte, alg string, expiresAt int) int {
	checkKeyArgs("registerKey", publicKey, expiresAt)

	ctx := storage.GetContext()
	owner := runtime.GetScriptContainer().Sender

	index := appendEntry(ctx, owner, publicKey, alg, expiresAt)
	runtime.Notify("KeyRegistered", owner, index, publicKey, alg, expiresAt)

	return index
}

// RotateKey appends a new key entry exactly like RegisterKey and additionally
// reports the index of the entry it supersedes. The superseded entry is NOT
// revoked, revocation is a separate RevokeKey call.
//
// It produces KeyRotated notification.
func RotateKey(publicKey []byte, alg string, expiresAt int) Rotation {
	checkKeyArgs("rotateKey", publicKey, expiresAt)

	ctx := storage.GetContext()
	owner := runtime.GetScriptContainer().Sender

	oldIndex := getCount(ctx, owner) - 1
	if oldIndex < 0 {
		oldIndex = keyledgerconst.NoPreviousKey
	}

	newIndex := appendEntry(ctx, owner, publicKey, alg, expiresAt)
	runtime.Notify("KeyRotated", owner, oldIndex, newIndex, publicKey, alg, expiresAt)

	return Rotation{
		OldIndex: oldIndex,
		NewIndex: newIndex,
	}
}

// RevokeKey marks the entry of the transaction sender's history with the
// given index as revoked. Revocation is final, repeated revocation of the
// same entry fails. Other entries are not affected.
//
// It produces KeyRevoked notification.
func RevokeKey(index int) {
	ctx := storage.GetContext()
	owner := runtime.GetScriptContainer().Sender

	if index < 0 || index >= getCount(ctx, owner) {
		panic("revokeKey: " + keyledgerconst.ErrOutOfRange)
	}

	entry := getEntry(ctx, owner, index)
	if entry.Revoked {
		panic("revokeKey: " + keyledgerconst.ErrAlreadyRevoked)
	}

	entry.Revoked = true
	common.SetSerialized(ctx, entryKey(owner, index), entry)

	runtime.Notify("KeyRevoked", owner, index)
}

// GetHistoryCount returns the number of key entries ever registered by the
// given owner, 0 for owners that never registered a key.
func GetHistoryCount(owner interop.Hash160) int {
	checkOwner("getHistoryCount", owner)

	return getCount(storage.GetReadOnlyContext(), owner)
}

// GetKey returns the owner's key entry with the given index.
func GetKey(owner interop.Hash160, index int) KeyEntry {
	checkOwner("getKey", owner)

	ctx := storage.GetReadOnlyContext()
	if index < 0 || index >= getCount(ctx, owner) {
		panic("getKey: " + keyledgerconst.ErrOutOfRange)
	}

	return getEntry(ctx, owner, index)
}

// GetActiveKey returns the newest non-revoked non-expired entry of the
// owner's history. Entries are checked from the most recently appended one
// backward, a newer expired or revoked entry never shadows an older eligible
// one. Expiration is strict: an entry expiring exactly at the current block
// timestamp is already expired.
func GetActiveKey(owner interop.Hash160) ActiveKey {
	checkOwner("getActiveKey", owner)

	ctx := storage.GetReadOnlyContext()
	now := runtime.GetTime()

	for i := getCount(ctx, owner) - 1; i >= 0; i-- {
		entry := getEntry(ctx, owner, i)
		if entry.Revoked {
			continue
		}
		if entry.ExpiresAt != 0 && entry.ExpiresAt <= now {
			continue
		}

		return ActiveKey{
			PublicKey:    entry.PublicKey,
			Alg:          entry.Alg,
			RegisteredAt: entry.RegisteredAt,
			ExpiresAt:    entry.ExpiresAt,
			Revoked:      false,
			Found:        true,
		}
	}

	return ActiveKey{PublicKey: []byte{}}
}

// IterateHistory returns an iterator over all key entries of the given owner
// in registration order. Iterated values are KeyEntry structures.
func IterateHistory(owner interop.Hash160) iterator.Iterator {
	checkOwner("iterateHistory", owner)

	return storage.Find(storage.GetReadOnlyContext(),
		append([]byte{entryPrefix}, owner...),
		storage.ValuesOnly|storage.DeserializeValues)
}

// Version returns the version of the contract.
func Version() int {
	return common.Version
}

func checkOwner(method string, owner interop.Hash160) {
	if len(owner) != interop.Hash160Len {
		panic(method + ": incorrect owner")
	}
}

func checkKeyArgs(method string, publicKey []byte, expiresAt int) {
	if len(publicKey) == 0 {
		panic(method + ": empty public key")
	}
	if expiresAt < 0 {
		panic(method + ": negative expiration")
	}
}

func appendEntry(ctx storage.Context, owner interop.Hash160, publicKey []byte, alg string, expiresAt int) int {
	index := getCount(ctx, owner)

	common.SetSerialized(ctx, entryKey(owner, index), KeyEntry{
		PublicKey:    publicKey,
		Alg:          alg,
		RegisteredAt: runtime.GetTime(),
		ExpiresAt:    expiresAt,
		Revoked:      false,
	})
	storage.Put(ctx, countKey(owner), index+1)

	return index
}

func getCount(ctx storage.Context, owner interop.Hash160) int {
	data := storage.Get(ctx, countKey(owner))
	if data != nil {
		return data.(int)
	}

	return 0
}

func getEntry(ctx storage.Context, owner interop.Hash160, index int) KeyEntry {
	data := storage.Get(ctx, entryKey(owner, index))

	return std.Deserialize(data.([]byte)).(KeyEntry)
}

func countKey(owner interop.Hash160) []byte {
	return append([]byte{countPrefix}, owner...)
}

// entryKey encodes the entry index as 4-byte BE integer to keep iteration
// over the 'k' prefix in registration order.
func entryKey(owner interop.Hash160, index int) []byte {
	key := append([]byte{entryPrefix}, owner...)

	return append(key, byte(index>>24), byte(index>>16), byte(index>>8), byte(index))
}
