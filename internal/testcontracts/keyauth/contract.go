/*
Package keyauth is an exploratory hardened variant of the Key Ledger
contract: registration and rotation additionally require an ECDSA
authorization signature over the key fields and the contract address. It is
deployed in tests only, the production contract relies on the platform
witness of the transaction sender alone.
*/
package keyauth

import (
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/convert"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/crypto"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/std"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
	"github.com/nspcc-dev/neo-go/pkg/interop/storage"
)

// KeyEntry mirrors the Key Ledger contract history entry.
type KeyEntry struct {
	PublicKey    []byte
	Alg          string
	RegisteredAt int
	ExpiresAt    int
	Revoked      bool
}

// AuthContextPrefix is prepended to the signed authorization message. The
// full message is AuthContextPrefix || publicKey || alg || expiresAt ||
// executing contract hash, hashed with SHA-256 before signature
// verification.
const AuthContextPrefix = "KeyLedgerAuth"

const (
	countPrefix = 'c'
	entryPrefix = 'k'

	authorizedAccountKey = 'a'
)

// nolint:deadcode,unused
func _deploy(data any, isUpdate bool) {
	if isUpdate {
		return
	}

	if data != nil {
		// Fixed account allowed to authorize registrations on behalf of
		// any owner.
		storage.Put(storage.GetContext(), authorizedAccountKey, data.(interop.Hash160))
	}
}

// RegisterKey appends a new key entry to the sender's history after checking
// the authorization signature. Sig must be produced over the authorization
// message (see AuthContextPrefix) by the private key behind pub, and the
// account derived from pub must be either the transaction sender or the
// authorized account set at deploy time.
func RegisterKey(publicKey []byte, alg string, expiresAt int, pub interop.PublicKey, sig interop.Signature) int {
	if len(publicKey) == 0 {
		panic("registerKey: empty public key")
	}

	ctx := storage.GetContext()
	owner := runtime.GetScriptContainer().Sender
	checkAuthorization(ctx, "registerKey", publicKey, alg, expiresAt, pub, sig, owner)

	return appendEntry(ctx, owner, publicKey, alg, expiresAt)
}

// RotateKey is RegisterKey returning the pre-append latest index as well, -1
// if the history was empty.
func RotateKey(publicKey []byte, alg string, expiresAt int, pub interop.PublicKey, sig interop.Signature) []int {
	if len(publicKey) == 0 {
		panic("rotateKey: empty public key")
	}

	ctx := storage.GetContext()
	owner := runtime.GetScriptContainer().Sender
	checkAuthorization(ctx, "rotateKey", publicKey, alg, expiresAt, pub, sig, owner)

	oldIndex := getCount(ctx, owner) - 1

	return []int{oldIndex, appendEntry(ctx, owner, publicKey, alg, expiresAt)}
}

// GetHistoryCount returns the length of the owner's history.
func GetHistoryCount(owner interop.Hash160) int {
	return getCount(storage.GetReadOnlyContext(), owner)
}

// GetKey returns the owner's key entry with the given index.
func GetKey(owner interop.Hash160, index int) KeyEntry {
	ctx := storage.GetReadOnlyContext()
	if index < 0 || index >= getCount(ctx, owner) {
		panic("getKey: index out of range")
	}

	data := storage.Get(ctx, entryKey(owner, index))

	return std.Deserialize(data.([]byte)).(KeyEntry)
}

func checkAuthorization(ctx storage.Context, method string, publicKey []byte, alg string, expiresAt int, pub interop.PublicKey, sig interop.Signature, owner interop.Hash160) {
	msg := []byte(AuthContextPrefix)
	msg = append(msg, publicKey...)
	msg = append(msg, []byte(alg)...)
	msg = append(msg, convert.ToBytes(expiresAt)...)
	msg = append(msg, runtime.GetExecutingScriptHash()...)

	if !crypto.VerifyWithECDsa(msg, pub, sig, crypto.Secp256r1) {
		panic(method + ": invalid signature")
	}

	signer := contract.CreateStandardAccount(pub)
	if string(signer) == string(owner) {
		return
	}

	authorized := storage.Get(ctx, authorizedAccountKey)
	if authorized == nil || string(signer) != string(authorized.(interop.Hash160)) {
		panic(method + ": invalid signature")
	}
}

func appendEntry(ctx storage.Context, owner interop.Hash160, publicKey []byte, alg string, expiresAt int) int {
	index := getCount(ctx, owner)

	storage.Put(ctx, entryKey(owner, index), std.Serialize(KeyEntry{
		PublicKey:    publicKey,
		Alg:          alg,
		RegisteredAt: runtime.GetTime(),
		ExpiresAt:    expiresAt,
		Revoked:      false,
	}))
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

func countKey(owner interop.Hash160) []byte {
	return append([]byte{countPrefix}, owner...)
}

func entryKey(owner interop.Hash160, index int) []byte {
	key := append([]byte{entryPrefix}, owner...)

	return append(key, byte(index>>24), byte(index>>16), byte(index>>8), byte(index))
}
