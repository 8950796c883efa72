// Package keyledger contains RPC wrappers for Key Ledger contract.
package keyledger

import (
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/unwrap"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// KeyledgerKeyEntry is a contract-specific keyledger.KeyEntry type used by its methods.
type KeyledgerKeyEntry struct {
	PublicKey    []byte
	Alg          string
	RegisteredAt *big.Int
	ExpiresAt    *big.Int
	Revoked      bool
}

// KeyledgerActiveKey is a contract-specific keyledger.ActiveKey type used by its methods.
type KeyledgerActiveKey struct {
	PublicKey    []byte
	Alg          string
	RegisteredAt *big.Int
	ExpiresAt    *big.Int
	Revoked      bool
	Found        bool
}

// KeyledgerRotation is a contract-specific keyledger.Rotation type used by its methods.
type KeyledgerRotation struct {
	OldIndex *big.Int
	NewIndex *big.Int
}

// KeyRegisteredEvent represents "KeyRegistered" event emitted by the contract.
type KeyRegisteredEvent struct {
	Owner     util.Uint160
	Index     *big.Int
	PublicKey []byte
	Alg       string
	ExpiresAt *big.Int
}

// KeyRotatedEvent represents "KeyRotated" event emitted by the contract.
type KeyRotatedEvent struct {
	Owner     util.Uint160
	OldIndex  *big.Int
	NewIndex  *big.Int
	PublicKey []byte
	Alg       string
	ExpiresAt *big.Int
}

// KeyRevokedEvent represents "KeyRevoked" event emitted by the contract.
type KeyRevokedEvent struct {
	Owner util.Uint160
	Index *big.Int
}

// Invoker is used by ContractReader to call various safe methods.
type Invoker interface {
	Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error)
	CallAndExpandIterator(contract util.Uint160, method string, maxItems int, params ...any) (*result.Invoke, error)
	TerminateSession(sessionID uuid.UUID) error
	TraverseIterator(sessionID uuid.UUID, iterator *result.Iterator, num int) ([]stackitem.Item, error)
}

// Actor is used by Contract to call state-changing methods.
type Actor interface {
	Invoker

	MakeCall(contract util.Uint160, method string, params ...any) (*transaction.Transaction, error)
	MakeRun(script []byte) (*transaction.Transaction, error)
	MakeUnsignedCall(contract util.Uint160, method string, attrs []transaction.Attribute, params ...any) (*transaction.Transaction, error)
	MakeUnsignedRun(script []byte, attrs []transaction.Attribute) (*transaction.Transaction, error)
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
	SendRun(script []byte) (util.Uint256, uint32, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker Invoker
	hash    util.Uint160
}

// Contract implements all contract methods.
type Contract struct {
	ContractReader
	actor Actor
	hash  util.Uint160
}

// NewReader creates an instance of ContractReader using provided contract hash and the given Invoker.
func NewReader(invoker Invoker, hash util.Uint160) *ContractReader {
	return &ContractReader{invoker, hash}
}

// New creates an instance of Contract using provided contract hash and the given Actor.
func New(actor Actor, hash util.Uint160) *Contract {
	return &Contract{ContractReader{actor, hash}, actor, hash}
}

// GetHistoryCount invokes `getHistoryCount` method of contract.
func (c *ContractReader) GetHistoryCount(owner util.Uint160) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "getHistoryCount", owner))
}

// GetKey invokes `getKey` method of contract.
func (c *ContractReader) GetKey(owner util.Uint160, index *big.Int) (*KeyledgerKeyEntry, error) {
	return itemToKeyledgerKeyEntry(unwrap.Item(c.invoker.Call(c.hash, "getKey", owner, index)))
}

// GetActiveKey invokes `getActiveKey` method of contract.
func (c *ContractReader) GetActiveKey(owner util.Uint160) (*KeyledgerActiveKey, error) {
	return itemToKeyledgerActiveKey(unwrap.Item(c.invoker.Call(c.hash, "getActiveKey", owner)))
}

// IterateHistory invokes `iterateHistory` method of contract.
func (c *ContractReader) IterateHistory(owner util.Uint160) (uuid.UUID, result.Iterator, error) {
	return unwrap.SessionIterator(c.invoker.Call(c.hash, "iterateHistory", owner))
}

// IterateHistoryExpanded is similar to IterateHistory (uses the same contract
// method), but can be useful if the server used doesn't support sessions and
// doesn't expand iterators. It creates a script that will get the specified
// number of result items from the iterator right in the VM and return them to
// you. It's only limited by VM stack and GAS available for RPC invocations.
func (c *ContractReader) IterateHistoryExpanded(owner util.Uint160, _numOfIteratorItems int) ([]stackitem.Item, error) {
	return unwrap.Array(c.invoker.CallAndExpandIterator(c.hash, "iterateHistory", _numOfIteratorItems, owner))
}

// Version invokes `version` method of contract.
func (c *ContractReader) Version() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "version"))
}

// RegisterKey creates a transaction invoking `registerKey` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RegisterKey(publicKey []byte, alg string, expiresAt *big.Int) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "registerKey", publicKey, alg, expiresAt)
}

// RegisterKeyTransaction creates a transaction invoking `registerKey` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RegisterKeyTransaction(publicKey []byte, alg string, expiresAt *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "registerKey", publicKey, alg, expiresAt)
}

// RegisterKeyUnsigned creates a transaction invoking `registerKey` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RegisterKeyUnsigned(publicKey []byte, alg string, expiresAt *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "registerKey", nil, publicKey, alg, expiresAt)
}

// RotateKey creates a transaction invoking `rotateKey` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RotateKey(publicKey []byte, alg string, expiresAt *big.Int) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "rotateKey", publicKey, alg, expiresAt)
}

// RotateKeyTransaction creates a transaction invoking `rotateKey` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RotateKeyTransaction(publicKey []byte, alg string, expiresAt *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "rotateKey", publicKey, alg, expiresAt)
}

// RotateKeyUnsigned creates a transaction invoking `rotateKey` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RotateKeyUnsigned(publicKey []byte, alg string, expiresAt *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "rotateKey", nil, publicKey, alg, expiresAt)
}

// RevokeKey creates a transaction invoking `revokeKey` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RevokeKey(index *big.Int) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "revokeKey", index)
}

// RevokeKeyTransaction creates a transaction invoking `revokeKey` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RevokeKeyTransaction(index *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "revokeKey", index)
}

// RevokeKeyUnsigned creates a transaction invoking `revokeKey` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RevokeKeyUnsigned(index *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "revokeKey", nil, index)
}

// Update creates a transaction invoking `update` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) Update(nefFile []byte, manifest []byte, data any) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "update", nefFile, manifest, data)
}

// UpdateTransaction creates a transaction invoking `update` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) UpdateTransaction(nefFile []byte, manifest []byte, data any) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "update", nefFile, manifest, data)
}

// UpdateUnsigned creates a transaction invoking `update` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) UpdateUnsigned(nefFile []byte, manifest []byte, data any) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "update", nil, nefFile, manifest, data)
}

// itemToKeyledgerKeyEntry converts stack item into *KeyledgerKeyEntry.
func itemToKeyledgerKeyEntry(item stackitem.Item, err error) (*KeyledgerKeyEntry, error) {
	if err != nil {
		return nil, err
	}
	var res = new(KeyledgerKeyEntry)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of KeyledgerKeyEntry from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *KeyledgerKeyEntry) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 5 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err   error
	)
	index++
	res.PublicKey, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field PublicKey: %w", err)
	}

	index++
	res.Alg, err = func (item stackitem.Item) (string, error) {
		b, err := item.TryBytes()
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", errors.New("not a UTF-8 string")
		}
		return string(b), nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Alg: %w", err)
	}

	index++
	res.RegisteredAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field RegisteredAt: %w", err)
	}

	index++
	res.ExpiresAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ExpiresAt: %w", err)
	}

	index++
	res.Revoked, err = arr[index].TryBool()
	if err != nil {
		return fmt.Errorf("field Revoked: %w", err)
	}

	return nil
}

// itemToKeyledgerActiveKey converts stack item into *KeyledgerActiveKey.
func itemToKeyledgerActiveKey(item stackitem.Item, err error) (*KeyledgerActiveKey, error) {
	if err != nil {
		return nil, err
	}
	var res = new(KeyledgerActiveKey)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of KeyledgerActiveKey from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *KeyledgerActiveKey) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 6 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err   error
	)
	index++
	res.PublicKey, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field PublicKey: %w", err)
	}

	index++
	res.Alg, err = func (item stackitem.Item) (string, error) {
		b, err := item.TryBytes()
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", errors.New("not a UTF-8 string")
		}
		return string(b), nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Alg: %w", err)
	}

	index++
	res.RegisteredAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field RegisteredAt: %w", err)
	}

	index++
	res.ExpiresAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ExpiresAt: %w", err)
	}

	index++
	res.Revoked, err = arr[index].TryBool()
	if err != nil {
		return fmt.Errorf("field Revoked: %w", err)
	}

	index++
	res.Found, err = arr[index].TryBool()
	if err != nil {
		return fmt.Errorf("field Found: %w", err)
	}

	return nil
}

// FromStackItem retrieves fields of KeyledgerRotation from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *KeyledgerRotation) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err   error
	)
	index++
	res.OldIndex, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field OldIndex: %w", err)
	}

	index++
	res.NewIndex, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field NewIndex: %w", err)
	}

	return nil
}

// KeyRegisteredEventsFromApplicationLog retrieves a set of all emitted events
// with "KeyRegistered" name from the provided [result.ApplicationLog].
func KeyRegisteredEventsFromApplicationLog(log *result.ApplicationLog) ([]*KeyRegisteredEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*KeyRegisteredEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "KeyRegistered" {
				continue
			}
			event := new(KeyRegisteredEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize KeyRegisteredEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to KeyRegisteredEvent or
// returns an error if it's not possible to do to so.
func (e *KeyRegisteredEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 5 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err   error
	)
	index++
	e.Owner, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Owner: %w", err)
	}

	index++
	e.Index, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Index: %w", err)
	}

	index++
	e.PublicKey, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field PublicKey: %w", err)
	}

	index++
	e.Alg, err = func (item stackitem.Item) (string, error) {
		b, err := item.TryBytes()
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", errors.New("not a UTF-8 string")
		}
		return string(b), nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Alg: %w", err)
	}

	index++
	e.ExpiresAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ExpiresAt: %w", err)
	}

	return nil
}

// KeyRotatedEventsFromApplicationLog retrieves a set of all emitted events
// with "KeyRotated" name from the provided [result.ApplicationLog].
func KeyRotatedEventsFromApplicationLog(log *result.ApplicationLog) ([]*KeyRotatedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*KeyRotatedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "KeyRotated" {
				continue
			}
			event := new(KeyRotatedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize KeyRotatedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to KeyRotatedEvent or
// returns an error if it's not possible to do to so.
func (e *KeyRotatedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 6 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err   error
	)
	index++
	e.Owner, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Owner: %w", err)
	}

	index++
	e.OldIndex, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field OldIndex: %w", err)
	}

	index++
	e.NewIndex, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field NewIndex: %w", err)
	}

	index++
	e.PublicKey, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field PublicKey: %w", err)
	}

	index++
	e.Alg, err = func (item stackitem.Item) (string, error) {
		b, err := item.TryBytes()
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", errors.New("not a UTF-8 string")
		}
		return string(b), nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Alg: %w", err)
	}

	index++
	e.ExpiresAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field ExpiresAt: %w", err)
	}

	return nil
}

// KeyRevokedEventsFromApplicationLog retrieves a set of all emitted events
// with "KeyRevoked" name from the provided [result.ApplicationLog].
func KeyRevokedEventsFromApplicationLog(log *result.ApplicationLog) ([]*KeyRevokedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*KeyRevokedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "KeyRevoked" {
				continue
			}
			event := new(KeyRevokedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize KeyRevokedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to KeyRevokedEvent or
// returns an error if it's not possible to do to so.
func (e *KeyRevokedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err   error
	)
	index++
	e.Owner, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Owner: %w", err)
	}

	index++
	e.Index, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Index: %w", err)
	}

	return nil
}
