package tests

import (
	"path"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/interop/storage"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neotest"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/stretchr/testify/require"

	"github.com/keyledger/keyledger-contract/common"
)

const keyLedgerPath = "../contracts/keyledger"

func deployKeyLedgerContract(t *testing.T, e *neotest.Executor) util.Uint160 {
	c := neotest.CompileFile(t, e.CommitteeHash, keyLedgerPath, path.Join(keyLedgerPath, "config.yml"))
	e.DeployContract(t, c, nil)
	return c.Hash
}

func newKeyLedgerInvoker(t *testing.T) *neotest.ContractInvoker {
	e := newLedgerExecutor(t)
	h := deployKeyLedgerContract(t, e)
	return e.CommitteeInvoker(h)
}

func randomPub(t *testing.T) []byte {
	p, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return p.PublicKey().Bytes()
}

// entryItem is the expected stack representation of a stored key entry.
func entryItem(pub []byte, alg string, registeredAt uint64, expiresAt int64, revoked bool) stackitem.Item {
	return stackitem.NewStruct([]stackitem.Item{
		stackitem.NewByteArray(pub),
		stackitem.Make(alg),
		stackitem.Make(int64(registeredAt)),
		stackitem.Make(expiresAt),
		stackitem.Make(revoked),
	})
}

// activeItem is the expected stack representation of a found getActiveKey
// result.
func activeItem(pub []byte, alg string, registeredAt uint64, expiresAt int64) stackitem.Item {
	return stackitem.NewStruct([]stackitem.Item{
		stackitem.NewByteArray(pub),
		stackitem.Make(alg),
		stackitem.Make(int64(registeredAt)),
		stackitem.Make(expiresAt),
		stackitem.Make(false),
		stackitem.Make(true),
	})
}

// noActiveItem is the expected stack representation of a getActiveKey miss.
func noActiveItem() stackitem.Item {
	return stackitem.NewStruct([]stackitem.Item{
		stackitem.NewBuffer([]byte{}),
		stackitem.Make(""),
		stackitem.Make(0),
		stackitem.Make(0),
		stackitem.Make(false),
		stackitem.Make(false),
	})
}

func testActiveKey(t *testing.T, c *neotest.ContractInvoker, owner util.Uint160, expected stackitem.Item) {
	s, err := c.TestInvoke(t, "getActiveKey", owner)
	require.NoError(t, err)
	require.Equal(t, expected.Value(), s.Top().Item().Value())
}

func TestKeyLedgerVersion(t *testing.T) {
	c := newKeyLedgerInvoker(t)
	c.Invoke(t, common.Version, "version")
}

func TestKeyLedgerRegisterKey(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	cAcc := c.WithSigners(acc)
	owner := acc.ScriptHash()

	c.Invoke(t, 0, "getHistoryCount", owner)

	pub := randomPub(t)
	cAcc.Invoke(t, 0, "registerKey", pub, "ecdsa-p256", 0)
	registeredAt := c.TopBlock(t).Timestamp

	c.Invoke(t, 1, "getHistoryCount", owner)
	c.Invoke(t, entryItem(pub, "ecdsa-p256", registeredAt, 0, false), "getKey", owner, 0)
	testActiveKey(t, c, owner, activeItem(pub, "ecdsa-p256", registeredAt, 0))

	t.Run("indices grow sequentially", func(t *testing.T) {
		cAcc.Invoke(t, 1, "registerKey", randomPub(t), "ed25519", 0)
		cAcc.Invoke(t, 2, "registerKey", randomPub(t), "ed25519", 0)
		c.Invoke(t, 3, "getHistoryCount", owner)
	})

	t.Run("histories are isolated per owner", func(t *testing.T) {
		acc2 := c.NewAccount(t)
		c.Invoke(t, 0, "getHistoryCount", acc2.ScriptHash())

		c.WithSigners(acc2).Invoke(t, 0, "registerKey", randomPub(t), "ecdsa-p256", 0)
		c.Invoke(t, 1, "getHistoryCount", acc2.ScriptHash())
		c.Invoke(t, 3, "getHistoryCount", owner)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		cAcc.InvokeFail(t, "registerKey: empty public key", "registerKey", []byte{}, "ecdsa-p256", 0)
		cAcc.InvokeFail(t, "registerKey: negative expiration", "registerKey", randomPub(t), "ecdsa-p256", -1)
		c.Invoke(t, 3, "getHistoryCount", owner)
	})

	t.Run("notification", func(t *testing.T) {
		pub := randomPub(t)
		txHash := cAcc.Invoke(t, 3, "registerKey", pub, "ed25519", 42)
		c.CheckTxNotificationEvent(t, txHash, 0, state.NotificationEvent{
			ScriptHash: c.Hash,
			Name:       "KeyRegistered",
			Item: stackitem.NewArray([]stackitem.Item{
				stackitem.NewByteArray(owner.BytesBE()),
				stackitem.Make(3),
				stackitem.NewByteArray(pub),
				stackitem.Make("ed25519"),
				stackitem.Make(42),
			}),
		})
	})
}

func TestKeyLedgerRotateKey(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	cAcc := c.WithSigners(acc)
	owner := acc.ScriptHash()

	pub1 := randomPub(t)
	rotation := stackitem.NewStruct([]stackitem.Item{
		stackitem.Make(-1),
		stackitem.Make(0),
	})
	txHash := cAcc.Invoke(t, rotation, "rotateKey", pub1, "ecdsa-p256", 0)
	c.CheckTxNotificationEvent(t, txHash, 0, state.NotificationEvent{
		ScriptHash: c.Hash,
		Name:       "KeyRotated",
		Item: stackitem.NewArray([]stackitem.Item{
			stackitem.NewByteArray(owner.BytesBE()),
			stackitem.Make(-1),
			stackitem.Make(0),
			stackitem.NewByteArray(pub1),
			stackitem.Make("ecdsa-p256"),
			stackitem.Make(0),
		}),
	})

	pub2 := randomPub(t)
	rotation = stackitem.NewStruct([]stackitem.Item{
		stackitem.Make(0),
		stackitem.Make(1),
	})
	cAcc.Invoke(t, rotation, "rotateKey", pub2, "ecdsa-p256", 0)
	registeredAt := c.TopBlock(t).Timestamp

	c.Invoke(t, 2, "getHistoryCount", owner)

	// rotation does not revoke the superseded entry
	testActiveKey(t, c, owner, activeItem(pub2, "ecdsa-p256", registeredAt, 0))
	cAcc.Invoke(t, stackitem.Null{}, "revokeKey", 1)
	s, err := c.TestInvoke(t, "getKey", owner, 0)
	require.NoError(t, err)
	require.Equal(t, false, s.Top().Item().Value().([]stackitem.Item)[4].Value())

	t.Run("invalid arguments", func(t *testing.T) {
		cAcc.InvokeFail(t, "rotateKey: empty public key", "rotateKey", []byte{}, "ecdsa-p256", 0)
		cAcc.InvokeFail(t, "rotateKey: negative expiration", "rotateKey", randomPub(t), "ecdsa-p256", -100)
	})
}

func TestKeyLedgerRevokeKey(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	cAcc := c.WithSigners(acc)
	owner := acc.ScriptHash()

	cAcc.InvokeFail(t, "revokeKey: index out of range", "revokeKey", 0)

	pub := randomPub(t)
	cAcc.Invoke(t, 0, "registerKey", pub, "ecdsa-p256", 0)
	registeredAt := c.TopBlock(t).Timestamp

	cAcc.InvokeFail(t, "revokeKey: index out of range", "revokeKey", 1)
	cAcc.InvokeFail(t, "revokeKey: index out of range", "revokeKey", -1)

	txHash := cAcc.Invoke(t, stackitem.Null{}, "revokeKey", 0)
	c.CheckTxNotificationEvent(t, txHash, 0, state.NotificationEvent{
		ScriptHash: c.Hash,
		Name:       "KeyRevoked",
		Item: stackitem.NewArray([]stackitem.Item{
			stackitem.NewByteArray(owner.BytesBE()),
			stackitem.Make(0),
		}),
	})

	// entry stays in the history, only the flag flips
	c.Invoke(t, 1, "getHistoryCount", owner)
	c.Invoke(t, entryItem(pub, "ecdsa-p256", registeredAt, 0, true), "getKey", owner, 0)

	// the only entry is revoked, nothing is active anymore
	testActiveKey(t, c, owner, noActiveItem())

	t.Run("repeated revocation fails", func(t *testing.T) {
		cAcc.InvokeFail(t, "revokeKey: key already revoked", "revokeKey", 0)
		c.Invoke(t, entryItem(pub, "ecdsa-p256", registeredAt, 0, true), "getKey", owner, 0)
	})
}

func TestKeyLedgerGetKey(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	cAcc := c.WithSigners(acc)
	owner := acc.ScriptHash()

	c.InvokeFail(t, "getKey: index out of range", "getKey", owner, 0)

	pub := randomPub(t)
	cAcc.Invoke(t, 0, "registerKey", pub, "ecdsa-p256", 100500)
	registeredAt := c.TopBlock(t).Timestamp

	c.Invoke(t, entryItem(pub, "ecdsa-p256", registeredAt, 100500, false), "getKey", owner, 0)
	c.InvokeFail(t, "getKey: index out of range", "getKey", owner, 1)
	c.InvokeFail(t, "getKey: index out of range", "getKey", owner, -1)
	c.InvokeFail(t, "getKey: incorrect owner", "getKey", []byte{1, 2, 3}, 0)

	t.Run("read is idempotent", func(t *testing.T) {
		c.Invoke(t, entryItem(pub, "ecdsa-p256", registeredAt, 100500, false), "getKey", owner, 0)
		c.Invoke(t, 1, "getHistoryCount", owner)
	})
}

func TestKeyLedgerGetActiveKey(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	cAcc := c.WithSigners(acc)
	owner := acc.ScriptHash()

	testActiveKey(t, c, owner, noActiveItem())

	pub1 := randomPub(t)
	cAcc.Invoke(t, 0, "registerKey", pub1, "ecdsa-p256", 0)
	registeredAt1 := c.TopBlock(t).Timestamp

	testActiveKey(t, c, owner, activeItem(pub1, "ecdsa-p256", registeredAt1, 0))

	t.Run("newest expired entry does not shadow an older one", func(t *testing.T) {
		expiration := c.TopBlock(t).Timestamp + 10_000

		pub2 := randomPub(t)
		cAcc.Invoke(t, 1, "registerKey", pub2, "ed25519", int64(expiration))
		registeredAt2 := c.TopBlock(t).Timestamp

		testActiveKey(t, c, owner, activeItem(pub2, "ed25519", registeredAt2, int64(expiration)))

		// test invoke is done with +1 timestamp
		b := c.NewUnsignedBlock(t)
		b.Timestamp = expiration - 2
		require.NoError(t, c.Chain.AddBlock(c.SignBlock(b)))
		testActiveKey(t, c, owner, activeItem(pub2, "ed25519", registeredAt2, int64(expiration)))

		// the entry expiring exactly now is already unusable
		b = c.NewUnsignedBlock(t)
		b.Timestamp = expiration - 1
		require.NoError(t, c.Chain.AddBlock(c.SignBlock(b)))
		testActiveKey(t, c, owner, activeItem(pub1, "ecdsa-p256", registeredAt1, 0))
	})

	t.Run("newest revoked entry does not shadow an older one", func(t *testing.T) {
		pub3 := randomPub(t)
		cAcc.Invoke(t, 2, "registerKey", pub3, "ecdsa-p256", 0)
		registeredAt3 := c.TopBlock(t).Timestamp

		testActiveKey(t, c, owner, activeItem(pub3, "ecdsa-p256", registeredAt3, 0))

		cAcc.Invoke(t, stackitem.Null{}, "revokeKey", 2)
		testActiveKey(t, c, owner, activeItem(pub1, "ecdsa-p256", registeredAt1, 0))
	})

	c.InvokeFail(t, "getActiveKey: incorrect owner", "getActiveKey", []byte{1, 2, 3})
}

func TestKeyLedgerIterateHistory(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	cAcc := c.WithSigners(acc)
	owner := acc.ScriptHash()

	s, err := c.TestInvoke(t, "iterateHistory", owner)
	require.NoError(t, err)
	iter := s.Pop().Value().(*storage.Iterator)
	require.Empty(t, drainIterator(iter))

	type reg struct {
		pub []byte
		ts  uint64
	}
	regs := make([]reg, 0, 3)
	for i := 0; i < 3; i++ {
		pub := randomPub(t)
		cAcc.Invoke(t, i, "registerKey", pub, "ecdsa-p256", 0)
		regs = append(regs, reg{pub: pub, ts: c.TopBlock(t).Timestamp})
	}
	cAcc.Invoke(t, stackitem.Null{}, "revokeKey", 1)

	s, err = c.TestInvoke(t, "iterateHistory", owner)
	require.NoError(t, err)
	iter = s.Pop().Value().(*storage.Iterator)
	items := drainIterator(iter)
	require.Len(t, items, 3)

	for i, item := range items {
		expected := entryItem(regs[i].pub, "ecdsa-p256", regs[i].ts, 0, i == 1)
		require.Equal(t, expected.Value(), item.Value(), "entry #%d", i)
	}
}

func TestKeyLedgerUpdate(t *testing.T) {
	c := newKeyLedgerInvoker(t)

	acc := c.NewAccount(t)
	c.WithSigners(acc).InvokeFail(t, "only committee can update contract", "update",
		[]byte{}, []byte{}, nil)
}
