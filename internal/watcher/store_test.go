package watcher

import (
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestStoreHistory(t *testing.T) {
	s := NewStore()
	owner := util.Uint160{1}

	require.Zero(t, s.Count(owner))
	require.Nil(t, s.History(owner))

	s.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x02}, Alg: "ecdsa-p256"})
	s.PutEntry(owner, Entry{Index: 1, PublicKey: []byte{0x03}, Alg: "ed25519"})

	require.Equal(t, 2, s.Count(owner))

	h := s.History(owner)
	require.Len(t, h, 2)
	require.Equal(t, []byte{0x02}, h[0].PublicKey)
	require.Equal(t, []byte{0x03}, h[1].PublicKey)

	// histories are isolated per owner
	require.Zero(t, s.Count(util.Uint160{2}))
}

func TestStorePutEntryIdempotent(t *testing.T) {
	s := NewStore()
	owner := util.Uint160{1}

	s.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x02}})
	require.True(t, s.Revoke(owner, 0))

	// replayed registration must not reset the revocation
	s.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x02}})

	h := s.History(owner)
	require.Len(t, h, 1)
	require.True(t, h[0].Revoked)
}

func TestStoreMidStreamJoin(t *testing.T) {
	s := NewStore()
	owner := util.Uint160{1}
	const now = int64(1_000_000)

	// The watcher subscribed after the owner already had keys 0 and 1:
	// the first notification it sees is for index 2, already expired.
	s.PutEntry(owner, Entry{Index: 2, PublicKey: []byte{0x02}, ExpiresAt: now - 1})

	require.Equal(t, 3, s.Count(owner))

	// the padded indices 0 and 1 must not be served as keys
	_, found := s.Active(owner, now)
	require.False(t, found)

	h := s.History(owner)
	require.Len(t, h, 1)
	require.Equal(t, 2, h[0].Index)

	// a revocation seen before the registration it refers to sticks
	require.True(t, s.Revoke(owner, 1))
	s.PutEntry(owner, Entry{Index: 1, PublicKey: []byte{0x03}})
	h = s.History(owner)
	require.Len(t, h, 2)
	require.Equal(t, 1, h[0].Index)
	require.True(t, h[0].Revoked)
	_, found = s.Active(owner, now)
	require.False(t, found)

	// a usable registration filling a gap becomes the active key
	s.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x04}})
	e, found := s.Active(owner, now)
	require.True(t, found)
	require.Equal(t, 0, e.Index)
}

func TestStoreRevoke(t *testing.T) {
	s := NewStore()
	owner := util.Uint160{1}

	require.False(t, s.Revoke(owner, 0))

	s.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x02}})
	require.False(t, s.Revoke(owner, -1))
	require.False(t, s.Revoke(owner, 1))
	require.True(t, s.Revoke(owner, 0))
}

func TestStoreActive(t *testing.T) {
	s := NewStore()
	owner := util.Uint160{1}
	const now = int64(1_000_000)

	_, found := s.Active(owner, now)
	require.False(t, found)

	// expired exactly at now is not active
	s.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x02}, ExpiresAt: now})
	_, found = s.Active(owner, now)
	require.False(t, found)

	s.PutEntry(owner, Entry{Index: 1, PublicKey: []byte{0x03}, ExpiresAt: now + 1})
	e, found := s.Active(owner, now)
	require.True(t, found)
	require.Equal(t, 1, e.Index)

	// newest expired, fall back to an older usable key
	s.PutEntry(owner, Entry{Index: 2, PublicKey: []byte{0x04}, ExpiresAt: now - 1})
	e, found = s.Active(owner, now)
	require.True(t, found)
	require.Equal(t, 1, e.Index)

	// zero expiration never expires
	s.PutEntry(owner, Entry{Index: 3, PublicKey: []byte{0x05}})
	e, found = s.Active(owner, now)
	require.True(t, found)
	require.Equal(t, 3, e.Index)

	require.True(t, s.Revoke(owner, 3))
	e, found = s.Active(owner, now)
	require.True(t, found)
	require.Equal(t, 1, e.Index)

	require.True(t, s.Revoke(owner, 1))
	_, found = s.Active(owner, now)
	require.False(t, found)
}
