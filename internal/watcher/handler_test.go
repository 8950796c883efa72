package watcher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHandler(t *testing.T) {
	store := NewStore()
	h, err := NewHandler(store, zaptest.NewLogger(t))
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	owner := util.Uint160{1, 2, 3}
	ownerAddress := address.Uint160ToString(owner)

	get := func(t *testing.T, path string, expectedStatus int, res any) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, expectedStatus, resp.StatusCode)
		if res != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(res))
		}
	}

	t.Run("empty history", func(t *testing.T) {
		var count countResponse
		get(t, "/v1/owners/"+ownerAddress+"/keys/count", http.StatusOK, &count)
		require.Zero(t, count.Count)

		var history []keyEntryResponse
		get(t, "/v1/owners/"+ownerAddress+"/keys", http.StatusOK, &history)
		require.Empty(t, history)

		get(t, "/v1/owners/"+ownerAddress+"/keys/active", http.StatusNotFound, nil)
	})

	t.Run("invalid owner", func(t *testing.T) {
		get(t, "/v1/owners/garbage/keys", http.StatusBadRequest, nil)
	})

	store.PutEntry(owner, Entry{Index: 0, PublicKey: []byte{0x02, 0x0a}, Alg: "ecdsa-p256"})
	store.PutEntry(owner, Entry{Index: 1, PublicKey: []byte{0x03, 0x0b}, Alg: "ed25519"})
	require.True(t, store.Revoke(owner, 1))

	t.Run("history", func(t *testing.T) {
		var history []keyEntryResponse
		get(t, "/v1/owners/"+ownerAddress+"/keys", http.StatusOK, &history)
		require.Len(t, history, 2)
		require.Equal(t, "020a", history[0].PublicKey)
		require.False(t, history[0].Revoked)
		require.True(t, history[1].Revoked)
	})

	t.Run("active skips revoked", func(t *testing.T) {
		var active keyEntryResponse
		get(t, "/v1/owners/"+ownerAddress+"/keys/active", http.StatusOK, &active)
		require.Equal(t, 0, active.Index)
		require.Equal(t, "020a", active.PublicKey)
	})

	t.Run("owner as script hash", func(t *testing.T) {
		var count countResponse
		get(t, "/v1/owners/"+owner.StringLE()+"/keys/count", http.StatusOK, &count)
		require.Equal(t, 2, count.Count)
	})

	t.Run("healthz", func(t *testing.T) {
		get(t, "/healthz", http.StatusOK, nil)
	})
}
