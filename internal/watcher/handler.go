package watcher

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

type keyEntryResponse struct {
	Index        int    `json:"index"`
	PublicKey    string `json:"publicKey"`
	Alg          string `json:"alg"`
	RegisteredAt int64  `json:"registeredAt"`
	ExpiresAt    int64  `json:"expiresAt"`
	Revoked      bool   `json:"revoked"`
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds the watcher HTTP API on top of the given store:
//
//	GET /v1/owners/{owner}/keys        - full key history
//	GET /v1/owners/{owner}/keys/count  - history length
//	GET /v1/owners/{owner}/keys/active - most recent usable key
//	GET /healthz
//	GET /metrics
//
// Owner is either a Neo address or a little-endian script hash in hex.
func NewHandler(store *Store, log *zap.Logger) (http.Handler, error) {
	metricsHandler, err := RegisterMetrics(nil)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(requestID(log))
	r.Use(WithMetrics)

	r.Get("/v1/owners/{owner}/keys", func(w http.ResponseWriter, req *http.Request) {
		owner, ok := ownerFromRequest(w, req)
		if !ok {
			return
		}
		history := store.History(owner)
		res := make([]keyEntryResponse, 0, len(history))
		for _, e := range history {
			res = append(res, toResponse(e))
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/v1/owners/{owner}/keys/count", func(w http.ResponseWriter, req *http.Request) {
		owner, ok := ownerFromRequest(w, req)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: store.Count(owner)})
	})

	r.Get("/v1/owners/{owner}/keys/active", func(w http.ResponseWriter, req *http.Request) {
		owner, ok := ownerFromRequest(w, req)
		if !ok {
			return
		}
		e, found := store.Active(owner, time.Now().UnixMilli())
		if !found {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no active key"})
			return
		}
		writeJSON(w, http.StatusOK, toResponse(e))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metricsHandler)

	return r, nil
}

// requestID tags every request with a generated ID for log correlation.
func requestID(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := uuid.NewString()
			w.Header().Set("X-Request-Id", id)
			log.Debug("request",
				zap.String("id", id),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path))
			next.ServeHTTP(w, req)
		})
	}
}

func ownerFromRequest(w http.ResponseWriter, req *http.Request) (util.Uint160, bool) {
	s := chi.URLParam(req, "owner")
	owner, err := address.StringToUint160(s)
	if err == nil {
		return owner, true
	}
	owner, err = util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid owner: expected Neo address or script hash"})
		return util.Uint160{}, false
	}
	return owner, true
}

func toResponse(e Entry) keyEntryResponse {
	return keyEntryResponse{
		Index:        e.Index,
		PublicKey:    hex.EncodeToString(e.PublicKey),
		Alg:          e.Alg,
		RegisteredAt: e.RegisteredAt,
		ExpiresAt:    e.ExpiresAt,
		Revoked:      e.Revoked,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
