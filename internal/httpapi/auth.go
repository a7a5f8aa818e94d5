package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/persistence"
)

const bearerPrefix = "Bearer "

// deviceAuth gates every /api route behind a live paired device's bearer
// token (spec.md §8 Invariant 6: a revoked device is rejected on every
// subsequent request). /api/pair/generate and /api/pair/exchange are
// mounted outside this middleware since a device has no token yet when it
// calls them.
func deviceAuth(store persistence.PairingStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := authenticateDevice(r.Context(), store, r.Header.Get("Authorization")); err != nil {
				writeError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// wsAuthenticate adapts the same check for events.Handler. A browser
// WebSocket client can't set an Authorization header on the handshake, so
// it falls back to a device_token query parameter.
func wsAuthenticate(store persistence.PairingStore) func(*http.Request) error {
	return func(r *http.Request) error {
		header := r.Header.Get("Authorization")
		if header == "" {
			if tok := r.URL.Query().Get("device_token"); tok != "" {
				header = bearerPrefix + tok
			}
		}
		_, err := authenticateDevice(r.Context(), store, header)
		return err
	}
}

// authenticateDevice resolves the bearer token in authHeader against every
// paired device's stored bcrypt hash (spec.md §6.1 device_token_hash) and
// rejects a revoked match. bcrypt salts each hash independently, so the
// token can't be looked up by equality; a profile's device fleet is small
// enough that a linear bcrypt scan is cheap.
func authenticateDevice(ctx context.Context, store persistence.PairingStore, authHeader string) (persistence.PairedDevice, error) {
	token, ok := strings.CutPrefix(authHeader, bearerPrefix)
	if !ok || token == "" {
		return persistence.PairedDevice{}, &errs.AuthError{Reason: "missing device token"}
	}

	devices, err := store.ListDevices(ctx)
	if err != nil {
		return persistence.PairedDevice{}, err
	}
	for _, d := range devices {
		if bcrypt.CompareHashAndPassword([]byte(d.DeviceTokenHash), []byte(token)) != nil {
			continue
		}
		if d.RevokedAt != nil {
			return persistence.PairedDevice{}, errs.ErrDeviceRevoked
		}
		return d, nil
	}
	return persistence.PairedDevice{}, &errs.AuthError{Reason: "unrecognized device token"}
}
