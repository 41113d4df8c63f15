package main

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

const (
	cookieFilename = "api.cookie"
	tokenBytes     = 24
)

// ErrNoCookie is returned when no daemon has written a cookie to the data dir.
var ErrNoCookie = errors.New("no API cookie found")

func cookiePath(dataDir string) string {
	return filepath.Join(dataDir, cookieFilename)
}

// generateToken returns a random base58 bearer token.
func generateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base58.Encode(raw), nil
}

// writeCookie stores token under dataDir, readable only by the owner.
// The file is written beside its final name and renamed into place so a
// client never reads a half-written token.
func writeCookie(dataDir, token string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return err
	}
	tmp := cookiePath(dataDir) + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0600); err != nil {
		return err
	}
	return os.Rename(tmp, cookiePath(dataDir))
}

func readCookie(dataDir string) (string, error) {
	raw, err := os.ReadFile(cookiePath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w in %s", ErrNoCookie, dataDir)
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("%w in %s (empty file)", ErrNoCookie, dataDir)
	}
	return token, nil
}

func deleteCookie(dataDir string) {
	_ = os.Remove(cookiePath(dataDir))
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, cred, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || cred == "" {
		return "", false
	}
	return cred, true
}

// authMiddleware guards everything except the scrape endpoint.
func authMiddleware(token string, next http.Handler) http.Handler {
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="blocksim"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
