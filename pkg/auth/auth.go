// Package auth guards the admin surface with HTTP Basic credentials.
// The username is fixed; the password comes from configuration and is
// compared in constant time. An unconfigured password locks the surface
// rather than opening it.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

const adminUser = "admin"

// Basic returns middleware enforcing Basic auth for the admin user.
// Requests answer 503 while no password is configured and 401 on bad
// credentials, with a challenge header so browsers prompt.
func Basic(password string) func(http.Handler) http.Handler {
	expectedUser := digest(adminUser)
	expectedPass := digest(password)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				writeError(w, http.StatusServiceUnavailable, "admin access is not configured")
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				challenge(w)
				return
			}
			userOK := subtle.ConstantTimeCompare(digest(user), expectedUser) == 1
			passOK := subtle.ConstantTimeCompare(digest(pass), expectedPass) == 1
			if !userOK || !passOK {
				challenge(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// digest hashes before comparing so input length leaks nothing.
func digest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="switchboard admin"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
