// Package adminapi is the supplemental operator surface of SPEC_FULL.md
// §5.4: bearer-token-protected endpoints to trigger an out-of-band crawl
// and to rotate the signing key, kept separate from the federation-facing
// endpoints in internal/httpapi since it speaks a different authorization
// model (a static bearer token, not federation trust).
//
// Uses golang-jwt/jwt/v5 rather than go-jose, mirroring the split already
// present in the retrieval pack between a JOSE-heavy federation primitive
// layer and a JWT-library-based application auth surface.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sunet/inmor-go/internal/apierr"
	"github.com/sunet/inmor-go/internal/crawl"
	"github.com/sunet/inmor-go/internal/signingkey"
)

// Server holds the wiring admin handlers need.
type Server struct {
	Crawler     *crawl.Crawler
	SigningKey  *signingkey.Handle
	CrawlRoots  []string
	BearerToken string // shared-secret bearer token, checked verbatim

	// JWTSecret, if set, enables bearer tokens that are themselves HS256
	// JWTs (an operator convenience over a bare static secret) rather than
	// requiring BearerToken to match exactly.
	JWTSecret []byte
}

// Routes returns the admin mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/crawl", s.authenticated(s.handleCrawl))
	mux.HandleFunc("/admin/rotate-key", s.authenticated(s.handleRotateKey))
	return mux
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			apierr.Unauthorized(w, "missing bearer token")
			return
		}
		if !s.validBearer(token) {
			apierr.Unauthorized(w, "invalid bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) validBearer(token string) bool {
	if s.BearerToken != "" && token == s.BearerToken {
		return true
	}
	if len(s.JWTSecret) == 0 {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.JWTSecret, nil
	})
	return err == nil && parsed.Valid
}

// handleCrawl triggers an immediate synchronous crawl of s.CrawlRoots.
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	result, err := s.Crawler.Run(r.Context(), s.CrawlRoots)
	if err != nil {
		apierr.Internal(w, err)
		return
	}
	writeJSON(w, result)
}

// handleRotateKey rotates the process signing key, retaining the outgoing
// key for historical_keys queries.
func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Algorithm string `json:"algorithm"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	alg := algorithmOrDefault(body.Algorithm)
	if err := s.SigningKey.Rotate(alg); err != nil {
		apierr.Internal(w, err)
		return
	}
	writeJSON(w, struct {
		KeyID string `json:"kid"`
	}{KeyID: s.SigningKey.Current().KeyID})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func algorithmOrDefault(alg string) jose.SignatureAlgorithm {
	if alg == "" {
		return jose.EdDSA
	}
	return jose.SignatureAlgorithm(alg)
}
