// Package httpapi serves the nine read endpoints of spec.md §6 over HTTP.
// Everything in this package — routing, request parsing, content
// negotiation — is explicitly out of the core's scope per spec.md §1; it
// exists here as the "HTTP endpoint adapters... out of scope" ~40%
// surrounding the three in-scope subsystems, grounded on
// _examples/Mindburn-Labs-helm/core/pkg/auth's middleware chaining and
// pkg/api's per-status error helper shape.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	josepkg "github.com/go-jose/go-jose/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sunet/inmor-go/internal/apierr"
	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/jose"
	"github.com/sunet/inmor-go/internal/obs"
	"github.com/sunet/inmor-go/internal/policy"
	"github.com/sunet/inmor-go/internal/resolve"
	"github.com/sunet/inmor-go/internal/signingkey"
	"github.com/sunet/inmor-go/internal/store"
	"github.com/sunet/inmor-go/internal/trustmark"
)

// Server holds the wiring every handler needs.
type Server struct {
	SelfID         string
	SelfMetadata   entity.Metadata
	AuthorityHints []string

	SigningKey *signingkey.Handle
	Store      store.Store
	Resolver   *resolve.Resolver
	Policy     policy.Merger
	TrustMarks *trustmark.Service
	Obs        *obs.Provider

	Now func() time.Time
}

// New constructs a Server.
func New(selfID string, metadata entity.Metadata, key *signingkey.Handle, st store.Store, resolver *resolve.Resolver, pol policy.Merger, tm *trustmark.Service) *Server {
	return &Server{
		SelfID:       selfID,
		SelfMetadata: metadata,
		SigningKey:   key,
		Store:        st,
		Resolver:     resolver,
		Policy:       pol,
		TrustMarks:   tm,
		Now:          time.Now,
	}
}

// Routes returns the configured mux, wrapped in the request-ID middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-federation", s.handleEntityConfiguration)
	mux.HandleFunc("/list", s.handleList)
	mux.HandleFunc("/fetch", s.handleFetch)
	mux.HandleFunc("/collection", s.handleCollection)
	mux.HandleFunc("/resolve", s.handleResolve)
	mux.HandleFunc("/trust_mark", s.handleTrustMark)
	mux.HandleFunc("/trust_mark_list", s.handleTrustMarkList)
	mux.HandleFunc("/trust_mark_status", s.handleTrustMarkStatus)
	mux.HandleFunc("/historical_keys", s.handleHistoricalKeys)
	return requestIDMiddleware(mux)
}

func (s *Server) track(r *http.Request, name string) (func(error), *http.Request) {
	if s.Obs == nil {
		return func(error) {}, r
	}
	ctx, done := s.Obs.TrackOperation(r.Context(), name,
		attribute.String("request_id", requestIDFromContext(r.Context())),
	)
	return done, r.WithContext(ctx)
}

// handleEntityConfiguration serves GET /.well-known/openid-federation: this
// server's own self-signed entity configuration.
func (s *Server) handleEntityConfiguration(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.entity_configuration")
	var err error
	defer func() { done(err) }()

	now := s.Now()
	hints := make([]entity.Identifier, 0, len(s.AuthorityHints))
	for _, h := range s.AuthorityHints {
		id, parseErr := entity.NewIdentifier(h)
		if parseErr == nil {
			hints = append(hints, id)
		}
	}
	selfID, idErr := entity.NewIdentifier(s.SelfID)
	if idErr != nil {
		err = idErr
		apierr.Internal(w, err)
		return
	}

	ec := entity.EntityConfiguration{
		Issuer:         selfID,
		Subject:        selfID,
		IssuedAt:       now.Unix(),
		Expiration:     now.Add(24 * time.Hour).Unix(),
		JWKS:           s.SigningKey.CurrentPublicJWKS(),
		AuthorityHints: hints,
		Metadata:       s.SelfMetadata,
	}

	token, signErr := s.signJSON(ec, "entity-statement+jwt")
	if signErr != nil {
		err = signErr
		apierr.Internal(w, err)
		return
	}
	writeToken(w, "application/entity-statement+jwt", token)
}

// handleList serves GET /list: the live direct subordinates of this
// authority, optionally filtered by entity_type.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.list")
	var err error
	defer func() { done(err) }()

	want := parseEntityTypes(r.URL.Query()["entity_type"])

	subs, listErr := s.Store.Subordinates(r.Context(), s.SelfID)
	if listErr != nil {
		err = listErr
		apierr.Internal(w, err)
		return
	}

	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		entry, getErr := s.Store.GetLive(r.Context(), sub)
		if getErr != nil {
			continue
		}
		if len(want) == 0 || entryHasAnyType(entry, want) {
			out = append(out, sub)
		}
	}
	writeJSON(w, out)
}

func entryHasAnyType(e entity.CollectionEntry, want []entity.EntityTypeIdentifier) bool {
	for _, w := range want {
		for _, t := range e.EntityTypes {
			if w == t {
				return true
			}
		}
	}
	return false
}

// handleFetch serves GET /fetch?sub=...: this authority's cached
// subordinate statement about sub.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.fetch")
	var err error
	defer func() { done(err) }()

	sub := r.URL.Query().Get("sub")
	if sub == "" {
		apierr.UnsupportedParameter(w, "sub is required")
		return
	}

	token, getErr := s.Store.SubordinateStatement(r.Context(), sub)
	if getErr != nil {
		err = getErr
		apierr.NotFound(w, "no subordinate statement for "+sub)
		return
	}
	writeToken(w, "application/entity-statement+jwt", token)
}

// handleCollection serves GET /collection: the live entity collection,
// optionally filtered by entity_type.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.collection")
	var err error
	defer func() { done(err) }()

	for param := range r.URL.Query() {
		if param != "entity_type" {
			apierr.UnsupportedParameter(w, "unsupported parameter "+param)
			return
		}
	}

	want := parseEntityTypes(r.URL.Query()["entity_type"])
	entries, listErr := s.Store.ListLive(r.Context(), want)
	if listErr != nil {
		err = listErr
		apierr.Internal(w, err)
		return
	}

	if etag, etagErr := s.Store.LiveETag(r.Context()); etagErr == nil {
		w.Header().Set("ETag", `"`+etag+`"`)
	}
	writeJSON(w, entries)
}

// handleResolve serves GET /resolve: builds and verifies a trust chain to
// one of the given trust anchors, applies the chain's accumulated metadata
// policy, and returns a signed resolve-response token.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.resolve")
	var err error
	defer func() { done(err) }()

	q := r.URL.Query()
	sub := q.Get("sub")
	if sub == "" {
		apierr.UnsupportedParameter(w, "sub is required")
		return
	}
	anchors := q["trust_anchor"]
	if len(anchors) == 0 {
		apierr.UnsupportedParameter(w, "trust_anchor is required")
		return
	}
	filter := parseEntityTypes(q["entity_type"])

	chain, resolveErr := s.Resolver.Resolve(r.Context(), sub, anchors)
	if resolveErr != nil {
		err = resolveErr
		apierr.InvalidTrustChain(w, err.Error())
		return
	}

	metadata, policyErr := policy.ApplyChain(s.Policy, chain, filter)
	if policyErr != nil {
		err = policyErr
		apierr.InvalidTrustChain(w, err.Error())
		return
	}

	now := s.Now()
	resp := struct {
		Issuer     string          `json:"iss"`
		Subject    string          `json:"sub"`
		IssuedAt   int64           `json:"iat"`
		Expiration int64           `json:"exp"`
		Metadata   entity.Metadata `json:"metadata"`
		TrustChain []string        `json:"trust_chain"`
	}{
		Issuer:     s.SelfID,
		Subject:    sub,
		IssuedAt:   now.Unix(),
		Expiration: resolve.EffectiveExpiration(chain, now),
		Metadata:   metadata,
		TrustChain: chain.Tokens(),
	}

	token, signErr := s.signJSON(resp, "resolve-response+jwt")
	if signErr != nil {
		err = signErr
		apierr.Internal(w, err)
		return
	}
	writeToken(w, "application/resolve-response+jwt", token)
}

// handleTrustMark serves GET /trust_mark?trust_mark_type=...&sub=...
func (s *Server) handleTrustMark(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.trust_mark")
	var err error
	defer func() { done(err) }()

	q := r.URL.Query()
	tmType, sub := q.Get("trust_mark_type"), q.Get("sub")
	if tmType == "" || sub == "" {
		apierr.UnsupportedParameter(w, "trust_mark_type and sub are required")
		return
	}

	token, queryErr := s.TrustMarks.Query(r.Context(), sub, tmType)
	if queryErr != nil {
		err = queryErr
		apierr.NotFound(w, "no trust mark issued")
		return
	}
	writeToken(w, "application/trust-mark+jwt", token)
}

// handleTrustMarkList serves GET /trust_mark_list?trust_mark_type=...&sub?
func (s *Server) handleTrustMarkList(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.trust_mark_list")
	var err error
	defer func() { done(err) }()

	q := r.URL.Query()
	tmType := q.Get("trust_mark_type")
	if tmType == "" {
		apierr.UnsupportedParameter(w, "trust_mark_type is required")
		return
	}

	subjects, listErr := s.TrustMarks.List(r.Context(), tmType, q.Get("sub"))
	if listErr != nil {
		err = listErr
		apierr.NotFound(w, "no such subject for trust mark type")
		return
	}
	writeJSON(w, subjects)
}

// handleTrustMarkStatus serves POST /trust_mark_status, form field
// trust_mark, returning a signed trust-mark-status-response token.
func (s *Server) handleTrustMarkStatus(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.trust_mark_status")
	var err error
	defer func() { done(err) }()

	if parseErr := r.ParseForm(); parseErr != nil {
		apierr.UnsupportedParameter(w, "could not parse form body")
		return
	}
	token := r.PostForm.Get("trust_mark")
	if token == "" {
		apierr.UnsupportedParameter(w, "trust_mark is required")
		return
	}

	status, _, statusErr := s.TrustMarks.Status(r.Context(), token, &josepkg.JSONWebKeySet{Keys: s.SigningKey.PublicJWKS().Keys})
	if statusErr != nil {
		err = statusErr
		apierr.NotFound(w, "unknown trust mark")
		return
	}

	now := s.Now()
	resp := struct {
		Issuer     string `json:"iss"`
		IssuedAt   int64  `json:"iat"`
		Expiration int64  `json:"exp"`
		TrustMark  string `json:"trust_mark"`
		Status     string `json:"status"`
	}{
		Issuer:     s.SelfID,
		IssuedAt:   now.Unix(),
		Expiration: now.Add(24 * time.Hour).Unix(),
		TrustMark:  token,
		Status:     string(status),
	}

	signed, signErr := s.signJSON(resp, "trust-mark-status-response+jwt")
	if signErr != nil {
		err = signErr
		apierr.Internal(w, err)
		return
	}
	writeToken(w, "application/trust-mark-status-response+jwt", signed)
}

// handleHistoricalKeys serves GET /historical_keys: a signed JWK set
// covering every signing key this server has ever published.
func (s *Server) handleHistoricalKeys(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "http.historical_keys")
	var err error
	defer func() { done(err) }()

	token, signErr := s.signJSON(s.SigningKey.PublicJWKS(), "jwk-set+jwt")
	if signErr != nil {
		err = signErr
		apierr.Internal(w, err)
		return
	}
	writeToken(w, "application/jwk-set+jwt", token)
}

func (s *Server) signJSON(v interface{}, typ string) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return jose.Sign(payload, s.SigningKey.Current(), typ)
}

func writeToken(w http.ResponseWriter, contentType, token string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(token))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseEntityTypes(values []string) []entity.EntityTypeIdentifier {
	out := make([]entity.EntityTypeIdentifier, 0, len(values))
	for _, v := range values {
		out = append(out, entity.EntityTypeIdentifier(v))
	}
	return out
}
