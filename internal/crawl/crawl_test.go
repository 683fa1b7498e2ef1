package crawl_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/crawl"
	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/fetch"
	"github.com/sunet/inmor-go/internal/signingkey"
	"github.com/sunet/inmor-go/internal/store"
)

type crawlEntity struct {
	server       *httptest.Server
	key          *signingkey.Handle
	id           string
	subordinates []string
}

func newCrawlEntity(t *testing.T) *crawlEntity {
	t.Helper()
	key, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	ce := &crawlEntity{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-federation", ce.serveEntityConfiguration)
	mux.HandleFunc("/list", ce.serveList)
	ce.server = httptest.NewTLSServer(mux)
	ce.id = ce.server.URL
	return ce
}

func (ce *crawlEntity) serveEntityConfiguration(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	metadata := entity.Metadata{}
	if len(ce.subordinates) > 0 {
		metadata[entity.TypeFederationEntity] = mustJSON(entity.FederationEntityMetadata{
			ListEndpoint:     ce.id + "/list",
			OrganizationName: "Example Authority",
		})
	}
	ec := entity.EntityConfiguration{
		Issuer:     entity.MustNewIdentifier(ce.id),
		Subject:    entity.MustNewIdentifier(ce.id),
		IssuedAt:   now.Unix(),
		Expiration: now.Add(time.Hour).Unix(),
		JWKS:       ce.key.CurrentPublicJWKS(),
		Metadata:   metadata,
	}
	payload, err := json.Marshal(ec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token, err := ce.key.Sign(payload, "entity-statement+jwt")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(token))
}

func (ce *crawlEntity) serveList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ce.subordinates)
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// testHTTPClient returns a client that trusts httptest's shared TLS test
// certificate, the same one every httptest.NewTLSServer instance in this
// package presents, so one client can talk to any of them.
func testHTTPClient() *http.Client {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()
	return srv.Client()
}

// TestCrawlVisitsEntireTree is scenario S6: a crawl starting at the trust
// anchor stages every reachable entity and swaps them into the live
// collection in one pass.
func TestCrawlVisitsEntireTree(t *testing.T) {
	leaf := newCrawlEntity(t)
	mid := newCrawlEntity(t)
	ta := newCrawlEntity(t)
	mid.subordinates = []string{leaf.id}
	ta.subordinates = []string{mid.id}

	st := store.NewMemStore()
	crawler := crawl.New(fetch.New(testHTTPClient(), 1000, 100), st, nil)

	result, err := crawler.Run(t.Context(), []string{ta.id})
	require.NoError(t, err)
	require.Equal(t, 3, result.Visited)
	require.Equal(t, 3, result.Staged)
	require.Empty(t, result.Errors)

	entries, err := st.ListLive(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

// TestCrawlSwapReplacesPriorGeneration is scenario S6's second half: a
// second crawl over a shrunk tree fully replaces the first generation's
// live collection rather than merging into it.
func TestCrawlSwapReplacesPriorGeneration(t *testing.T) {
	leaf := newCrawlEntity(t)
	ta := newCrawlEntity(t)
	ta.subordinates = []string{leaf.id}

	st := store.NewMemStore()
	crawler := crawl.New(fetch.New(testHTTPClient(), 1000, 100), st, nil)

	_, err := crawler.Run(t.Context(), []string{ta.id})
	require.NoError(t, err)

	// Shrink the tree: leaf is no longer listed.
	ta.subordinates = nil
	_, err = crawler.Run(t.Context(), []string{ta.id})
	require.NoError(t, err)

	entries, err := st.ListLive(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ta.id, entries[0].EntityID)
}

func TestCrawlToleratesUnreachableBranch(t *testing.T) {
	ta := newCrawlEntity(t)
	ta.subordinates = []string{"https://unreachable.invalid.example"}

	st := store.NewMemStore()
	crawler := crawl.New(fetch.New(testHTTPClient(), 1000, 100), st, nil)

	result, err := crawler.Run(t.Context(), []string{ta.id})
	require.NoError(t, err)
	require.Equal(t, 1, result.Staged)
	require.NotEmpty(t, result.Errors)
}

func TestCrawlRespectsMaxEntities(t *testing.T) {
	leaf := newCrawlEntity(t)
	ta := newCrawlEntity(t)
	ta.subordinates = []string{leaf.id}

	st := store.NewMemStore()
	crawler := crawl.New(fetch.New(testHTTPClient(), 1000, 100), st, nil)
	crawler.MaxEntities = 1

	result, err := crawler.Run(t.Context(), []string{ta.id})
	require.NoError(t, err)
	require.Equal(t, 1, result.Visited)
}
