package patron_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/patron/internal/barkeep"
	"github.com/aussiebroadwan/patron/pkg/authtransport"
	"github.com/aussiebroadwan/patron/pkg/credstore"
	"github.com/aussiebroadwan/patron/pkg/renew"
	"github.com/aussiebroadwan/patron/pkg/slogx"
)

/*
 * Common helpers for the credential pipeline end-to-end tests. The
 * issuer runs in-process; the pipeline talks to it over real TCP via
 * httptest, so every renewal crosses the wire.
 */

const (
	patronUsername = "fred"
	patronPassword = "schooner-money"
)

// barkeepFixture is a running issuer plus the hooks the tests assert on.
type barkeepFixture struct {
	URL     string
	Service *barkeep.Service

	// TokenCalls counts hits on the token endpoint, so tests can tell
	// exactly when the pipeline had to renew.
	TokenCalls *atomic.Int32
}

func (f *barkeepFixture) tokenURL() string {
	return f.URL + "/v1/oauth2/token"
}

// startBarkeep runs an issuer with one seeded patron account and
// returns its fixture. The server is torn down with the test.
func startBarkeep(t *testing.T, cfg barkeep.Config) *barkeepFixture {
	t.Helper()

	svc, err := barkeep.New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.CreateAccount(patronUsername, patronPassword))

	router := barkeep.NewRouter(svc, "e2e", slogx.Discard())
	router.ApplyRoutes()

	var tokenCalls atomic.Int32
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			tokenCalls.Add(1)
		}
		router.ServeHTTP(w, r)
	})

	server := httptest.NewServer(counting)
	t.Cleanup(server.Close)

	return &barkeepFixture{
		URL:        server.URL,
		Service:    svc,
		TokenCalls: &tokenCalls,
	}
}

// signInAndSeed performs the one explicit password grant of a flow and
// stores the resulting pair, the way an application would on login.
func signInAndSeed(t *testing.T, store credstore.Store, fix *barkeepFixture) (access, refresh string) {
	t.Helper()
	ctx := context.Background()

	form := url.Values{
		"grant_type": {"password"},
		"username":   {patronUsername},
		"password":   {patronPassword},
	}
	resp, err := http.Post(fix.tokenURL(),
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "sign-in should succeed")

	var pair barkeep.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	require.NoError(t, store.Save(ctx, credstore.KindAccess, pair.AccessToken))
	require.NoError(t, store.Save(ctx, credstore.KindRefresh, pair.RefreshToken))

	return pair.AccessToken, pair.RefreshToken
}

// newPatronClient builds the full pipeline: renewer wired to the
// issuer's token endpoint, transport on top of the given store.
func newPatronClient(t *testing.T, store credstore.Store, fix *barkeepFixture) *http.Client {
	t.Helper()

	renewer, err := renew.New(renew.Options{
		Store:   store,
		Renew:   renew.Grant(fix.tokenURL(), ""),
		Access:  renew.JSONField("access_token"),
		Refresh: renew.JSONField("refresh_token"),
	})
	require.NoError(t, err)

	client, err := authtransport.NewClient(authtransport.Options{
		Store:   store,
		Renewer: renewer,
	})
	require.NoError(t, err)

	return client
}

// getTab fetches the protected endpoint and decodes it, failing the
// test on any non-200 answer.
func getTab(t *testing.T, client *http.Client, fix *barkeepFixture) barkeep.TabResponse {
	t.Helper()

	resp, err := client.Get(fix.URL + "/v1/tab")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "tab endpoint answered: %s", body)

	var tab barkeep.TabResponse
	require.NoError(t, json.Unmarshal(body, &tab))
	return tab
}

// startRedis runs a throwaway Redis container and returns its address.
func startRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}
