// Command patron-demo runs the whole credential pipeline against a live
// issuer in one process: it starts barkeep, signs a throwaway patron in,
// then makes authenticated calls through authtransport while the access
// token repeatedly expires underneath it. Watch the logs for the 401 →
// renew → resubmit cycle; the demo itself never touches a credential
// after the initial sign-in.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/patron/internal/barkeep"
	"github.com/aussiebroadwan/patron/pkg/authtransport"
	"github.com/aussiebroadwan/patron/pkg/credstore"
	"github.com/aussiebroadwan/patron/pkg/credstore/drivers/file"
	"github.com/aussiebroadwan/patron/pkg/credstore/drivers/memory"
	credredis "github.com/aussiebroadwan/patron/pkg/credstore/drivers/redis"
	"github.com/aussiebroadwan/patron/pkg/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/patron/pkg/cryptox"
	"github.com/aussiebroadwan/patron/pkg/renew"
	"github.com/aussiebroadwan/patron/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

func main() {
	cfg := LoadConfig()

	logger := slogx.New(slogx.Config{
		Service: "patron-demo",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer cleanup()

	// The issuer the demo runs against, seeded with one throwaway patron.
	password, err := cryptox.GeneratePassword()
	if err != nil {
		return fmt.Errorf("generate patron password: %w", err)
	}

	svc, err := barkeep.New(barkeep.Config{
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("build issuer: %w", err)
	}
	if err := svc.CreateAccount(cfg.Username, password); err != nil {
		return fmt.Errorf("seed patron account: %w", err)
	}

	router := barkeep.NewRouter(svc, BuildVersion, logger)
	router.ApplyRoutes()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("issuer server failed", "error", err)
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	logger.Info("barkeep serving",
		"url", baseURL,
		"store_driver", cfg.StoreDriver,
		"access_ttl", cfg.AccessTTL,
	)

	sweeper := barkeep.NewSweeper(svc, logger, cfg.SweepInterval)
	sweeper.Start()

	flowErr := runFlow(ctx, cfg, logger, store, baseURL, password)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful server shutdown failed", "error", err)
		_ = server.Close()
	}
	sweeper.Stop()

	return flowErr
}

// runFlow is the patron's side of the demo: one explicit sign-in, then
// authenticated calls with deliberate pauses long enough for the access
// token to lapse between them.
func runFlow(
	ctx context.Context,
	cfg Config,
	logger *slog.Logger,
	store credstore.Store,
	baseURL, password string,
) error {
	tokenURL := baseURL + "/v1/oauth2/token"

	pair, err := signIn(ctx, tokenURL, cfg.Username, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := store.Save(ctx, credstore.KindAccess, pair.AccessToken); err != nil {
		return fmt.Errorf("seed access credential: %w", err)
	}
	if err := store.Save(ctx, credstore.KindRefresh, pair.RefreshToken); err != nil {
		return fmt.Errorf("seed refresh credential: %w", err)
	}
	logger.Info("signed in",
		"patron", cfg.Username,
		"access_fingerprint", cryptox.FingerprintToken(pair.AccessToken),
	)

	renewer, err := renew.New(renew.Options{
		Store:   store,
		Renew:   renew.Grant(tokenURL, ""),
		Access:  renew.JSONField("access_token"),
		Refresh: renew.JSONField("refresh_token"),
		Config:  renew.Config{MaxAttempts: 2},
	})
	if err != nil {
		return fmt.Errorf("build renewer: %w", err)
	}

	// Retryable base transport: connection-level hiccups are its problem,
	// credential expiry is ours.
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil

	client, err := authtransport.NewClient(authtransport.Options{
		Store:   store,
		Renewer: renewer,
		Base:    &retryablehttp.RoundTripper{Client: rc},
	})
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	for round := 1; round <= cfg.Rounds; round++ {
		tab, err := viewTab(ctx, client, baseURL)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		logger.Info("tab fetched",
			"round", round,
			"patron", tab.Patron,
			"rounds_on_tab", tab.Rounds,
		)

		if round == cfg.Rounds {
			break
		}

		// Let the access token lapse so the next call has to renew.
		wait := cfg.AccessTTL + 500*time.Millisecond
		logger.Info("waiting out the access credential", "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	logger.Info("demo complete", "rounds", cfg.Rounds)
	return nil
}

func signIn(ctx context.Context, tokenURL, username, password string) (*barkeep.TokenResponse, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint answered %d: %s", resp.StatusCode, body)
	}

	var pair barkeep.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &pair, nil
}

func viewTab(ctx context.Context, client *http.Client, baseURL string) (*barkeep.TabResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/tab", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tab endpoint answered %d: %s", resp.StatusCode, body)
	}

	var tab barkeep.TabResponse
	if err := json.NewDecoder(resp.Body).Decode(&tab); err != nil {
		return nil, fmt.Errorf("decode tab response: %w", err)
	}
	return &tab, nil
}

// openStore builds the credential store named by the config. The
// returned cleanup closes whatever the driver sits on.
func openStore(cfg Config) (credstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		st := memory.NewStore()
		return st, func() { _ = st.Close() }, nil

	case "file":
		st, err := file.NewStore(cfg.StoreFile, cfg.StorePassphrase)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case "sqlite":
		st, err := sqlite.NewStore(cfg.SQLiteFile)
		if err != nil {
			return nil, nil, err
		}
		if err := st.ApplyMigrations(); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		st := credredis.NewStore(client, credredis.Config{})
		return st, func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q (want memory, file, sqlite or redis)", cfg.StoreDriver)
	}
}
