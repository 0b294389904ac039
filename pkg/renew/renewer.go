package renew

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/patron/pkg/credstore"
	"github.com/aussiebroadwan/patron/pkg/cryptox"
	"github.com/aussiebroadwan/patron/pkg/slogx"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Func performs the renewal network exchange: spend the refresh
// credential, get back a response for the extractors to pick apart.
// Any error it returns fails the current attempt with that cause.
type Func func(ctx context.Context, client Doer, refresh string) (*http.Response, error)

// Extractor pulls one credential out of a renewal response body.
// Returning "" with a nil error means the response carries no such
// credential; an error fails the attempt with that cause.
type Extractor func(body []byte) (string, error)

// Options configures a Renewer. Store, Renew and Access are required.
type Options struct {
	// Store holds the credential pair the renewer reads and writes.
	Store credstore.Store

	// Renew performs the network exchange.
	Renew Func

	// Access extracts the new access credential from a successful
	// renewal response.
	Access Extractor

	// Refresh extracts the rotated refresh credential when the backend
	// rotates it. Nil, or an extractor reporting absence, keeps the
	// stored refresh credential as is.
	Refresh Extractor

	// Config tunes status codes, the header template and the attempt
	// budget. Zero fields take the package defaults.
	Config Config
}

// Renewer runs the renewal state machine for one credential pair.
//
// All of it, the refresh read included, executes inside a single flight:
// when several requests fail at once, one renewal exchange runs and every
// caller shares its outcome. A Renewer must not be copied after first use.
type Renewer struct {
	store   credstore.Store
	renew   Func
	access  Extractor
	refresh Extractor

	renewCodes   map[int]struct{}
	successCodes map[int]struct{}
	template     map[string]string
	maxAttempts  int

	sf singleflight.Group
}

// New builds a Renewer, filling defaults for zero Config fields.
func New(opts Options) (*Renewer, error) {
	if opts.Store == nil {
		return nil, errors.New("renew: Options.Store is required")
	}
	if opts.Renew == nil {
		return nil, errors.New("renew: Options.Renew is required")
	}
	if opts.Access == nil {
		return nil, errors.New("renew: Options.Access is required")
	}

	cfg := opts.Config
	if len(cfg.RenewCodes) == 0 {
		cfg.RenewCodes = defaultRenewCodes
	}
	if len(cfg.SuccessCodes) == 0 {
		cfg.SuccessCodes = defaultSuccessCodes
	}
	if len(cfg.HeaderTemplate) == 0 {
		cfg.HeaderTemplate = defaultTemplate
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	template := make(map[string]string, len(cfg.HeaderTemplate))
	for key, prefix := range cfg.HeaderTemplate {
		template[key] = prefix
	}

	return &Renewer{
		store:        opts.Store,
		renew:        opts.Renew,
		access:       opts.Access,
		refresh:      opts.Refresh,
		renewCodes:   toSet(cfg.RenewCodes),
		successCodes: toSet(cfg.SuccessCodes),
		template:     template,
		maxAttempts:  cfg.MaxAttempts,
	}, nil
}

// ShouldRenew reports whether resp signals an expired access credential.
// A nil response (connection-level failure) never triggers renewal.
func (r *Renewer) ShouldRenew(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	_, ok := r.renewCodes[resp.StatusCode]
	return ok
}

// Headers projects an access credential through the header template. The
// returned map is freshly allocated on every call.
func (r *Renewer) Headers(access string) map[string]string {
	headers := make(map[string]string, len(r.template))
	for key, prefix := range r.template {
		headers[key] = prefix + access
	}
	return headers
}

// Renew exchanges the stored refresh credential for a new access
// credential, persists it (and the rotated refresh credential, if any)
// and returns it. It never returns an empty credential with a nil error.
//
// Concurrent calls join the in-progress renewal and share its outcome.
// The exchange runs detached from ctx's cancellation: other callers may
// be waiting on the same flight, so one caller going away must not tear
// it down. Context values still flow through for logging.
func (r *Renewer) Renew(ctx context.Context, client Doer) (string, error) {
	v, err, shared := r.sf.Do("renew", func() (any, error) {
		return r.doRenew(context.WithoutCancel(ctx), client)
	})
	if shared {
		slogx.FromContext(ctx).DebugContext(ctx, "joined in-flight renewal")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Renewer) doRenew(ctx context.Context, client Doer) (string, error) {
	log := slogx.FromContext(ctx)

	refresh, err := r.store.Get(ctx, credstore.KindRefresh)
	if errors.Is(err, credstore.ErrNotFound) {
		return "", ErrMissingRefresh
	}
	if err != nil {
		return "", fmt.Errorf("renew: read refresh credential: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		access, err := r.attempt(ctx, client, refresh)
		if err == nil {
			log.DebugContext(ctx, "credential renewed",
				"attempt", attempt,
				"access_fingerprint", cryptox.FingerprintToken(access))
			return access, nil
		}

		lastErr = err
		log.WarnContext(ctx, "renewal attempt failed",
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err)
	}

	return "", fmt.Errorf("renew: exhausted %d attempt(s): %w", r.maxAttempts, lastErr)
}

// attempt performs one full exchange: call, judge status, extract,
// persist. The access credential is saved strictly before the refresh
// credential so an interruption between the two still leaves a usable
// new-access/old-refresh pair.
func (r *Renewer) attempt(ctx context.Context, client Doer, refresh string) (string, error) {
	resp, err := r.renew(ctx, client, refresh)
	if err != nil {
		return "", fmt.Errorf("renewal call: %w", err)
	}

	if _, ok := r.successCodes[resp.StatusCode]; !ok {
		drainBody(resp)
		return "", &RejectedError{Status: resp.StatusCode}
	}

	body, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("read renewal response: %w", err)
	}

	access, err := r.access(body)
	if err != nil {
		return "", fmt.Errorf("extract access credential: %w", err)
	}
	if access == "" {
		return "", ErrAccessExtraction
	}

	if err := r.store.Save(ctx, credstore.KindAccess, access); err != nil {
		return "", fmt.Errorf("persist access credential: %w", err)
	}

	if r.refresh != nil {
		rotated, err := r.refresh(body)
		if err != nil {
			return "", fmt.Errorf("extract refresh credential: %w", err)
		}
		if rotated != "" {
			if err := r.store.Save(ctx, credstore.KindRefresh, rotated); err != nil {
				return "", fmt.Errorf("persist refresh credential: %w", err)
			}
		}
	}

	return access, nil
}

// readBody consumes and closes the response body. It is read exactly once
// since both extractors need it.
func readBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// drainBody discards a bounded amount of an unwanted body so the
// underlying connection can be reused, then closes it.
func drainBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
