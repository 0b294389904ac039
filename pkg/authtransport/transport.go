// Package authtransport wraps an http.RoundTripper so every outgoing
// request carries the stored access credential, and a response that
// signals an expired credential triggers one renewal followed by one
// resubmission of the original request.
//
// A request dispatched while a renewal is in flight does not wait for it:
// it carries whatever access credential is currently stored. If it then
// comes back with a renew status it joins the in-flight renewal instead
// of starting another, so a burst of expired requests costs a single
// renewal exchange.
package authtransport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/patron/pkg/credstore"
	"github.com/aussiebroadwan/patron/pkg/cryptox"
	"github.com/aussiebroadwan/patron/pkg/idx"
	"github.com/aussiebroadwan/patron/pkg/renew"
	"github.com/aussiebroadwan/patron/pkg/slogx"
)

// Options configures a Transport. Store and Renewer are required.
type Options struct {
	// Store supplies the access credential attached to outgoing
	// requests. An absent credential is not an error: the request
	// simply goes out unauthenticated.
	Store credstore.Store

	// Renewer decides when a response demands renewal and runs the
	// exchange.
	Renewer *renew.Renewer

	// Base performs the actual HTTP exchanges, both for normal traffic
	// and for resubmissions. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// Transport is the interceptor. It implements http.RoundTripper.
type Transport struct {
	base    http.RoundTripper
	store   credstore.Store
	renewer *renew.Renewer

	// renewClient carries renewal exchanges over the base transport
	// directly, so they are never themselves intercepted.
	renewClient *http.Client
}

// New builds a Transport.
func New(opts Options) (*Transport, error) {
	if opts.Store == nil {
		return nil, errors.New("authtransport: Options.Store is required")
	}
	if opts.Renewer == nil {
		return nil, errors.New("authtransport: Options.Renewer is required")
	}

	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		base:        base,
		store:       opts.Store,
		renewer:     opts.Renewer,
		renewClient: &http.Client{Transport: base},
	}, nil
}

// NewClient wraps a Transport in a ready-to-use http.Client.
func NewClient(opts Options) (*http.Client, error) {
	t, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t}, nil
}

// RoundTrip sends req with the stored access credential attached. When
// the response status is one of the renew codes, it renews once and
// resubmits the original request with the fresh credential; the
// resubmission's outcome resolves the call as-is, a second renew status
// does not start another cycle. Responses with other statuses, and
// transport-level errors, pass through untouched.
//
// If renewal fails, both stored credentials are cleared and the call
// fails with a *RenewalError.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := slogx.FromContext(ctx)

	access, err := t.store.Get(ctx, credstore.KindAccess)
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		closeBody(req)
		return nil, &RetrievalError{Err: err}
	}

	getBody, err := rewindableBody(req)
	if err != nil {
		return nil, fmt.Errorf("authtransport: failed to buffer request body: %w", err)
	}

	// One request id across the original attempt and any resubmission.
	reqID := req.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = idx.New().String()
	}

	attempt, err := t.prepare(req, getBody, reqID, access)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		// A transport-level failure carries no response, so there is
		// nothing to judge renewal against.
		return nil, err
	}

	if !t.renewer.ShouldRenew(resp) {
		return resp, nil
	}

	status := resp.StatusCode
	drainBody(resp)

	log.DebugContext(ctx, "response demands credential renewal",
		"req_id", reqID,
		"status", status,
		"url", req.URL.Redacted(),
	)

	renewed, renewErr := t.renewer.Renew(ctx, t.renewClient)
	if renewErr != nil {
		// Purge so later requests don't keep spending a dead refresh
		// credential. A failed purge is reported alongside, never
		// instead of, the renewal failure.
		clearErr := t.store.ClearAll(ctx)
		if clearErr != nil {
			log.WarnContext(ctx, "failed to clear credentials after renewal failure",
				"req_id", reqID,
				"error", clearErr,
			)
		}
		return nil, &RenewalError{Status: status, Err: renewErr, ClearErr: clearErr}
	}

	retry, err := t.prepare(req, getBody, reqID, renewed)
	if err != nil {
		return nil, err
	}

	log.DebugContext(ctx, "resubmitting with renewed credential",
		"req_id", reqID,
		"access_fingerprint", cryptox.FingerprintToken(renewed),
	)

	return t.base.RoundTrip(retry)
}

// prepare clones req, restores a replayable body, projects the access
// credential into the headers (overwriting same-named ones) and stamps
// the request id. An empty credential leaves the headers untouched.
func (t *Transport) prepare(req *http.Request, getBody func() (io.ReadCloser, error), reqID, access string) (*http.Request, error) {
	out := req.Clone(req.Context())

	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("authtransport: failed to rewind request body: %w", err)
		}
		out.Body = body
	}

	if access != "" {
		for key, value := range t.renewer.Headers(access) {
			out.Header.Set(key, value)
		}
	}
	out.Header.Set("X-Request-ID", reqID)

	return out, nil
}

// rewindableBody makes the request body replayable so the original
// request can be resubmitted after a renewal. It returns a function
// yielding a fresh reader per call, or nil when there is no body.
func rewindableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	switch {
	case req.Body == nil || req.Body == http.NoBody:
		return nil, nil
	case req.GetBody != nil:
		closeBody(req)
		return req.GetBody, nil
	default:
		buf, err := io.ReadAll(req.Body)
		closeBody(req)
		if err != nil {
			return nil, err
		}
		return func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}, nil
	}
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
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
