package barkeep

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/patron/pkg/httpx"
	"github.com/aussiebroadwan/patron/pkg/slogx"
)

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// TabResponse is the body of the protected tab endpoint.
type TabResponse struct {
	Patron string `json:"patron"`
	Rounds int    `json:"rounds"`
}

// HealthResponse is the body of the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version,omitempty"`
}

// TokenHandler serves POST /v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	Service *Service
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Handle the grant type
	switch r.Form.Get("grant_type") {
	case "password":
		h.handlePasswordGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handlePasswordGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	username := strings.TrimSpace(form.Get("username"))
	password := form.Get("password")

	if username == "" || password == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Service.PasswordGrant(ctx, username, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			ErrInvalidGrant.WriteError(w)
		default:
			log.Error("password grant failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenPair(w, pair)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := form.Get("refresh_token")
	if refresh == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Service.RefreshGrant(ctx, refresh)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRefresh):
			ErrInvalidGrant.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenPair(w, pair)
}

func writeTokenPair(w http.ResponseWriter, pair *TokenPair) {
	response := TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

// TabHandler serves GET /v1/tab behind bearer authentication. Each view
// pours another round onto the patron's tab, which keeps successive
// authenticated calls visibly distinct in demo output.
type TabHandler struct {
	Service *Service
}

func (h *TabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := httpx.SubjectFromContext(r.Context())
	if subject == "" {
		// Only reachable if the route was wired without AuthnMiddleware.
		ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, TabResponse{
		Patron: subject,
		Rounds: h.Service.AddRound(subject),
	})
}

// LivezHandler returns a liveness probe handler reporting uptime and
// build version. It always answers 200 while the process is running.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
