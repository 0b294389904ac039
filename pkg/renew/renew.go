// Package renew decides when an access credential has expired and runs
// the bounded exchange that replaces it.
//
// The package owns three things: the pure policy questions (does this
// response mean "renew now", what headers does a credential project to),
// the renewal state machine (read refresh credential, exchange it via a
// caller-supplied function, persist what comes back), and the
// single-flight coordination that keeps concurrent failures from stacking
// up redundant renewal calls.
//
// The wire format of the exchange is not this package's business: the
// renewal call and the two body extractors are injected. Grant and
// JSONField cover the common OAuth2 case.
package renew

import "net/http"

// Defaults applied by New for zero Config fields.
var (
	defaultRenewCodes   = []int{http.StatusUnauthorized}
	defaultSuccessCodes = []int{http.StatusOK}
	defaultTemplate     = map[string]string{"Authorization": "Bearer "}
)

const defaultMaxAttempts = 1

// Config is the renewal policy. New copies every field, so a Config is
// effectively immutable once a Renewer is built from it: later mutation
// of the caller's slices or map changes nothing.
type Config struct {
	// RenewCodes are the response statuses that mean the access
	// credential has expired and a renewal should run. Default: 401.
	RenewCodes []int

	// SuccessCodes are the statuses under which a renewal exchange is
	// considered successful. Default: 200.
	SuccessCodes []int

	// HeaderTemplate maps header names to value prefixes; a projected
	// header value is the prefix concatenated with the access credential.
	// Default: {"Authorization": "Bearer "}.
	HeaderTemplate map[string]string

	// MaxAttempts is the renewal attempt budget per Renew call. Failed
	// attempts retry immediately; there is no backoff at this layer.
	// Default: 1.
	MaxAttempts int
}

func toSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}
