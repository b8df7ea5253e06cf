package sources

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/signalforge/signalforge/internal/models"
)

// ErrorKind is the closed set of provider failure kinds
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindCreditsDepleted   ErrorKind = "credits_depleted"
	KindProvider          ErrorKind = "provider_error"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Error is a source-local failure. It never aborts a scan.
type Error struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Warning renders the failure as a user-facing scan warning.
func (e *Error) Warning() string {
	switch e.Kind {
	case KindMissingCredential:
		return fmt.Sprintf("%s scan skipped: %s", e.Provider, e.Detail)
	case KindRateLimited:
		return fmt.Sprintf("%s rate limit reached. Try again later.", e.Provider)
	case KindCreditsDepleted:
		return fmt.Sprintf("%s credits depleted. Add credits in your %s developer portal to fetch data.", e.Provider, e.Provider)
	case KindUnauthorized:
		if hint, ok := authHints[e.Provider]; ok {
			return fmt.Sprintf("%s authentication failed. %s", e.Provider, hint)
		}
		return fmt.Sprintf("%s authentication failed.", e.Provider)
	case KindForbidden:
		return fmt.Sprintf("%s request blocked (403). Check VPN, firewall, or base URL.", e.Provider)
	case KindMalformedResponse:
		return fmt.Sprintf("%s returned an unexpected response: %s", e.Provider, e.detailOrErr())
	default:
		return fmt.Sprintf("%s scan skipped: %s", e.Provider, e.detailOrErr())
	}
}

func (e *Error) detailOrErr() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

var authHints = map[string]string{
	models.SourceReddit:   "Check your client id, secret and user agent.",
	models.SourceX:        "Check your bearer token and plan access.",
	models.SourceBluesky:  "Check your endpoint.",
	models.SourceMastodon: "Check your token or instance.",
}

// Warning converts any adapter error into a warning naming the source.
func Warning(source string, err error) string {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Warning()
	}
	return fmt.Sprintf("%s scan skipped: %v", source, err)
}

// KindOf returns the error kind, KindProvider for untagged errors.
func KindOf(err error) ErrorKind {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	return KindProvider
}

func missingCredential(provider string, names ...string) *Error {
	detail := "missing environment variable"
	if len(names) > 1 {
		detail += "s"
	}
	for i, n := range names {
		if i == 0 {
			detail += ": " + n
		} else {
			detail += ", " + n
		}
	}
	return &Error{Provider: provider, Kind: KindMissingCredential, Detail: detail}
}

func requestError(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindProvider, Detail: "request failed", Err: err}
}

func decodeError(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindMalformedResponse, Err: err}
}

// statusError maps a non-200 response onto the shared taxonomy.
func statusError(provider string, resp *resty.Response) *Error {
	e := &Error{Provider: provider, Status: resp.StatusCode(), Detail: truncate(string(resp.Body()), 300)}
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case http.StatusForbidden:
		e.Kind = KindForbidden
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	default:
		e.Kind = KindProvider
	}
	return e
}
