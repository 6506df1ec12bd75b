package auth

import "errors"

// Sentinel errors for each way the OAuth dance can fail. Handlers branch on
// these to decide between re-prompting the user and surfacing a failure.
var (
	ErrProviderDenied      = errors.New("provider denied authorization")
	ErrMissingCode         = errors.New("callback missing authorization code")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrRefreshFailed       = errors.New("token refresh failed")
)
