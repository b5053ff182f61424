package api

import "errors"

var (
	ErrNotFound    = errors.New("ticker not found upstream")
	ErrRateLimited = errors.New("rate limited by API")
	ErrAuthFailed  = errors.New("authentication failed")
	ErrNoData      = errors.New("no data returned for ticker")
)
