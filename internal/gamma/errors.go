package gamma

import "errors"

var (
	ErrInvalidSpot         = errors.New("spot price must be a positive finite number")
	ErrInvalidStrike       = errors.New("strike must be positive")
	ErrInvalidOpenInterest = errors.New("open interest must not be negative")
	ErrInvalidExpiration   = errors.New("expiration date is missing")
)
