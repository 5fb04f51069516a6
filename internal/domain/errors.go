package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPair   = errors.New("invalid trade pair")
	ErrInvalidIntent = errors.New("invalid position intent")
	ErrRateLimited   = errors.New("rate limited")
	ErrStreamClosed  = errors.New("message stream closed")
)
