package models

import "errors"

// Core error taxonomy. Handlers map these onto HTTP responses; the
// refresh cycle degrades to last-known-good output instead of aborting.
var (
	// ErrDataUnavailable means both the quote provider and the local
	// cache failed to produce bars.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrTrainingFailed means a model fit failed; the previous artifact
	// for that horizon stays in use.
	ErrTrainingFailed = errors.New("model training failed")

	// ErrInvalidOperation rejects a trade that violates the portfolio
	// state machine (buy while holding, sell while idle, bad amount/price).
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidConfig rejects a settings update with unknown or
	// out-of-range values; the previous settings are retained in full.
	ErrInvalidConfig = errors.New("invalid config")
)
