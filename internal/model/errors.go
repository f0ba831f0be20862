package model

import "errors"

// Error kinds from spec.md §7. ParseError is swallowed at the ingress
// driver and never surfaces past it; the rest propagate to the
// supervisor per the table in §7.
var (
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	ErrScanTimeout        = errors.New("scan timeout")
	ErrConnectTimeout     = errors.New("connect timeout")
	ErrConnectFailed      = errors.New("connect failed")
	ErrParseFrame         = errors.New("parse error")
	ErrStatsStale         = errors.New("stats stale")
	ErrLinkLost           = errors.New("link lost")
	ErrFatalIO            = errors.New("fatal io")
)
