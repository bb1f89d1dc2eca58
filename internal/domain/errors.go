package domain

import "github.com/cockroachdb/errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrRouteDirectory marks failures to obtain the route graph. A crawl
	// cycle that sees it is skipped.
	ErrRouteDirectory = errors.New("route directory unavailable")

	// ErrProtocol marks an upstream exchange that broke the two-step protocol,
	// e.g. a first response without a Location header.
	ErrProtocol = errors.New("upstream protocol violation")

	// ErrUpstream marks a non-success status from the upstream service.
	ErrUpstream = errors.New("upstream error")
)
