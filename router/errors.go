package router

import "errors"

var (
	// ErrUnroutableIntent means no route and no fallback module can take a
	// command. It is a configuration error raised at startup.
	ErrUnroutableIntent = errors.New("unroutable intent")
	ErrRouterStopped    = errors.New("router is shutting down")
)
