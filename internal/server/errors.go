package server

import "errors"

var (
	// ErrDuplicateSession is returned by Registry.Register when the id is already live.
	ErrDuplicateSession = errors.New("server: session already registered")

	// ErrServerClosed is returned once the server has been shut down.
	ErrServerClosed = errors.New("server: closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("server: invalid config")
)
