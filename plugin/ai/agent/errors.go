// Package agent runs conversations against a chat model while keeping the
// context it sends bounded: recent turns verbatim, older relevant turns by
// similarity, and everything else folded into a running summary.
package agent

import "errors"

var (
	// ErrInvalidConfig indicates an AgentConfig that cannot drive a session.
	ErrInvalidConfig = errors.New("invalid agent config")

	// ErrSessionClosed is returned by a registry that has been closed.
	ErrSessionClosed = errors.New("session registry closed")
)
