// Package util holds small helpers shared across recall packages.
package util

import (
	"github.com/lithammer/shortuuid/v4"
)

// GenUID returns a short random identifier for conversations, agents and messages.
func GenUID() string {
	return shortuuid.New()
}
