// Package auth models the contract with the upstream identity collaborator.
// Authentication happens before requests reach this service; we only parse
// the principal the collaborator injects and check its granted capabilities.
package auth

import (
	"fmt"
	"strings"
)

// Capability is the closed set of actions a principal may be granted.
type Capability string

const (
	CapabilityRead     Capability = "read"
	CapabilityDeposit  Capability = "deposit"
	CapabilityTransfer Capability = "transfer"
)

// ParseCapability maps a scope string onto the enum.
func ParseCapability(s string) (Capability, error) {
	switch Capability(strings.TrimSpace(strings.ToLower(s))) {
	case CapabilityRead:
		return CapabilityRead, nil
	case CapabilityDeposit:
		return CapabilityDeposit, nil
	case CapabilityTransfer:
		return CapabilityTransfer, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Principal is an already-authenticated caller plus its verified grants.
type Principal struct {
	UserID       uint64
	Email        string
	Capabilities map[Capability]bool
}

// Can reports whether the principal holds c.
func (p Principal) Can(c Capability) bool { return p.Capabilities[c] }

// ParseScopes parses the comma-separated scope list the collaborator sends.
// Unknown scopes are an error rather than silently dropped.
func ParseScopes(list string) (map[Capability]bool, error) {
	caps := make(map[Capability]bool)
	if strings.TrimSpace(list) == "" {
		return caps, nil
	}
	for _, part := range strings.Split(list, ",") {
		c, err := ParseCapability(part)
		if err != nil {
			return nil, err
		}
		caps[c] = true
	}
	return caps, nil
}
