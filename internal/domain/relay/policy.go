package relay

import (
	"context"
	"fmt"
)

// DisconnectPolicy decides what happens to an in-flight exchange when its connection drops.
type DisconnectPolicy string

const (
	// DisconnectContinue lets generation and persistence finish; only delivery stops.
	DisconnectContinue DisconnectPolicy = "continue"
	// DisconnectCancel cancels the provider request and abandons the exchange.
	DisconnectCancel DisconnectPolicy = "cancel"
)

// ParseDisconnectPolicy validates a configured policy name.
func ParseDisconnectPolicy(v string) (DisconnectPolicy, error) {
	switch DisconnectPolicy(v) {
	case DisconnectContinue, DisconnectCancel:
		return DisconnectPolicy(v), nil
	case "":
		return DisconnectContinue, nil
	}
	return "", fmt.Errorf("unknown disconnect policy %q", v)
}

// exchangeContext derives the context an exchange runs under from the connection context.
func (p DisconnectPolicy) exchangeContext(connCtx context.Context) context.Context {
	if p == DisconnectCancel {
		return connCtx
	}
	return context.WithoutCancel(connCtx)
}
