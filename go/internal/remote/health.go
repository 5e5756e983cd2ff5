package remote

import (
	"context"
	"fmt"
	"time"
)

// Pinger is implemented by stores that can report whether the remote end is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Healthy         bool     `json:"healthy"`
	Subscribed      bool     `json:"subscribed"`
	RemoteReachable bool     `json:"remote_reachable"`
	Stats           Stats    `json:"stats"`
	Errors          []string `json:"errors"`
}

const healthPingTimeout = 2 * time.Second

// Check reports whether the bridge is following the remote document and the
// remote store answers.
func (b *Bridge) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:         true,
		RemoteReachable: true,
		Stats:           b.Stats(),
		Errors:          []string{},
	}

	b.mu.Lock()
	status.Subscribed = b.sub != nil && !b.closed
	b.mu.Unlock()
	if !status.Subscribed {
		status.Healthy = false
		status.Errors = append(status.Errors, "not subscribed to remote document")
	}

	if p, ok := b.remote.(Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			status.RemoteReachable = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("remote ping failed: %v", err))
		}
	}

	return status
}
