// Package remote keeps the local roster state and a shared remote document
// eventually consistent.
package remote

import (
	"context"
	"errors"

	"github.com/mcdev12/rollcall/go/internal/models"
)

// DefaultDocument is the name of the shared document holding all teams
const DefaultDocument = "teams"

// ErrAlreadyStarted is returned when a bridge is started twice
var ErrAlreadyStarted = errors.New("bridge already started")

// Store is the contract with the hosted document store.
//
// Read returns nil teams and a nil error when the document does not exist.
// Subscribe calls onChange once with the current value and again after every
// change by any writer. Callbacks are delivered one at a time.
type Store interface {
	Read(ctx context.Context) (models.Teams, error)
	Write(ctx context.Context, teams models.Teams) error
	Subscribe(ctx context.Context, onChange func(models.Teams), onError func(error)) (Subscription, error)
}

// Subscription is a live Subscribe stream. No callbacks fire after
// Unsubscribe returns. It must not be called from inside a callback.
type Subscription interface {
	Unsubscribe() error
}

// SubscriptionFunc adapts a func to Subscription
type SubscriptionFunc func() error

// Unsubscribe calls f
func (f SubscriptionFunc) Unsubscribe() error {
	return f()
}
