// Package pgdoc stores the teams document as a jsonb row in Postgres and
// follows changes with LISTEN/NOTIFY.
package pgdoc

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/mcdev12/rollcall/go/internal/remote"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// Schema creates the documents table
const Schema = `
CREATE TABLE IF NOT EXISTS roster_documents (
    name       TEXT PRIMARY KEY,
    body       JSONB,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectDocument = `SELECT body FROM roster_documents WHERE name = $1`
	upsertDocument = `INSERT INTO roster_documents (name, body, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`
	notifyDocument = `SELECT pg_notify($1, $2)`
)

// Config holds the Postgres document store settings
type Config struct {
	DatabaseURL      string // Postgres DSN for LISTEN/NOTIFY
	Document         string
	NotifyChannel    string
	FallbackInterval time.Duration // How often to poll for missed notifications
	PingInterval     time.Duration
	MinReconnect     time.Duration
	MaxReconnect     time.Duration
}

// DefaultConfig returns default document store configuration
func DefaultConfig() Config {
	return Config{
		Document:         remote.DefaultDocument,
		NotifyChannel:    "roster_documents_changed",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		MinReconnect:     10 * time.Second,
		MaxReconnect:     time.Minute,
	}
}

// notifier is the part of pq.Listener the store uses
type notifier interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Store implements remote.Store on a Postgres table
type Store struct {
	db     *sql.DB
	cfg    Config
	listen func(cfg Config) (notifier, error)
}

var _ remote.Store = (*Store)(nil)

// New creates a document store on an open database
func New(db *sql.DB, cfg Config) *Store {
	return &Store{
		db:     db,
		cfg:    cfg,
		listen: newPQListener,
	}
}

func newPQListener(cfg Config) (notifier, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	return l, nil
}

// EnsureSchema creates the documents table if needed
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create roster_documents: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) readRaw(ctx context.Context) ([]byte, error) {
	var body pqtype.NullRawMessage
	err := s.db.QueryRowContext(ctx, selectDocument, s.cfg.Document).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", s.cfg.Document, err)
	}
	if !body.Valid {
		return nil, nil
	}
	return body.RawMessage, nil
}

// Read fetches the document. A missing row or a null body is an absent document.
func (s *Store) Read(ctx context.Context) (models.Teams, error) {
	raw, err := s.readRaw(ctx)
	if err != nil {
		return nil, err
	}
	return models.DecodeTeams(raw)
}

// Write upserts the document and notifies listeners when the transaction commits
func (s *Store) Write(ctx context.Context, teams models.Teams) error {
	data, err := models.EncodeTeams(teams)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	body := pqtype.NullRawMessage{RawMessage: data, Valid: true}
	if _, err := tx.ExecContext(ctx, upsertDocument, s.cfg.Document, body); err != nil {
		return fmt.Errorf("failed to write document %s: %w", s.cfg.Document, err)
	}
	if _, err := tx.ExecContext(ctx, notifyDocument, s.cfg.NotifyChannel, s.cfg.Document); err != nil {
		return fmt.Errorf("failed to notify %s: %w", s.cfg.NotifyChannel, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", s.cfg.Document, err)
	}
	return nil
}

// Subscribe delivers the current document, then re-reads it on every
// notification for it. A fallback poll covers notifications lost while the
// listener was reconnecting.
func (s *Store) Subscribe(ctx context.Context, onChange func(models.Teams), onError func(error)) (remote.Subscription, error) {
	l, err := s.listen(s.cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("channel", s.cfg.NotifyChannel).
		Str("document", s.cfg.Document).
		Msg("listening for document changes")

	f := &follower{
		store:    s,
		listener: l,
		onChange: onChange,
		onError:  onError,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go f.run(ctx)

	var once sync.Once
	var closeErr error
	return remote.SubscriptionFunc(func() error {
		once.Do(func() {
			close(f.stop)
			<-f.done
			closeErr = l.Close()
		})
		return closeErr
	}), nil
}

type follower struct {
	store    *Store
	listener notifier
	onChange func(models.Teams)
	onError  func(error)
	stop     chan struct{}
	done     chan struct{}
	last     []byte
	primed   bool
}

func (f *follower) run(ctx context.Context) {
	defer close(f.done)

	f.deliver(ctx, true)

	pingTicker := time.NewTicker(f.store.cfg.PingInterval)
	fallbackTicker := time.NewTicker(f.store.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	notifications := f.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case note := <-notifications:
			if note == nil {
				// nil notification means the connection was re-established; events may have been missed
				f.deliver(ctx, false)
				continue
			}
			if note.Extra != f.store.cfg.Document {
				continue
			}
			f.deliver(ctx, true)
		case <-fallbackTicker.C:
			f.deliver(ctx, false)
		case <-pingTicker.C:
			if err := f.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// deliver reads the document and passes it on. Unless always is set, a value
// identical to the last delivered one is skipped.
func (f *follower) deliver(ctx context.Context, always bool) {
	raw, err := f.store.readRaw(ctx)
	if err != nil {
		if f.onError != nil {
			f.onError(err)
		}
		return
	}
	if !always && f.primed && bytes.Equal(raw, f.last) {
		return
	}

	teams, err := models.DecodeTeams(raw)
	if err != nil {
		if f.onError != nil {
			f.onError(err)
		}
		return
	}

	f.last = raw
	f.primed = true
	f.onChange(teams)
}
