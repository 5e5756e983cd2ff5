// Package natskv stores the teams document in a NATS JetStream KeyValue bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/mcdev12/rollcall/go/internal/remote"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the KeyValue store
type Config struct {
	URL           string
	Token         string // optional auth token
	Domain        string // optional JetStream domain
	Bucket        string
	Key           string
	ClientName    string
	History       uint8
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default KeyValue store configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "ROLLCALL",
		Key:           remote.DefaultDocument,
		ClientName:    "rollcall",
		History:       5,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Store implements remote.Store on top of a JetStream KeyValue bucket
type Store struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	config Config
}

var (
	_ remote.Store  = (*Store)(nil)
	_ remote.Pinger = (*Store)(nil)
)

// New connects to NATS and creates the bucket if it does not exist
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	var js jetstream.JetStream
	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &Store{nc: nc, js: js, config: cfg}

	if err := s.ensureBucket(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	return s, nil
}

// ensureBucket binds to the bucket, creating it on first use
func (s *Store) ensureBucket(ctx context.Context) error {
	kv, err := s.js.KeyValue(ctx, s.config.Bucket)
	if err == nil {
		s.kv = kv
		log.Info().Str("bucket", s.config.Bucket).Msg("using existing KeyValue bucket")
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("get bucket: %w", err)
	}

	kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      s.config.Bucket,
		Description: "Standup roster documents",
		History:     s.config.History,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	s.kv = kv

	log.Info().Str("bucket", s.config.Bucket).Msg("created KeyValue bucket")
	return nil
}

// Read fetches the document. A missing key is an absent document.
func (s *Store) Read(ctx context.Context) (models.Teams, error) {
	entry, err := s.kv.Get(ctx, s.config.Key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.config.Bucket, s.config.Key, err)
	}
	return models.DecodeTeams(entry.Value())
}

// Write overwrites the document
func (s *Store) Write(ctx context.Context, teams models.Teams) error {
	data, err := models.EncodeTeams(teams)
	if err != nil {
		return err
	}

	rev, err := s.kv.Put(ctx, s.config.Key, data)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.config.Bucket, s.config.Key, err)
	}

	log.Debug().
		Str("bucket", s.config.Bucket).
		Str("key", s.config.Key).
		Uint64("revision", rev).
		Int("size", len(data)).
		Msg("wrote teams document")
	return nil
}

// Subscribe watches the document key
func (s *Store) Subscribe(ctx context.Context, onChange func(models.Teams), onError func(error)) (remote.Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	watcher, err := s.kv.Watch(watchCtx, s.config.Key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s/%s: %w", s.config.Bucket, s.config.Key, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		follow(watcher.Updates(), onChange, onError)
	}()

	var once sync.Once
	var stopErr error
	return remote.SubscriptionFunc(func() error {
		once.Do(func() {
			stopErr = watcher.Stop()
			cancel()
			<-done
		})
		return stopErr
	}), nil
}

// follow delivers watcher updates until the channel closes. The watcher sends
// a nil entry once the initial values have been replayed; if the key had no
// value by then, onChange still fires once with an absent document.
func follow(updates <-chan jetstream.KeyValueEntry, onChange func(models.Teams), onError func(error)) {
	delivered := false
	for entry := range updates {
		if entry == nil {
			if !delivered {
				delivered = true
				onChange(nil)
			}
			continue
		}

		delivered = true
		switch entry.Operation() {
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			onChange(nil)
		default:
			teams, err := models.DecodeTeams(entry.Value())
			if err != nil {
				if onError != nil {
					onError(fmt.Errorf("revision %d: %w", entry.Revision(), err))
				}
				continue
			}
			onChange(teams)
		}
	}
}

// Ping reports an error while the connection is down
func (s *Store) Ping(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("NATS connection %s", s.nc.Status())
	}
	return s.nc.FlushWithContext(ctx)
}

// Close closes the NATS connection
func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
