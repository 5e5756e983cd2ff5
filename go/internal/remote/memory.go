package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/rollcall/go/internal/models"
)

// MemoryStore is an in-process Store. It backs tests and single-node runs
// with REMOTE_DRIVER=memory.
type MemoryStore struct {
	mu       sync.Mutex
	document []byte
	subs     map[int]*memorySubscription
	nextID   int
	writes   int

	writeErr     error
	subscribeErr error
}

// NewMemoryStore creates a store whose document does not exist yet
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[int]*memorySubscription),
	}
}

// SetWriteError makes every following Write fail with err. nil restores writes.
func (m *MemoryStore) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetSubscribeError makes every following Subscribe fail with err
func (m *MemoryStore) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// Writes returns the number of successful writes
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Read returns the stored document
func (m *MemoryStore) Read(ctx context.Context) (models.Teams, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	doc := m.document
	m.mu.Unlock()
	return models.DecodeTeams(doc)
}

// Write overwrites the document and fans the new value out to subscribers
func (m *MemoryStore) Write(ctx context.Context, teams models.Teams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := models.EncodeTeams(teams)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return fmt.Errorf("memory store write: %w", m.writeErr)
	}
	m.document = doc
	m.writes++
	for _, sub := range m.subs {
		sub.offer(doc)
	}
	return nil
}

// Subscribe starts delivering the document to onChange
func (m *MemoryStore) Subscribe(ctx context.Context, onChange func(models.Teams), onError func(error)) (Subscription, error) {
	m.mu.Lock()
	if m.subscribeErr != nil {
		err := m.subscribeErr
		m.mu.Unlock()
		return nil, fmt.Errorf("memory store subscribe: %w", err)
	}

	id := m.nextID
	m.nextID++
	sub := &memorySubscription{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.subs[id] = sub
	sub.offer(m.document)
	m.mu.Unlock()

	go sub.run(ctx, onChange, onError)

	var once sync.Once
	return SubscriptionFunc(func() error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(sub.stop)
			<-sub.done
		})
		return nil
	}), nil
}

// memorySubscription keeps only the latest undelivered document, since each
// value is a full snapshot.
type memorySubscription struct {
	mu      sync.Mutex
	pending []byte
	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func (s *memorySubscription) offer(doc []byte) {
	s.mu.Lock()
	s.pending = doc
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) run(ctx context.Context, onChange func(models.Teams), onError func(error)) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.signal:
			s.mu.Lock()
			doc := s.pending
			s.mu.Unlock()

			teams, err := models.DecodeTeams(doc)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(teams)
		}
	}
}
