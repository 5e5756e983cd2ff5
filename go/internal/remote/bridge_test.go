package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func startBridge(t *testing.T, store *roster.Store, remote Store, clock clockwork.Clock) *Bridge {
	t.Helper()
	b := NewBridge(store, remote, WithClock(clock), WithDebounce(time.Second))
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func remoteTeams(t *testing.T, remote Store) models.Teams {
	t.Helper()
	teams, err := remote.Read(context.Background())
	require.NoError(t, err)
	return teams
}

func TestBridge_DebouncedPush(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	startBridge(t, store, mem, clock)

	store.CreateTeam("core")
	clock.Advance(500 * time.Millisecond)
	store.AddTeamMember("core", "alice")
	clock.Advance(500 * time.Millisecond)
	store.IncrementModerationCount("core", "alice")
	clock.Advance(999 * time.Millisecond)

	assert.Equal(t, 0, mem.Writes(), "rapid edits keep postponing the push")

	clock.Advance(time.Millisecond)

	require.Eventually(t, func() bool { return mem.Writes() == 1 }, waitFor, tick)
	got := remoteTeams(t, mem)
	assert.Equal(t, 1, got["core"].Members["alice"].ModerationCount, "the last state is persisted")

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, mem.Writes())
}

func TestBridge_CurrentTeamIsNotPushed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	startBridge(t, store, mem, clock)

	store.SetCurrentTeam("core")
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, mem.Writes())
}

func TestBridge_InboundReplacesLocal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	b := startBridge(t, store, mem, clock)

	store.CreateTeam("local-only")

	incoming := models.Teams{"infra": {Members: map[string]models.Member{"bob": {ModerationCount: 4, IsPresent: false}}}}
	require.NoError(t, mem.Write(context.Background(), incoming))

	require.Eventually(t, func() bool { return store.Teams().Equal(incoming) }, waitFor, tick)
	assert.False(t, store.HasTeam("local-only"), "remote overwrite does not merge")
	require.Eventually(t, func() bool { return b.Stats().RemoteLoads == 1 }, waitFor, tick)

	current, _ := store.CurrentTeam()
	assert.Equal(t, "local-only", current, "current team is local state")
}

func TestBridge_InboundDoesNotEcho(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	startBridge(t, store, mem, clock)

	require.NoError(t, mem.Write(context.Background(), models.Teams{"infra": models.NewTeam()}))
	require.Eventually(t, func() bool { return store.HasTeam("infra") }, waitFor, tick)

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, mem.Writes(), "a remote load is not a local change")
}

func TestBridge_BootstrapKeepsSeedWhenRemoteEmpty(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	store.CreateTeam("seed")
	store.AddTeamMember("seed", "alice")

	b := startBridge(t, store, mem, clock)

	require.Eventually(t, func() bool { return b.Stats().SkippedEmpty >= 2 }, waitFor, tick)
	assert.True(t, store.HasTeam("seed"))
}

func TestBridge_BootstrapLoadsExistingDocument(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	existing := models.Teams{"core": {Members: map[string]models.Member{"alice": {ModerationCount: 2, IsPresent: true}}}}
	require.NoError(t, mem.Write(context.Background(), existing))

	store := roster.NewStore()
	startBridge(t, store, mem, clock)

	assert.True(t, store.Teams().Equal(existing))
}

func TestBridge_RoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()

	source := roster.NewStore()
	source.CreateTeam("core")
	source.AddTeamMember("core", "alice")
	source.AddTeamMember("core", "bob")
	source.UpdateModerationCount("core", "alice", 3)
	source.SetPresence("core", "bob", false)
	source.CreateTeam("infra")

	pusher := NewBridge(source, mem, WithClock(clock))
	require.NoError(t, pusher.PushNow(context.Background()))

	reloaded := roster.NewStore()
	startBridge(t, reloaded, mem, clock)

	assert.True(t, source.Teams().Equal(reloaded.Teams()))
}

func TestBridge_FailedPushIsNotRetried(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	mem.SetWriteError(errors.New("unavailable"))
	store := roster.NewStore()
	b := startBridge(t, store, mem, clock)

	store.CreateTeam("core")
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return b.Stats().PushesFailed == 1 }, waitFor, tick)

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().PushesAttempted)

	mem.SetWriteError(nil)
	store.AddTeamMember("core", "alice")
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return mem.Writes() == 1 }, waitFor, tick)
	assert.Contains(t, remoteTeams(t, mem)["core"].Members, "alice")
}

func TestBridge_SubscribeFailureIsNotFatal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	mem.SetSubscribeError(errors.New("permission denied"))
	store := roster.NewStore()
	startBridge(t, store, mem, clock)

	store.CreateTeam("core")
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return mem.Writes() == 1 }, waitFor, tick)
}

func TestBridge_Close(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	b := startBridge(t, store, mem, clock)

	store.CreateTeam("core")
	require.NoError(t, b.Close())

	clock.Advance(5 * time.Second)
	store.AddTeamMember("core", "alice")
	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, mem.Writes(), "no scheduled push fires after teardown")

	require.NoError(t, mem.Write(context.Background(), models.Teams{"infra": models.NewTeam()}))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, store.HasTeam("core"))
	assert.False(t, store.HasTeam("infra"), "no inbound overwrite after teardown")

	assert.NoError(t, b.Close())
}

func TestBridge_StartTwice(t *testing.T) {
	b := startBridge(t, roster.NewStore(), NewMemoryStore(), clockwork.NewFakeClock())
	assert.ErrorIs(t, b.Start(context.Background()), ErrAlreadyStarted)
}

// laggingStore holds back subscription deliveries until release is called
type laggingStore struct {
	mu       sync.Mutex
	doc      models.Teams
	writes   int
	onChange func(models.Teams)
	queued   []models.Teams
}

func (s *laggingStore) Read(context.Context) (models.Teams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone(), nil
}

func (s *laggingStore) Write(_ context.Context, teams models.Teams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = teams.Clone()
	s.writes++
	s.queued = append(s.queued, teams.Clone())
	return nil
}

func (s *laggingStore) Subscribe(_ context.Context, onChange func(models.Teams), _ func(error)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = onChange
	return SubscriptionFunc(func() error { return nil }), nil
}

func (s *laggingStore) release() {
	s.mu.Lock()
	queued, onChange := s.queued, s.onChange
	s.queued = nil
	s.mu.Unlock()
	for _, teams := range queued {
		onChange(teams)
	}
}

func (s *laggingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func TestBridge_LateEchoDoesNotRevertPendingEdit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	lagging := &laggingStore{}
	store := roster.NewStore()
	store.CreateTeam("core")
	store.AddTeamMember("core", "alice")
	b := startBridge(t, store, lagging, clock)

	store.IncrementModerationCount("core", "alice")
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.lastPushed != nil
	}, waitFor, tick)
	require.Equal(t, 1, lagging.writeCount())

	store.IncrementModerationCount("core", "alice")
	lagging.release()

	team, _ := store.Team("core")
	assert.Equal(t, 2, team.Members["alice"].ModerationCount, "the echo of the first push is ignored")
	assert.Equal(t, int64(1), b.Stats().SkippedEchoes)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return lagging.writeCount() == 2 }, waitFor, tick)
	remote := remoteTeams(t, lagging)
	assert.Equal(t, 2, remote["core"].Members["alice"].ModerationCount)
}

func TestBridge_FlushWithoutPendingChangeWritesNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	mem.SetSubscribeError(errors.New("permission denied"))
	store := roster.NewStore()
	b := startBridge(t, store, mem, clock)

	other := models.Teams{"infra": {Members: map[string]models.Member{"bob": {ModerationCount: 7, IsPresent: true}}}}
	require.NoError(t, mem.Write(context.Background(), other))

	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 1, mem.Writes())
	assert.True(t, remoteTeams(t, mem).Equal(other), "another client's document survives")
}

func TestBridge_FlushWritesPendingChange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryStore()
	store := roster.NewStore()
	b := startBridge(t, store, mem, clock)

	store.CreateTeam("core")
	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 1, mem.Writes())
	assert.Contains(t, remoteTeams(t, mem), "core")

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, mem.Writes(), "the debounced push was consumed by the flush")
}
