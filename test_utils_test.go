package main

import (
	"context"
	"math/rand"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Test Helpers
// ============================================================================

// recorder is a Sender that keeps every message it is given.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Send(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

// Texts returns the content of every announcement and chat received.
func (r *recorder) Texts() []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Type == MsgAnnouncement || m.Type == MsgChat {
			out = append(out, m.Content)
		}
	}
	return out
}

func (r *recorder) Has(text string) bool {
	return slices.Contains(r.Texts(), text)
}

// HasPrefix reports whether any received text starts with prefix.
func (r *recorder) HasPrefix(prefix string) bool {
	return slices.ContainsFunc(r.Texts(), func(s string) bool {
		return strings.HasPrefix(s, prefix)
	})
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// TestLogger wraps AppLogger for test use with testing.T integration
type TestLogger struct {
	*AppLogger
	t *testing.T
}

// NewTestLogger creates a test logger from environment variables
func NewTestLogger(t *testing.T) *TestLogger {
	al := &AppLogger{
		logDB: os.Getenv("TEST_LOG_DB") == "1",
		debug: os.Getenv("TEST_DEBUG") == "1",
	}
	return &TestLogger{AppLogger: al, t: t}
}

// Debug logs through t.Logf so output is attached to the test.
func (tl *TestLogger) Debug(format string, args ...any) {
	if !tl.debug {
		return
	}
	tl.t.Logf("[DEBUG] "+format, args...)
}

// LogDB dumps the history into the test log.
func (tl *TestLogger) LogDB(context string) {
	if !tl.logDB {
		return
	}
	tl.t.Logf("========== DATABASE DUMP (%s) ==========\n%s", context, tl.history.Dump())
}

// TestContext holds a game wired to its own in-memory history.
type TestContext struct {
	t       *testing.T
	logger  *TestLogger
	history *History
	game    *Game
	conns   map[string]*recorder
	cleanup func()
}

// newTestContext creates a game whose clock never waits and whose shuffle
// is seeded.
func newTestContext(t *testing.T) *TestContext {
	t.Helper()
	logger := NewTestLogger(t)

	history, err := OpenHistory("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to open test history: %v", err)
	}
	logger.AttachHistory(history)

	g := NewGame(history, nil)
	g.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	g.rng = rand.New(rand.NewSource(1))

	return &TestContext{
		t:       t,
		logger:  logger,
		history: history,
		game:    g,
		conns:   make(map[string]*recorder),
		cleanup: func() {
			history.Close()
		},
	}
}

// join adds players through the lobby and records what they receive.
func (tc *TestContext) join(names ...string) {
	tc.t.Helper()
	for _, name := range names {
		rec := &recorder{}
		if err := tc.game.Join(name, rec); err != nil {
			tc.t.Fatalf("Join(%q): %v", name, err)
		}
		tc.conns[name] = rec
	}
}

// seat joins the players and deals them the given roles directly.
func (tc *TestContext) seat(roles map[string]Role, order ...string) {
	tc.t.Helper()
	tc.join(order...)
	tc.game.players.Batch(func(r *Roster) {
		for name, role := range roles {
			r.Get(name).Role = role
		}
	})
	tc.game.setStarted(true)
}

func (tc *TestContext) conn(name string) *recorder {
	return tc.conns[name]
}

// openNight prepares the night the way the clock does.
func (tc *TestContext) openNight() {
	tc.game.setPhase(PhaseNight, tc.game.Cycle())
	tc.game.players.Batch(func(r *Roster) {
		beginNight(r)
	})
}

// resolve closes the night and delivers its notices.
func (tc *TestContext) resolve() *resolution {
	var res *resolution
	tc.game.players.Batch(func(r *Roster) {
		res = endNight(r)
	})
	tc.game.flush(res.out)
	return res
}

// act submits a night action and fails the test if it was rejected.
func (tc *TestContext) act(name, keyword string, targets ...string) {
	tc.t.Helper()
	if !tc.game.SubmitNightAction(name, keyword, targets) {
		tc.logger.LogDB("FAIL: night action rejected")
		tc.t.Fatalf("/%s %v from %s was rejected", keyword, targets, name)
	}
}

func (tc *TestContext) dead(name string) bool {
	return tc.game.players.IsDead(name)
}

// waitUntil polls cond until it holds or the timeout passes.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// mockStoryteller returns a fixed story and remembers what it was told.
type mockStoryteller struct {
	mu        sync.Mutex
	story     string
	err       error
	histories [][]string
}

func (m *mockStoryteller) Tell(_ context.Context, history []string, onChunk func(string)) (string, error) {
	m.mu.Lock()
	m.histories = append(m.histories, history)
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if onChunk != nil {
		onChunk(m.story)
	}
	return m.story, nil
}

func (m *mockStoryteller) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.histories)
}
