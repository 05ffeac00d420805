package main

import (
	"context"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Phase of the day/night cycle. PhaseNone is the lobby, and also marks a
// closed intake gate.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseDay
	PhaseVote
	PhaseNight
)

func (p Phase) String() string {
	switch p {
	case PhaseDay:
		return "day"
	case PhaseVote:
		return "vote"
	case PhaseNight:
		return "night"
	default:
		return "lobby"
	}
}

// Outcome is how a game ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeEveryoneDied
	OutcomeWoof
	OutcomeTown
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEveryoneDied:
		return "everyone_died"
	case OutcomeWoof:
		return "woof"
	case OutcomeTown:
		return "town"
	case OutcomeAborted:
		return "aborted"
	default:
		return "none"
	}
}

// Announcement is the public line that reports the outcome.
func (o Outcome) Announcement() string {
	switch o {
	case OutcomeEveryoneDied:
		return "Game Over! Everyone Died!"
	case OutcomeWoof:
		return "Game Over! Woofs Won!"
	case OutcomeTown:
		return "Game Over! The Town Won!"
	default:
		return ""
	}
}

// countdown is one timed wait of a phase, followed by an optional public
// reminder.
type countdown struct {
	wait   time.Duration
	notice string
}

var (
	dayCountdown = []countdown{
		{60 * time.Second, "30 seconds until vote time."},
		{15 * time.Second, "15 seconds until vote time."},
		{10 * time.Second, "5 seconds until vote time."},
		{5 * time.Second, ""},
	}
	voteCountdown = []countdown{
		{15 * time.Second, "15 seconds until night."},
		{10 * time.Second, "5 seconds until night."},
		{5 * time.Second, ""},
	}
	nightCountdown = []countdown{
		{30 * time.Second, "30 seconds until morning."},
		{15 * time.Second, "15 seconds until morning."},
		{10 * time.Second, "5 seconds until morning."},
		{5 * time.Second, ""},
	}
)

// Game is the aggregate root of one match. The registry, the started flag
// and the phase are guarded independently.
type Game struct {
	ID      string
	players *Registry

	startedMu sync.Mutex
	started   bool

	phaseMu sync.RWMutex
	phase   Phase
	cycle   int

	history     *History
	storyteller Storyteller
	stories     sync.WaitGroup

	// sleep waits between announcements; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand

	ran       atomic.Bool
	done      chan struct{}
	outcomeMu sync.Mutex
	outcome   Outcome
}

// NewGame creates an empty lobby. history and storyteller may be nil.
func NewGame(history *History, storyteller Storyteller) *Game {
	seed, err := newSeed()
	if err != nil {
		logError("NewGame: newSeed", err)
		seed = time.Now().UnixNano()
	}
	g := &Game{
		ID:          uuid.NewString(),
		players:     NewRegistry(),
		history:     history,
		storyteller: storyteller,
		sleep:       sleepContext,
		rng:         rand.New(rand.NewSource(seed)),
		done:        make(chan struct{}),
	}
	g.history.StartGame(g.ID)
	return g
}

func (g *Game) Started() bool {
	g.startedMu.Lock()
	defer g.startedMu.Unlock()
	return g.started
}

func (g *Game) setStarted(v bool) {
	g.startedMu.Lock()
	defer g.startedMu.Unlock()
	g.started = v
}

// Phase returns the current phase. Only the clock writes it.
func (g *Game) Phase() Phase {
	g.phaseMu.RLock()
	defer g.phaseMu.RUnlock()
	return g.phase
}

func (g *Game) Cycle() int {
	g.phaseMu.RLock()
	defer g.phaseMu.RUnlock()
	return g.cycle
}

func (g *Game) setPhase(p Phase, cycle int) {
	g.phaseMu.Lock()
	defer g.phaseMu.Unlock()
	g.phase = p
	g.cycle = cycle
}

// Done is closed once the clock has stopped.
func (g *Game) Done() <-chan struct{} {
	return g.done
}

func (g *Game) Outcome() Outcome {
	g.outcomeMu.Lock()
	defer g.outcomeMu.Unlock()
	return g.outcome
}

// IsAlive reports whether name is a seated, living player.
func (g *Game) IsAlive(name string) bool {
	alive := false
	g.players.Batch(func(r *Roster) {
		alive = r.aliveTarget(name)
	})
	return alive
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Game) countDown(ctx context.Context, steps []countdown) error {
	for _, s := range steps {
		if err := g.sleep(ctx, s.wait); err != nil {
			return err
		}
		if s.notice != "" {
			g.Broadcast(Announcement(s.notice))
		}
	}
	return nil
}

// Run drives the phases until a faction is eliminated or ctx is cancelled.
// It is meant to run on its own goroutine for the lifetime of the game.
// A game runs once; later calls wait for the first run and return its
// outcome.
func (g *Game) Run(ctx context.Context) Outcome {
	if !g.ran.CompareAndSwap(false, true) {
		<-g.done
		return g.Outcome()
	}
	defer close(g.done)

	for cycle := 0; ; cycle++ {
		if cycle > 0 {
			if o := g.evaluateWin(); o != OutcomeNone {
				return g.finish(o)
			}
			if err := g.runDay(ctx, cycle); err != nil {
				return g.abort(err)
			}
			if err := g.runVote(ctx, cycle); err != nil {
				return g.abort(err)
			}
		}

		if o := g.evaluateWin(); o != OutcomeNone {
			return g.finish(o)
		}
		if err := g.runNight(ctx, cycle); err != nil {
			return g.abort(err)
		}
	}
}

func (g *Game) runDay(ctx context.Context, cycle int) error {
	g.setPhase(PhaseDay, cycle)
	g.players.Batch(func(r *Roster) {
		r.setIntake(PhaseNone)
	})
	log.Printf("Day %d started", cycle)

	g.Broadcast(Announcement("----day " + strconv.Itoa(cycle) + "----"))
	g.Broadcast(Announcement("It's day time. (90 seconds)"))
	g.Broadcast(Announcement("Chat by typing.\n"))

	return g.countDown(ctx, dayCountdown)
}

func (g *Game) runVote(ctx context.Context, cycle int) error {
	g.setPhase(PhaseVote, cycle)
	g.players.Batch(func(r *Roster) {
		resetVotes(r)
		r.setIntake(PhaseVote)
	})
	log.Printf("Vote %d started", cycle)

	g.Broadcast(Announcement("It's vote time. (30 seconds)"))
	g.Broadcast(Announcement("Chat by typing, or vote to execute with '/vote <player name>'\n"))

	if err := g.countDown(ctx, voteCountdown); err != nil {
		return err
	}

	var executed string
	var ok bool
	g.players.Batch(func(r *Roster) {
		r.setIntake(PhaseNone)
		executed, ok = tallyExecution(r)
	})

	if !ok {
		log.Printf("Vote %d: no one was executed", cycle)
		g.Broadcast(Announcement("No one was executed."))
		g.record(GameAction{Phase: PhaseVote.String(), ActionType: ActionNoExecution,
			Visibility: VisibilityPublic, Description: "No one was executed."})
		return nil
	}

	log.Printf("Vote %d: %s was executed", cycle, executed)
	text := "Oof, " + executed + " was executed."
	g.Broadcast(Announcement(text))
	g.record(GameAction{Phase: PhaseVote.String(), Actor: executed, ActionType: ActionExecution,
		Target: executed, Visibility: VisibilityPublic, Description: text})
	g.maybeTellStory(ctx)
	return nil
}

func (g *Game) runNight(ctx context.Context, cycle int) error {
	g.setPhase(PhaseNight, cycle)
	log.Printf("Night %d started", cycle)
	g.Broadcast(Announcement("It's night time. (60 seconds)\n"))

	var prompts outbox
	g.players.Batch(func(r *Roster) {
		prompts = beginNight(r)
	})
	g.flush(prompts)

	if err := g.countDown(ctx, nightCountdown); err != nil {
		return err
	}

	var res *resolution
	g.players.Batch(func(r *Roster) {
		res = endNight(r)
	})
	log.Printf("Night %d resolved: %d deaths", cycle, len(res.deaths))
	DebugLog("runNight", "Night %d redirection state: %+v", cycle, res.nightState)

	g.flush(res.out)
	for _, a := range res.records {
		g.record(a)
	}
	LogDBState("after night resolution")

	if len(res.deaths) > 0 {
		g.maybeTellStory(ctx)
	}
	return nil
}

// beginNight archives last night's actions, opens the night intake and
// returns the prompts for the living players.
func beginNight(r *Roster) outbox {
	var prompts outbox
	for _, p := range r.All() {
		if !p.Alive() {
			continue
		}
		p.PrevAction = p.Action
		p.Action = nil
		p.HasAction = false
		prompts.private(p, p.Role.NightPrompt())
	}
	r.setIntake(PhaseNight)
	return prompts
}

// endNight closes the intake and resolves in the same critical section, so
// every accepted action takes part in the pass.
func endNight(r *Roster) *resolution {
	r.setIntake(PhaseNone)
	return resolveNight(r)
}

// evaluateWin checks the elimination conditions among seated players.
func (g *Game) evaluateWin() Outcome {
	var o Outcome
	g.players.Batch(func(r *Roster) {
		o = evaluateWin(r)
	})
	return o
}

func evaluateWin(r *Roster) Outcome {
	var woof, town int
	for _, p := range r.All() {
		if !p.Alive() {
			continue
		}
		if p.Faction() == Woof {
			woof++
		} else {
			town++
		}
	}
	DebugLog("evaluateWin", "%d woof, %d town alive", woof, town)

	switch {
	case woof+town == 0:
		return OutcomeEveryoneDied
	case town == 0:
		return OutcomeWoof
	case woof == 0:
		return OutcomeTown
	default:
		return OutcomeNone
	}
}

func (g *Game) finish(o Outcome) Outcome {
	log.Printf("Game %s finished, outcome: %s", g.ID, o)
	g.players.Batch(func(r *Roster) {
		r.setIntake(PhaseNone)
	})
	// Let pending stories finish so End is the last message.
	g.stories.Wait()

	g.Broadcast(Announcement(o.Announcement()))
	g.Broadcast(EndMessage())
	g.record(GameAction{Phase: g.Phase().String(), ActionType: ActionOutcome,
		Visibility: VisibilityPublic, Description: o.Announcement()})
	g.history.FinishGame(g.ID, o)
	LogDBState("after game end")

	// The game stays started; chat after the end is open to everyone.
	g.setPhase(PhaseNone, g.Cycle())

	g.setOutcome(o)
	return o
}

func (g *Game) abort(err error) Outcome {
	log.Printf("Game %s clock stopped: %v", g.ID, err)
	g.players.Batch(func(r *Roster) {
		r.setIntake(PhaseNone)
	})
	g.stories.Wait()
	g.setPhase(PhaseNone, g.Cycle())
	g.history.FinishGame(g.ID, OutcomeAborted)
	g.setOutcome(OutcomeAborted)
	return OutcomeAborted
}

func (g *Game) setOutcome(o Outcome) {
	g.outcomeMu.Lock()
	defer g.outcomeMu.Unlock()
	g.outcome = o
}

// record stamps a history entry with the game and cycle and stores it.
func (g *Game) record(a GameAction) {
	a.GameID = g.ID
	a.Cycle = g.Cycle()
	if a.Phase == "" {
		a.Phase = g.Phase().String()
	}
	g.history.Record(a)
}
