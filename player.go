package main

import (
	"errors"
	"slices"
	"sync"
)

// Sender delivers a message to one connection. The transport layer owns
// the connection; the registry only keeps a reference to it.
type Sender interface {
	Send(Message)
}

// Player is the mutable per-player state. Every field is only touched
// inside the registry's critical section.
type Player struct {
	Name       string
	conn       Sender
	Role       Role
	Dead       bool
	Votes      int
	LastVote   string
	Action     []string
	HasAction  bool
	PrevAction []string
}

// Faction of the player's role; meaningless for RoleNone.
func (p *Player) Faction() Faction {
	return p.Role.Faction()
}

// Seated reports whether the player takes part in the game, as opposed to
// watching without a role.
func (p *Player) Seated() bool {
	return p.Role != RoleNone
}

// Alive reports whether the player is seated and not dead.
func (p *Player) Alive() bool {
	return p.Seated() && !p.Dead
}

var ErrNameTaken = errors.New("name already registered")

// Roster is the registry's contents as handed to a Batch callback. It must
// not be retained after the callback returns.
type Roster struct {
	players map[string]*Player
	order   []string

	// intake is the phase whose submissions are currently accepted. The
	// phase clock opens and closes it inside Batch, so a submission and a
	// resolution pass never interleave.
	intake Phase
}

// Get returns the named player or nil.
func (r *Roster) Get(name string) *Player {
	return r.players[name]
}

// All returns the players in join order.
func (r *Roster) All() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.players[name])
	}
	return out
}

func (r *Roster) Len() int {
	return len(r.order)
}

// IsOpen reports whether submissions for the given phase are accepted.
func (r *Roster) IsOpen(p Phase) bool {
	return r.intake == p
}

func (r *Roster) setIntake(p Phase) {
	r.intake = p
}

// aliveTarget reports whether name is a seated, living player.
func (r *Roster) aliveTarget(name string) bool {
	p := r.players[name]
	return p != nil && p.Alive()
}

// Registry is the single point of mutual exclusion for player state.
type Registry struct {
	mu     sync.Mutex
	roster Roster
}

func NewRegistry() *Registry {
	return &Registry{roster: Roster{players: make(map[string]*Player), intake: PhaseNone}}
}

func (reg *Registry) Add(name string, conn Sender) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.roster.players[name]; ok {
		return ErrNameTaken
	}
	reg.roster.players[name] = &Player{Name: name, conn: conn}
	reg.roster.order = append(reg.roster.order, name)
	return nil
}

// Remove drops the player and withdraws every vote that involved them.
func (reg *Registry) Remove(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r := &reg.roster
	p, ok := r.players[name]
	if !ok {
		return false
	}
	if p.LastVote != "" {
		if t := r.players[p.LastVote]; t != nil && t.Votes > 0 {
			t.Votes--
		}
	}
	for _, other := range r.players {
		if other.LastVote == name {
			other.LastVote = ""
		}
	}
	delete(r.players, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

func (reg *Registry) Contains(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.roster.players[name]
	return ok
}

func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.roster.order)
}

// The point queries below return a zero value for unknown names; callers
// check existence themselves.

func (reg *Registry) IsDead(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if p, ok := reg.roster.players[name]; ok {
		return p.Dead
	}
	return false
}

func (reg *Registry) FactionOf(name string) (Faction, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if p, ok := reg.roster.players[name]; ok && p.Seated() {
		return p.Faction(), true
	}
	return Town, false
}

func (reg *Registry) RoleOf(name string) Role {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if p, ok := reg.roster.players[name]; ok {
		return p.Role
	}
	return RoleNone
}

func (reg *Registry) PrevAction(name string) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if p, ok := reg.roster.players[name]; ok {
		return slices.Clone(p.PrevAction)
	}
	return nil
}

// Batch runs fn with exclusive access to the whole roster. fn must not
// block on the network.
func (reg *Registry) Batch(fn func(r *Roster)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	fn(&reg.roster)
}
