package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"slices"
)

// joinRejection is a join failure whose text is sent back to the client
// verbatim.
type joinRejection string

func (e joinRejection) Error() string { return string(e) }

const (
	ErrGameStarted joinRejection = "Game has already started."
	ErrNameLength  joinRejection = "Name length should be more than 0 and less than 64 characters."
	ErrNameChars   joinRejection = "Name should only be letters, digits, or underscores."
	ErrNameUsed    joinRejection = "Name already used in the game you attempted to join."
)

var (
	errAlreadyStarted = errors.New("game already started")
	errNoPlayers      = errors.New("no players have joined")
)

const maxNameLength = 64

var namePattern = regexp.MustCompile(`^[0-9a-zA-Z_]+$`)

func validateName(name string) error {
	if len(name) < 1 || len(name) > maxNameLength {
		return ErrNameLength
	}
	if !namePattern.MatchString(name) {
		return ErrNameChars
	}
	return nil
}

// Join seats a new player in the lobby. The started flag is held while the
// player is added so nobody slips in after roles are dealt.
func (g *Game) Join(name string, conn Sender) error {
	g.startedMu.Lock()
	defer g.startedMu.Unlock()

	if g.started {
		return ErrGameStarted
	}
	if err := validateName(name); err != nil {
		return err
	}
	if err := g.players.Add(name, conn); err != nil {
		return ErrNameUsed
	}

	log.Printf("%s joined (%d players)", name, g.players.Count())
	g.record(GameAction{Phase: PhaseNone.String(), Actor: name, ActionType: ActionJoin,
		Visibility: VisibilityPublic, Description: name + " joined"})
	return nil
}

// Leave removes the player and tells everybody else.
func (g *Game) Leave(name string) bool {
	if !g.players.Remove(name) {
		return false
	}
	log.Printf("%s disconnected (%d players)", name, g.players.Count())
	g.record(GameAction{Actor: name, ActionType: ActionLeave,
		Visibility: VisibilityPublic, Description: name + " disconnected"})
	g.Broadcast(Announcement(name + " disconnected."))
	return true
}

// StartGame deals the roles once and launches the phase clock on its own
// goroutine. The clock stops when a faction wins or ctx is cancelled. A
// game is started at most once; it never returns to the lobby.
func (g *Game) StartGame(ctx context.Context) error {
	g.startedMu.Lock()
	if g.started {
		g.startedMu.Unlock()
		return errAlreadyStarted
	}
	if g.players.Count() == 0 {
		g.startedMu.Unlock()
		return errNoPlayers
	}
	g.started = true
	g.startedMu.Unlock()

	log.Printf("Starting game %s with %d players", g.ID, g.players.Count())
	g.Broadcast(Announcement("Game started."))
	g.dealRoles()
	LogDBState("after game start")

	go g.Run(ctx)
	return nil
}

// dealRoles assigns the catalog to the seated players and tells each of
// them their role.
func (g *Game) dealRoles() {
	var dealt outbox
	var records []GameAction
	g.players.Batch(func(r *Roster) {
		assignRoles(r, g.rng)
		for _, p := range r.All() {
			dealt.private(p, p.Role.Description())
			records = append(records, GameAction{Phase: PhaseNone.String(), Actor: p.Name,
				ActionType: ActionRoleAssigned, Visibility: VisibilityActor,
				Description: fmt.Sprintf("%s is the %s", p.Name, p.Role)})
		}
	})
	g.flush(dealt)
	for _, a := range records {
		g.record(a)
	}
}

// assignRoles truncates the catalog to the player count, shuffles it once
// and pairs it with the players in join order. Players beyond the size of
// the catalog stay without a role and only watch.
func assignRoles(r *Roster, rng *rand.Rand) {
	players := r.All()
	roles := slices.Clone(roleCatalog[:min(len(roleCatalog), len(players))])
	rng.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	for i, p := range players {
		if i < len(roles) {
			p.Role = roles[i]
			DebugLog("assignRoles", "'%s' is the %s", p.Name, p.Role)
			continue
		}
		p.Role = RoleNone
		log.Printf("%s has no role left and will watch", p.Name)
	}
}

// newSeed returns a high-entropy seed for the role shuffle.
func newSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
