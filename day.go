package main

import (
	"fmt"
	"log"
	"slices"
	"strings"
)

// CastVote records voter's vote for target. It fails without changing
// anything when the target is unknown or dead, or when no vote is open.
func (g *Game) CastVote(voter, target string) bool {
	ok := false
	var summary string
	g.players.Batch(func(r *Roster) {
		ok = castVote(r, voter, target)
		if ok {
			summary = voteSummary(r)
		}
	})
	if !ok {
		DebugLog("CastVote", "Rejected vote from '%s' for '%s'", voter, target)
		return false
	}

	log.Printf("Player %s voted to execute %s", voter, target)
	g.record(GameAction{Phase: PhaseVote.String(), Actor: voter, ActionType: ActionVote, Target: target,
		Visibility: VisibilityPublic, Description: voter + " voted for " + target})

	g.Broadcast(VoteMessage(voter, target), voter)
	g.Broadcast(Announcement(summary))
	return true
}

// castVote moves voter's single vote onto target. A player's vote is always
// their most recent valid one.
func castVote(r *Roster, voter, target string) bool {
	if !r.IsOpen(PhaseVote) {
		return false
	}
	v := r.Get(voter)
	if v == nil || !v.Alive() {
		return false
	}
	t := r.Get(target)
	if t == nil || !t.Alive() {
		return false
	}
	if v.LastVote == target {
		return true
	}

	t.Votes++
	if v.LastVote != "" {
		if prev := r.Get(v.LastVote); prev != nil && prev.Votes > 0 {
			prev.Votes--
		}
	}
	v.LastVote = target
	return true
}

// resetVotes clears every tally and last cast vote.
func resetVotes(r *Roster) {
	for _, p := range r.All() {
		p.Votes = 0
		p.LastVote = ""
	}
}

// tallyExecution marks the strictly most voted player dead. Equal top two
// tallies, 0-0 included, execute nobody.
func tallyExecution(r *Roster) (string, bool) {
	ranked := r.All()
	if len(ranked) == 0 {
		return "", false
	}
	slices.SortStableFunc(ranked, func(a, b *Player) int {
		return b.Votes - a.Votes
	})

	runnerUp := 0
	if len(ranked) > 1 {
		runnerUp = ranked[1].Votes
	}
	if ranked[0].Votes == runnerUp {
		return "", false
	}
	ranked[0].Dead = true
	return ranked[0].Name, true
}

func voteSummary(r *Roster) string {
	var b strings.Builder
	b.WriteString("Current Votes:\n")
	for _, p := range r.All() {
		if !p.Seated() {
			continue
		}
		fmt.Fprintf(&b, "%s: %d votes\n", p.Name, p.Votes)
	}
	return b.String()
}
