package main

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistryAddRemove(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"A", "B", "C"} {
		if err := reg.Add(name, &recorder{}); err != nil {
			t.Fatalf("Add(%q): %v", name, err)
		}
	}
	if err := reg.Add("B", &recorder{}); !errors.Is(err, ErrNameTaken) {
		t.Errorf("duplicate Add = %v, want ErrNameTaken", err)
	}
	if reg.Count() != 3 {
		t.Errorf("Count() = %d, want 3", reg.Count())
	}

	if !reg.Remove("B") {
		t.Error("Remove(B) should succeed")
	}
	if reg.Remove("B") {
		t.Error("second Remove(B) should report false")
	}
	if reg.Contains("B") {
		t.Error("B should be gone")
	}

	var names []string
	reg.Batch(func(r *Roster) {
		for _, p := range r.All() {
			names = append(names, p.Name)
		}
	})
	if !slices.Equal(names, []string{"A", "C"}) {
		t.Errorf("join order after removal = %v, want [A C]", names)
	}
}

func TestRegistryRemoveWithdrawsVotes(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"A", "B", "C"} {
		reg.Add(name, &recorder{})
	}
	reg.Batch(func(r *Roster) {
		for _, p := range r.All() {
			p.Role = Doctor
		}
		r.setIntake(PhaseVote)
		castVote(r, "A", "C")
		castVote(r, "C", "B")
	})

	reg.Remove("A")
	reg.Remove("B")

	reg.Batch(func(r *Roster) {
		c := r.Get("C")
		if c.Votes != 0 {
			t.Errorf("C keeps %d votes from a departed voter", c.Votes)
		}
		if c.LastVote != "" {
			t.Errorf("C's vote still points at departed player %q", c.LastVote)
		}
	})
}

func TestRegistryPointQueries(t *testing.T) {
	reg := NewRegistry()
	reg.Add("K", &recorder{})
	reg.Add("W", &recorder{})
	reg.Batch(func(r *Roster) {
		r.Get("K").Role = Killer
		r.Get("K").Dead = true
		r.Get("K").PrevAction = []string{"W"}
	})

	if f, ok := reg.FactionOf("K"); !ok || f != Woof {
		t.Errorf("FactionOf(K) = %s, %v; want woof, true", f, ok)
	}
	if _, ok := reg.FactionOf("W"); ok {
		t.Error("a player without a role has no faction")
	}
	if !reg.IsDead("K") || reg.IsDead("W") || reg.IsDead("nobody") {
		t.Error("IsDead reports the wrong players")
	}
	if reg.RoleOf("K") != Killer || reg.RoleOf("nobody") != RoleNone {
		t.Error("RoleOf reports the wrong roles")
	}

	prev := reg.PrevAction("K")
	prev[0] = "changed"
	if got := reg.PrevAction("K"); got[0] != "W" {
		t.Errorf("PrevAction should return a copy, registry now holds %v", got)
	}
}

func TestPlayerAlive(t *testing.T) {
	p := &Player{Name: "A"}
	if p.Alive() {
		t.Error("a player without a role is not alive in the game")
	}
	p.Role = Spy
	if !p.Alive() {
		t.Error("a seated player starts alive")
	}
	p.Dead = true
	if p.Alive() {
		t.Error("a dead player is not alive")
	}
}
