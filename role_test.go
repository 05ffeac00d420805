package main

import (
	"strings"
	"testing"
)

func TestRoleFaction(t *testing.T) {
	want := map[Role]Faction{
		BodyGuard: Town,
		Doctor:    Town,
		Sheriff:   Town,
		Swapper:   Town,
		Spy:       Town,
		Killer:    Woof,
		Freezer:   Woof,
	}
	for role, faction := range want {
		if got := role.Faction(); got != faction {
			t.Errorf("%s.Faction() = %s, want %s", role, got, faction)
		}
	}
}

func TestRoleCatalogCoversEveryRoleOnce(t *testing.T) {
	seen := make(map[Role]bool)
	for _, r := range roleCatalog {
		if seen[r] {
			t.Errorf("%s appears twice in the catalog", r)
		}
		seen[r] = true
		if r.priority() >= len(resolutionOrder) {
			t.Errorf("%s has no place in the resolution order", r)
		}
	}
	if len(seen) != 7 {
		t.Errorf("catalog has %d roles, want 7", len(seen))
	}
}

func TestResolutionOrder(t *testing.T) {
	order := []Role{Swapper, Freezer, BodyGuard, Doctor, Killer, Sheriff, Spy}
	for i := 1; i < len(order); i++ {
		if order[i-1].priority() >= order[i].priority() {
			t.Errorf("%s should resolve before %s", order[i-1], order[i])
		}
	}
	if RoleNone.priority() != len(resolutionOrder) {
		t.Errorf("a seat without a role should resolve last")
	}
}

func TestRoleKeywordsAndArity(t *testing.T) {
	tests := []struct {
		role    Role
		keyword string
		arity   int
	}{
		{BodyGuard, "prot", 1},
		{Doctor, "heal", 1},
		{Sheriff, "inve", 2},
		{Swapper, "swap", 2},
		{Spy, "spy", 1},
		{Killer, "kill", 1},
		{Freezer, "freeze", 1},
		{RoleNone, "", 0},
	}
	for _, tt := range tests {
		if got := tt.role.Keyword(); got != tt.keyword {
			t.Errorf("%s.Keyword() = %q, want %q", tt.role, got, tt.keyword)
		}
		if got := tt.role.Arity(); got != tt.arity {
			t.Errorf("%s.Arity() = %d, want %d", tt.role, got, tt.arity)
		}
	}
}

func TestRoleDescriptionObjective(t *testing.T) {
	for _, r := range roleCatalog {
		d := r.Description()
		if r.Faction() == Woof && !strings.Contains(d, "kill all the townies") {
			t.Errorf("%s description lacks the woof objective: %q", r, d)
		}
		if r.Faction() == Town && !strings.Contains(d, "kill all the wooves") {
			t.Errorf("%s description lacks the town objective: %q", r, d)
		}
		if !strings.Contains(r.NightPrompt(), "/"+r.Keyword()) {
			t.Errorf("%s night prompt does not mention /%s", r, r.Keyword())
		}
	}
}
