package main

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
)

var (
	errIntakeClosed  = errors.New("night actions are not being accepted")
	errWrongRole     = errors.New("command does not belong to the player's role")
	errArity         = errors.New("wrong number of targets")
	errBadTarget     = errors.New("target is unknown or dead")
	errSelfTarget    = errors.New("role cannot target itself")
	errSameTarget    = errors.New("both targets are the same player")
	errSelfHealTwice = errors.New("doctor healed themselves last night")
)

const cancelKeyword = "cancel"

// SubmitNightAction validates and stages a night action for name. Nothing
// changes in the game until the resolution pass runs. On failure the player
// is told privately.
func (g *Game) SubmitNightAction(name, keyword string, args []string) bool {
	var err error
	g.players.Batch(func(r *Roster) {
		err = stageNightAction(r, name, keyword, args)
	})
	if err != nil {
		DebugLog("SubmitNightAction", "Rejected /%s %v from '%s': %v", keyword, args, name, err)
		g.sendNotice(name, noticeInvalidAction)
		return false
	}

	if keyword == cancelKeyword {
		DebugLog("SubmitNightAction", "'%s' cancelled their night action", name)
		return true
	}
	log.Printf("Night action from %s: /%s %s", name, keyword, strings.Join(args, " "))
	g.record(GameAction{Phase: PhaseNight.String(), Actor: name, ActionType: ActionNightSubmit,
		Target: strings.Join(args, " "), Visibility: VisibilityActor,
		Description: fmt.Sprintf("%s chose /%s %s", name, keyword, strings.Join(args, " "))})
	return true
}

func stageNightAction(r *Roster, name, keyword string, args []string) error {
	p := r.Get(name)
	if p == nil || !r.IsOpen(PhaseNight) {
		return errIntakeClosed
	}
	if keyword == cancelKeyword {
		p.Action = nil
		p.HasAction = false
		return nil
	}
	if !p.Alive() {
		return errBadTarget
	}
	if err := validateNightAction(r, p, keyword, args); err != nil {
		return err
	}
	p.Action = slices.Clone(args)
	p.HasAction = true
	return nil
}

func validateNightAction(r *Roster, p *Player, keyword string, args []string) error {
	if keyword == "" || p.Role.Keyword() != keyword {
		return errWrongRole
	}
	if len(args) != p.Role.Arity() {
		return errArity
	}
	for _, t := range args {
		if !r.aliveTarget(t) {
			return errBadTarget
		}
	}

	switch p.Role {
	case Sheriff, Swapper:
		if args[0] == args[1] {
			return errSameTarget
		}
	case BodyGuard, Spy, Freezer, Killer:
		if args[0] == p.Name {
			return errSelfTarget
		}
	case Doctor:
		if args[0] == p.Name && len(p.PrevAction) > 0 && p.PrevAction[0] == p.Name {
			return errSelfHealTwice
		}
	}
	return nil
}

// nightState is the redirection state carried forward through one
// resolution pass. Later roles see what earlier roles did; never the
// reverse.
type nightState struct {
	swap     [2]string
	swapping bool
	frozen   string
	freezer  string
	guard    string
	guarded  string
	doctor   string
	healed   string
	killer   string
	killed   string
}

// remap substitutes one member of the swap pair for the other.
func (s *nightState) remap(name string) string {
	if !s.swapping {
		return name
	}
	switch name {
	case s.swap[0]:
		return s.swap[1]
	case s.swap[1]:
		return s.swap[0]
	}
	return name
}

// resolution accumulates the outcome of one pass.
type resolution struct {
	nightState
	roster  *Roster
	out     outbox
	records []GameAction
	deaths  []string
}

func (res *resolution) note(a GameAction) {
	a.Phase = PhaseNight.String()
	res.records = append(res.records, a)
}

func (res *resolution) kill(p *Player) {
	p.Dead = true
	text := "Oof, " + p.Name + " was found dead."
	res.out.public(text)
	res.deaths = append(res.deaths, p.Name)
	res.note(GameAction{Actor: res.killer, ActionType: ActionKill, Target: p.Name,
		Visibility: VisibilityPublic, Description: text})
}

// nightEffect applies one role's staged action to the pass. targets are
// already remapped through the current swap pair.
type nightEffect func(res *resolution, actor *Player, targets []string)

var nightEffects = map[Role]nightEffect{
	Swapper:   swapEffect,
	Freezer:   freezeEffect,
	BodyGuard: guardEffect,
	Doctor:    healEffect,
	Killer:    killEffect,
	Sheriff:   investigateEffect,
	Spy:       spyEffect,
}

func swapEffect(res *resolution, actor *Player, targets []string) {
	res.swap = [2]string{targets[0], targets[1]}
	res.swapping = true
	res.note(GameAction{Actor: actor.Name, ActionType: ActionSwap, Target: targets[0] + " " + targets[1],
		Visibility: VisibilityActor, Description: actor.Name + " swapped " + targets[0] + " and " + targets[1]})
}

func freezeEffect(res *resolution, actor *Player, targets []string) {
	res.frozen = targets[0]
	res.note(GameAction{Actor: actor.Name, ActionType: ActionFreeze, Target: targets[0],
		Visibility: VisibilityTeamWoof, Description: actor.Name + " froze " + targets[0]})
}

func guardEffect(res *resolution, actor *Player, targets []string) {
	res.guarded = targets[0]
	res.note(GameAction{Actor: actor.Name, ActionType: ActionProtect, Target: targets[0],
		Visibility: VisibilityActor, Description: actor.Name + " protected " + targets[0]})
}

func healEffect(res *resolution, actor *Player, targets []string) {
	res.healed = targets[0]
	res.note(GameAction{Actor: actor.Name, ActionType: ActionHeal, Target: targets[0],
		Visibility: VisibilityActor, Description: actor.Name + " healed " + targets[0]})
}

func killEffect(res *resolution, actor *Player, targets []string) {
	target := targets[0]
	res.killed = target
	r := res.roster

	switch target {
	case res.guard:
		guard := r.Get(res.guard)
		if guard == nil {
			return
		}
		// The guard takes the killer down with them.
		res.kill(guard)
		res.kill(actor)
	case res.guarded:
		res.out.private(actor, "Your attack was blocked.")
		res.out.private(r.Get(res.guarded), "You were attacked, but you survived.")
		res.out.private(r.Get(res.guard), "You saved "+res.guarded+" from an attack.")
		res.note(GameAction{Actor: actor.Name, ActionType: ActionBlocked, Target: target,
			Visibility: VisibilityActor, Description: res.guard + " blocked an attack on " + target})
	case res.healed:
		res.out.private(r.Get(res.healed), "You were healed from an attack.")
		res.out.private(r.Get(res.doctor), "You saved "+res.healed+" from an attack.")
		res.note(GameAction{Actor: actor.Name, ActionType: ActionHealed, Target: target,
			Visibility: VisibilityActor, Description: res.doctor + " healed " + target + " from an attack"})
	default:
		victim := r.Get(target)
		if victim == nil || victim.Dead {
			return
		}
		res.kill(victim)
	}
}

func investigateEffect(res *resolution, actor *Player, targets []string) {
	a, b := res.roster.Get(targets[0]), res.roster.Get(targets[1])
	if a == nil || b == nil {
		return
	}
	side := "same side"
	if a.Faction() != b.Faction() {
		side = "different side"
	}
	text := a.Name + " and " + b.Name + " are " + side
	res.out.private(actor, text)
	res.note(GameAction{Actor: actor.Name, ActionType: ActionInvestigate, Target: a.Name + " " + b.Name,
		Visibility: VisibilityActor, Description: text})
}

func spyEffect(res *resolution, actor *Player, targets []string) {
	target := targets[0]

	// Each slot is a role holder and the player they ended up visiting.
	slots := [][2]string{
		{res.doctor, res.healed},
		{res.guard, res.guarded},
		{res.freezer, res.frozen},
		{res.killer, res.killed},
	}
	visited := ""
	for _, s := range slots {
		if target == s[0] && s[0] != s[1] {
			visited = s[1]
			break
		}
	}
	if visited == "" {
		visited = "nobody"
	}

	text := target + " visited " + visited
	res.out.private(actor, text)
	res.note(GameAction{Actor: actor.Name, ActionType: ActionSpyReport, Target: target,
		Visibility: VisibilityActor, Description: text})
}

// resolveNight runs the single resolution pass over every staged action.
// It must be called inside Batch; the returned outbox is sent afterwards.
func resolveNight(r *Roster) *resolution {
	res := &resolution{roster: r}

	players := r.All()
	slices.SortStableFunc(players, func(a, b *Player) int {
		return a.Role.priority() - b.Role.priority()
	})

	for _, p := range players {
		switch p.Role {
		case Freezer:
			res.freezer = p.Name
		case BodyGuard:
			res.guard = p.Name
		case Doctor:
			res.doctor = p.Name
		case Killer:
			res.killer = p.Name
		}

		if !p.Seated() || p.Dead || !p.HasAction {
			continue
		}
		if res.frozen != "" && res.frozen == p.Name {
			res.out.private(p, "You are frozen.")
			res.note(GameAction{Actor: p.Name, ActionType: ActionFrozen, Target: p.Name,
				Visibility: VisibilityActor, Description: p.Name + " was frozen"})
			continue
		}

		targets := make([]string, len(p.Action))
		for i, t := range p.Action {
			targets[i] = res.remap(t)
		}
		if len(targets) != p.Role.Arity() {
			continue
		}
		if effect := nightEffects[p.Role]; effect != nil {
			effect(res, p, targets)
		}
	}
	return res
}
