package main

// Role is one of the seven fixed role variants. RoleNone marks a seat that
// was never dealt a role.
type Role int

const (
	RoleNone Role = iota
	BodyGuard
	Doctor
	Sheriff
	Swapper
	Spy
	Killer
	Freezer
)

// Faction decides which side a role wins with.
type Faction int

const (
	Town Faction = iota
	Woof
)

func (f Faction) String() string {
	if f == Woof {
		return "woof"
	}
	return "town"
}

// roleCatalog is the canonical dealing order; it is truncated to the
// number of seated players before shuffling.
var roleCatalog = []Role{
	Killer,
	Doctor,
	Sheriff,
	Swapper,
	Spy,
	BodyGuard,
	Freezer,
}

// resolutionOrder is the fixed priority of the night resolution pass.
var resolutionOrder = []Role{
	Swapper,
	Freezer,
	BodyGuard,
	Doctor,
	Killer,
	Sheriff,
	Spy,
}

func (r Role) String() string {
	switch r {
	case BodyGuard:
		return "BodyGuard"
	case Doctor:
		return "Doctor"
	case Sheriff:
		return "Sheriff"
	case Swapper:
		return "Swapper"
	case Spy:
		return "Spy"
	case Killer:
		return "Killer"
	case Freezer:
		return "Freezer"
	default:
		return "None"
	}
}

// Faction is a pure function of the role.
func (r Role) Faction() Faction {
	if r == Killer || r == Freezer {
		return Woof
	}
	return Town
}

// Keyword is the night command that belongs to the role, without the slash.
func (r Role) Keyword() string {
	switch r {
	case BodyGuard:
		return "prot"
	case Doctor:
		return "heal"
	case Sheriff:
		return "inve"
	case Swapper:
		return "swap"
	case Spy:
		return "spy"
	case Killer:
		return "kill"
	case Freezer:
		return "freeze"
	default:
		return ""
	}
}

// Arity is the number of player names the night command takes.
func (r Role) Arity() int {
	switch r {
	case Sheriff, Swapper:
		return 2
	case RoleNone:
		return 0
	default:
		return 1
	}
}

// priority returns the position of the role in the resolution pass, or
// len(resolutionOrder) for a seat without a role.
func (r Role) priority() int {
	for i, o := range resolutionOrder {
		if o == r {
			return i
		}
	}
	return len(resolutionOrder)
}

// Description is sent privately when the role is dealt.
func (r Role) Description() string {
	var body string
	switch r {
	case BodyGuard:
		body = `You are a bodyguard.

  - protect one person each night

  - if you are attacked, you and the attacker die

  - if your protected target is attacked, your target will live

  - you will know if your target is attacked
`
	case Doctor:
		body = `You are a doctor.

  - heal one person each night

  - you can only heal yourself every second night

  - you will know if your target is attacked
`
	case Sheriff:
		body = `You are a sheriff.

  - investigate 2 persons each night

  - you will know if the 2 persons are on the same side
`
	case Swapper:
		body = `You are a swapper.

  - swap the position of 2 persons each night

  - if one of them is the target of an action, the other one is affected instead
`
	case Spy:
		body = `You are a spy.

  - check whether a person visited another person each night
`
	case Killer:
		body = `You are a killer.

  - kill one person at night
`
	case Freezer:
		body = `You are a freezer.

  - freeze a person's action at night
`
	default:
		return "You are watching this game without a role.\n"
	}

	if r.Faction() == Woof {
		return body + "\nObjective: kill all the townies.\n"
	}
	return body + "\nObjective: kill all the wooves.\n"
}

// NightPrompt is sent privately to every living player when night falls.
func (r Role) NightPrompt() string {
	var hint string
	switch r {
	case BodyGuard:
		hint = "Type '/prot <player name>' to protect someone."
	case Doctor:
		hint = "Type '/heal <player name>' to heal someone."
	case Sheriff:
		hint = "Type '/inve <player name> <player name>' to investigate someone."
	case Swapper:
		hint = "Type '/swap <player name> <player name>' to swap the position of someone."
	case Spy:
		hint = "Type '/spy <player name>' to spy on someone."
	case Killer:
		hint = "Type '/kill <player name>' to kill someone. You may chat with the other woof."
	case Freezer:
		hint = "Type '/freeze <player name>' to freeze someone's action. You may chat with the other woof."
	default:
		hint = "You have no night action."
	}
	return r.Description() + "\n" + hint
}
