package main

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// GameAction is one entry of a game's history.
//
// Visibility determines who may read it back:
//   - "public": everyone
//   - "actor": only the acting player
//   - "team:woof": only the Woof faction
type GameAction struct {
	ID          int64  `db:"id"`
	GameID      string `db:"game_id"`
	Cycle       int    `db:"cycle"`
	Phase       string `db:"phase"`
	Actor       string `db:"actor"`
	ActionType  string `db:"action_type"`
	Target      string `db:"target"`
	Visibility  string `db:"visibility"`
	Description string `db:"description"`
}

// Action types
const (
	ActionJoin         = "join"
	ActionLeave        = "leave"
	ActionRoleAssigned = "role_assigned"
	ActionNightSubmit  = "night_submit"
	ActionVote         = "vote"
	ActionExecution    = "execution"
	ActionNoExecution  = "no_execution"
	ActionKill         = "kill"
	ActionBlocked      = "blocked"
	ActionHealed       = "healed"
	ActionFrozen       = "frozen"
	ActionSwap         = "swap"
	ActionFreeze       = "freeze"
	ActionProtect      = "protect"
	ActionHeal         = "heal"
	ActionInvestigate  = "investigate"
	ActionSpyReport    = "spy_report"
	ActionOutcome      = "outcome"
	ActionStory        = "story"
)

// Visibility types
const (
	VisibilityPublic   = "public"
	VisibilityActor    = "actor"
	VisibilityTeamWoof = "team:woof"
)

const historySchema = `
	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'none'
	);
	CREATE TABLE IF NOT EXISTS game_action (
		game_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		phase TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action_type TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE INDEX IF NOT EXISTS idx_game_action_lookup ON game_action(game_id, cycle, visibility);
`

// History is an append-only log of what happened in each game. A nil
// *History records nothing, so the engine runs without a database.
type History struct {
	db *sqlx.DB
}

// OpenHistory connects to the sqlite database at dsn and creates the
// schema.
func OpenHistory(dsn string) (*History, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history %q: %w", dsn, err)
	}
	// In-memory databases vanish with their last connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	log.Printf("History database initialized")
	return &History{db: db}, nil
}

func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}

func (h *History) StartGame(gameID string) {
	if h == nil {
		return
	}
	_, err := h.db.Exec(`INSERT INTO game (id, started_at) VALUES (?, ?)`,
		gameID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		logError("StartGame: insert game", err)
	}
}

func (h *History) FinishGame(gameID string, o Outcome) {
	if h == nil {
		return
	}
	if _, err := h.db.Exec(`UPDATE game SET outcome = ? WHERE id = ?`, o.String(), gameID); err != nil {
		logError("FinishGame: update game", err)
	}
}

// Record appends a to the history. Failures are logged and otherwise
// ignored; history never affects the game.
func (h *History) Record(a GameAction) {
	if h == nil {
		return
	}
	if a.Visibility == "" {
		a.Visibility = VisibilityPublic
	}
	_, err := h.db.NamedExec(`
		INSERT INTO game_action (game_id, cycle, phase, actor, action_type, target, visibility, description)
		VALUES (:game_id, :cycle, :phase, :actor, :action_type, :target, :visibility, :description)`, a)
	if err != nil {
		logError("Record: insert game_action", err)
	}
}

// Actions returns every entry of the game in insertion order.
func (h *History) Actions(gameID string) ([]GameAction, error) {
	if h == nil {
		return nil, nil
	}
	var actions []GameAction
	err := h.db.Select(&actions, `
		SELECT rowid AS id, game_id, cycle, phase, actor, action_type, target, visibility, description
		FROM game_action
		WHERE game_id = ?
		ORDER BY rowid`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select actions: %w", err)
	}
	return actions, nil
}

// PublicHistory returns the descriptions everyone is allowed to know, one
// line per entry, prefixed with the cycle they happened in.
func (h *History) PublicHistory(gameID string) ([]string, error) {
	if h == nil {
		return nil, nil
	}
	var rows []GameAction
	err := h.db.Select(&rows, `
		SELECT cycle, phase, description
		FROM game_action
		WHERE game_id = ? AND visibility = ? AND description != ''
		ORDER BY rowid`, gameID, VisibilityPublic)
	if err != nil {
		return nil, fmt.Errorf("select public history: %w", err)
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("[%s %d] %s", r.Phase, r.Cycle, r.Description))
	}
	return lines, nil
}

// Outcome returns the stored outcome of a game.
func (h *History) Outcome(gameID string) (string, error) {
	if h == nil {
		return "", nil
	}
	var outcome string
	if err := h.db.Get(&outcome, `SELECT outcome FROM game WHERE id = ?`, gameID); err != nil {
		return "", fmt.Errorf("select outcome: %w", err)
	}
	return outcome, nil
}

// Dump renders every table for the database log.
func (h *History) Dump() string {
	var buf bytes.Buffer
	if h == nil {
		return "(no history database)\n"
	}

	var tables []string
	if err := h.db.Select(&tables, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"); err != nil {
		fmt.Fprintf(&buf, "Error getting tables: %v\n", err)
		return buf.String()
	}

	for _, table := range tables {
		fmt.Fprintf(&buf, "--- Table: %s ---\n", table)

		rows, err := h.db.Queryx("SELECT * FROM " + table)
		if err != nil {
			fmt.Fprintf(&buf, "Error: %v\n\n", err)
			continue
		}
		cols, err := rows.Columns()
		if err != nil {
			fmt.Fprintf(&buf, "Error getting columns: %v\n\n", err)
			rows.Close()
			continue
		}
		fmt.Fprintf(&buf, "Columns: %s\n", strings.Join(cols, " | "))

		rowCount := 0
		for rows.Next() {
			rowCount++
			values, err := rows.SliceScan()
			if err != nil {
				fmt.Fprintf(&buf, "Error scanning row: %v\n", err)
				continue
			}
			var rowStr []string
			for _, v := range values {
				switch val := v.(type) {
				case nil:
					rowStr = append(rowStr, "NULL")
				case []byte:
					rowStr = append(rowStr, string(val))
				default:
					rowStr = append(rowStr, fmt.Sprintf("%v", val))
				}
			}
			fmt.Fprintf(&buf, "Row %d: %s\n", rowCount, strings.Join(rowStr, " | "))
		}
		rows.Close()

		if rowCount == 0 {
			fmt.Fprintf(&buf, "(empty)\n")
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
