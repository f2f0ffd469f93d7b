// Package persistence provides SQLite-based simulation state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"cryptopolis/internal/buildings"
	"cryptopolis/internal/engine"
	"cryptopolis/internal/events"
)

// DB wraps a SQLite connection for simulation state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buildings (
		handle INTEGER PRIMARY KEY,
		type_id TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		active INTEGER NOT NULL,
		damaged INTEGER NOT NULL,
		decaying INTEGER NOT NULL,
		staked INTEGER NOT NULL,
		level INTEGER NOT NULL,
		lifetime_yield REAL NOT NULL,
		placed_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_log (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		icon TEXT NOT NULL,
		magnitude REAL NOT NULL,
		start_tick INTEGER NOT NULL,
		end_tick INTEGER NOT NULL,
		source TEXT NOT NULL,
		is_active INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_buildings_cell ON buildings(x, y);
	CREATE INDEX IF NOT EXISTS idx_event_log_start ON event_log(start_tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// buildingRow maps one buildings table row.
type buildingRow struct {
	Handle        uint32  `db:"handle"`
	TypeID        string  `db:"type_id"`
	X             int     `db:"x"`
	Y             int     `db:"y"`
	Active        int     `db:"active"`
	Damaged       int     `db:"damaged"`
	Decaying      int     `db:"decaying"`
	Staked        int     `db:"staked"`
	Level         int     `db:"level"`
	LifetimeYield float64 `db:"lifetime_yield"`
	PlacedTick    uint64  `db:"placed_tick"`
}

// eventRow maps one event_log table row.
type eventRow struct {
	ID          string  `db:"id"`
	Type        string  `db:"type"`
	Name        string  `db:"name"`
	Description string  `db:"description"`
	Icon        string  `db:"icon"`
	Magnitude   float64 `db:"magnitude"`
	StartTick   uint64  `db:"start_tick"`
	EndTick     uint64  `db:"end_tick"`
	Source      string  `db:"source"`
	IsActive    int     `db:"is_active"`
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveState performs a full replace of the stored simulation state.
func (db *DB) SaveState(st engine.State) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM buildings"); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT INTO buildings
		(handle, type_id, x, y, active, damaged, decaying, staked, level, lifetime_yield, placed_tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range st.Buildings {
		_, err := stmt.Exec(
			b.Handle, b.TypeID, b.Pos.X, b.Pos.Y,
			boolInt(b.Active), boolInt(b.Damaged), boolInt(b.Decaying), boolInt(b.Staked),
			b.Level, b.LifetimeYield, b.PlacedTick,
		)
		if err != nil {
			return fmt.Errorf("insert building %d: %w", b.Handle, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM event_log"); err != nil {
		return err
	}
	activeIDs := make(map[string]bool, len(st.ActiveEvents))
	for _, ev := range st.ActiveEvents {
		activeIDs[ev.ID] = true
	}
	for _, ev := range st.EventHistory {
		_, err := tx.Exec(`INSERT OR REPLACE INTO event_log
			(id, type, name, description, icon, magnitude, start_tick, end_tick, source, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, string(ev.Type), ev.Name, ev.Description, ev.Icon,
			ev.Magnitude, ev.StartTick, ev.EndTick, ev.Source, boolInt(activeIDs[ev.ID]),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	meta := map[string]any{
		"current_tick": st.CurrentTick,
		"treasury":     st.Treasury,
		"sentiment":    st.Sentiment,
		"services":     st.Services,
		"total_yield":  st.TotalYield,
		"bankrupt":     st.Bankrupt,
	}
	for key, v := range meta {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal meta %s: %w", key, err)
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
			key, string(raw),
		); err != nil {
			return fmt.Errorf("save meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("simulation state saved",
		"tick", st.CurrentTick,
		"buildings", len(st.Buildings),
		"events", len(st.EventHistory),
	)
	return nil
}

// HasState reports whether a previous save exists.
func (db *DB) HasState() bool {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = 'current_tick'")
	return err == nil
}

// LoadState reads the stored simulation state.
func (db *DB) LoadState() (engine.State, error) {
	var st engine.State

	var rows []buildingRow
	if err := db.conn.Select(&rows, "SELECT * FROM buildings ORDER BY handle"); err != nil {
		return st, fmt.Errorf("load buildings: %w", err)
	}
	for _, r := range rows {
		st.Buildings = append(st.Buildings, &buildings.Placed{
			Handle:        buildings.Handle(r.Handle),
			TypeID:        r.TypeID,
			Pos:           buildings.Position{X: r.X, Y: r.Y},
			Active:        r.Active != 0,
			Damaged:       r.Damaged != 0,
			Decaying:      r.Decaying != 0,
			Staked:        r.Staked != 0,
			Level:         r.Level,
			LifetimeYield: r.LifetimeYield,
			PlacedTick:    r.PlacedTick,
		})
	}

	var evs []eventRow
	if err := db.conn.Select(&evs, "SELECT * FROM event_log ORDER BY start_tick"); err != nil {
		return st, fmt.Errorf("load events: %w", err)
	}
	for _, r := range evs {
		ev := &events.Active{
			ID:          r.ID,
			Type:        events.Type(r.Type),
			Name:        r.Name,
			Description: r.Description,
			Icon:        r.Icon,
			Magnitude:   r.Magnitude,
			StartTick:   r.StartTick,
			EndTick:     r.EndTick,
			Source:      r.Source,
		}
		st.EventHistory = append(st.EventHistory, ev)
		if r.IsActive != 0 {
			st.ActiveEvents = append(st.ActiveEvents, ev)
		}
	}

	for key, dst := range map[string]any{
		"current_tick": &st.CurrentTick,
		"treasury":     &st.Treasury,
		"sentiment":    &st.Sentiment,
		"services":     &st.Services,
		"total_yield":  &st.TotalYield,
		"bankrupt":     &st.Bankrupt,
	} {
		var raw string
		err := db.conn.Get(&raw, "SELECT value FROM sim_meta WHERE key = ?", key)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return st, fmt.Errorf("load meta %s: %w", key, err)
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return st, fmt.Errorf("decode meta %s: %w", key, err)
		}
	}

	return st, nil
}

// SaveMeta stores one key-value pair in simulation metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	return value, err
}
