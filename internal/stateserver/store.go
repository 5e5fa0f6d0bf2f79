package stateserver

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/ledpanel/internal/logic"
	"github.com/sweeney/ledpanel/internal/schedule"
)

//go:embed schema.sql
var schemaSQL string

// Store persists light states and schedules in SQLite.
type Store struct {
	db          *sql.DB
	numChips    int
	pinsPerChip int
}

// Open creates or opens the database at path and makes sure a state row exists
// for every light of a numChips x pinsPerChip panel.
func Open(path string, numChips, pinsPerChip int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, numChips: numChips, pinsPerChip: pinsPerChip}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NumChips returns the panel height.
func (s *Store) NumChips() int { return s.numChips }

// PinsPerChip returns the panel width.
func (s *Store) PinsPerChip() int { return s.pinsPerChip }

// InRange reports whether (chip, pin) addresses a light on the panel.
func (s *Store) InRange(chip, pin int) bool {
	return chip >= 0 && chip < s.numChips && pin >= 0 && pin < s.pinsPerChip
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) seed() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("seed states: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO states (chip, pin, state) VALUES (?, ?, 0)")
	if err != nil {
		return fmt.Errorf("seed states: %w", err)
	}
	defer stmt.Close()

	for chip := 0; chip < s.numChips; chip++ {
		for pin := 0; pin < s.pinsPerChip; pin++ {
			if _, err := stmt.Exec(chip, pin); err != nil {
				return fmt.Errorf("seed state chip %d pin %d: %w", chip, pin, err)
			}
		}
	}
	return tx.Commit()
}

// States returns the full panel. Rows left in the database from a larger
// panel are ignored.
func (s *Store) States() (logic.Snapshot, error) {
	out := make(logic.Snapshot, s.numChips)
	for chip := range out {
		out[chip] = make([]bool, s.pinsPerChip)
	}

	rows, err := s.db.Query("SELECT chip, pin, state FROM states")
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chip, pin, state int
		if err := rows.Scan(&chip, &pin, &state); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		if s.InRange(chip, pin) {
			out[chip][pin] = state != 0
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return out, nil
}

// State returns one light.
func (s *Store) State(chip, pin int) (bool, error) {
	var state int
	err := s.db.QueryRow("SELECT state FROM states WHERE chip = ? AND pin = ?", chip, pin).Scan(&state)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query state chip %d pin %d: %w", chip, pin, err)
	}
	return state != 0, nil
}

// SetState stores one light.
func (s *Store) SetState(chip, pin int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	_, err := s.db.Exec(`INSERT INTO states (chip, pin, state) VALUES (?, ?, ?)
		ON CONFLICT (chip, pin) DO UPDATE SET state = excluded.state`, chip, pin, v)
	if err != nil {
		return fmt.Errorf("set state chip %d pin %d: %w", chip, pin, err)
	}
	return nil
}

// Schedules loads every saved schedule definition.
func (s *Store) Schedules() ([]schedule.Schedule, error) {
	rows, err := s.db.Query("SELECT chip, pin, name, due, repeat, overdue FROM schedules ORDER BY chip, pin")
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []schedule.Schedule
	for rows.Next() {
		var (
			sc              schedule.Schedule
			due             string
			repeat, overdue string
		)
		if err := rows.Scan(&sc.Chip, &sc.Pin, &sc.Name, &due, &repeat, &overdue); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if sc.Due, err = time.Parse(time.RFC3339Nano, due); err != nil {
			return nil, fmt.Errorf("schedule chip %d pin %d: %w", sc.Chip, sc.Pin, err)
		}
		if err := json.Unmarshal([]byte(repeat), &sc.Repeat); err != nil {
			return nil, fmt.Errorf("schedule chip %d pin %d repeat: %w", sc.Chip, sc.Pin, err)
		}
		if err := json.Unmarshal([]byte(overdue), &sc.Overdue); err != nil {
			return nil, fmt.Errorf("schedule chip %d pin %d overdue: %w", sc.Chip, sc.Pin, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return out, nil
}

// SaveSchedules replaces every stored schedule with schedules.
func (s *Store) SaveSchedules(schedules []schedule.Schedule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save schedules: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM schedules"); err != nil {
		return fmt.Errorf("clear schedules: %w", err)
	}
	for _, sc := range schedules {
		repeat, err := json.Marshal(sc.Repeat)
		if err != nil {
			return err
		}
		overdue, err := json.Marshal(sc.Overdue)
		if err != nil {
			return err
		}
		_, err = tx.Exec("INSERT INTO schedules (chip, pin, name, due, repeat, overdue) VALUES (?, ?, ?, ?, ?, ?)",
			sc.Chip, sc.Pin, sc.Name, sc.Due.UTC().Format(time.RFC3339Nano), string(repeat), string(overdue))
		if err != nil {
			return fmt.Errorf("insert schedule chip %d pin %d: %w", sc.Chip, sc.Pin, err)
		}
	}
	return tx.Commit()
}
