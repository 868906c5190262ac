package vm

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SaveProfile persists a profiler's opcode counts to a SQLite database at
// path, creating it if needed. Re-saving accumulates into existing rows, so
// repeated runs against the same database build an aggregate profile.
func SaveProfile(path string, p *Profiler) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("cannot open profile database %s: %w", path, err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS opcode_counts (
		opcode     TEXT PRIMARY KEY,
		executions INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("cannot create profile schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("cannot begin profile transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO opcode_counts (opcode, executions) VALUES (?, ?)
		ON CONFLICT(opcode) DO UPDATE SET executions = executions + excluded.executions`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("cannot prepare profile insert: %w", err)
	}
	defer stmt.Close()

	for op, n := range p.Counts() {
		if _, err := stmt.Exec(op.Name(), int64(n)); err != nil {
			tx.Rollback()
			return fmt.Errorf("cannot record count for %s: %w", op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit profile: %w", err)
	}
	return nil
}

// LoadProfile reads the aggregate opcode counts back from a profile
// database written by SaveProfile.
func LoadProfile(path string) (map[string]uint64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open profile database %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT opcode, executions FROM opcode_counts`)
	if err != nil {
		return nil, fmt.Errorf("cannot read profile: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("cannot scan profile row: %w", err)
		}
		out[name] = uint64(n)
	}
	return out, rows.Err()
}
