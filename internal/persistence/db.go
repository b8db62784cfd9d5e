// Package persistence provides SQLite-based storage of simulation reports.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/ledger"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run id is not stored.
var ErrNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		pulses INTEGER NOT NULL,
		pulses_completed INTEGER NOT NULL,
		max_depth INTEGER NOT NULL,
		forced INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		optimizer TEXT NOT NULL,
		total_profit REAL NOT NULL,
		profit_count INTEGER NOT NULL,
		clones INTEGER NOT NULL,
		max_depth_reached INTEGER NOT NULL,
		mutations INTEGER NOT NULL,
		energy_log_len INTEGER NOT NULL,
		echo_count INTEGER NOT NULL,
		final_energy INTEGER NOT NULL,
		decision TEXT NOT NULL,
		chains TEXT NOT NULL,
		host_cpus INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS specialty_stats (
		run_id TEXT NOT NULL REFERENCES runs(id),
		specialty TEXT NOT NULL,
		success INTEGER NOT NULL,
		fail INTEGER NOT NULL,
		PRIMARY KEY (run_id, specialty)
	);

	CREATE TABLE IF NOT EXISTS votes (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		proposal TEXT NOT NULL,
		weight REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS clone_depths (
		run_id TEXT NOT NULL REFERENCES runs(id),
		depth INTEGER NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (run_id, depth)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// runRow is the flat form of a report in the runs table.
type runRow struct {
	ID              string  `db:"id"`
	Model           string  `db:"model"`
	Pulses          int     `db:"pulses"`
	PulsesCompleted int     `db:"pulses_completed"`
	MaxDepth        int     `db:"max_depth"`
	Forced          bool    `db:"forced"`
	Seed            int64   `db:"seed"`
	Optimizer       string  `db:"optimizer"`
	TotalProfit     float64 `db:"total_profit"`
	ProfitCount     int     `db:"profit_count"`
	Clones          int     `db:"clones"`
	MaxDepthReached int     `db:"max_depth_reached"`
	Mutations       int     `db:"mutations"`
	EnergyLogLen    int     `db:"energy_log_len"`
	EchoCount       int     `db:"echo_count"`
	FinalEnergy     int     `db:"final_energy"`
	Decision        string  `db:"decision"`
	Chains          string  `db:"chains"`
	HostCPUs        int     `db:"host_cpus"`
	StartedAt       string  `db:"started_at"`
	FinishedAt      string  `db:"finished_at"`
}

const runColumns = `id, model, pulses, pulses_completed, max_depth, forced, seed, optimizer,
	total_profit, profit_count, clones, max_depth_reached, mutations, energy_log_len,
	echo_count, final_energy, decision, chains, host_cpus, started_at, finished_at`

func toRow(r engine.Report) runRow {
	return runRow{
		ID:              r.RunID,
		Model:           r.Model,
		Pulses:          r.Pulses,
		PulsesCompleted: r.PulsesCompleted,
		MaxDepth:        r.MaxDepth,
		Forced:          r.Forced,
		Seed:            r.Seed,
		Optimizer:       r.Optimizer,
		TotalProfit:     r.TotalProfit,
		ProfitCount:     r.ProfitCount,
		Clones:          r.CloneCount,
		MaxDepthReached: r.MaxDepthReached,
		Mutations:       r.Mutations,
		EnergyLogLen:    r.EnergyLogLen,
		EchoCount:       r.EchoCount,
		FinalEnergy:     r.FinalEnergy,
		Decision:        r.Decision,
		Chains:          strings.Join(r.Chains, ","),
		HostCPUs:        r.HostCPUs,
		StartedAt:       r.StartedAt.UTC().Format(timeLayout),
		FinishedAt:      r.FinishedAt.UTC().Format(timeLayout),
	}
}

func (row runRow) report() engine.Report {
	rep := engine.Report{
		RunID:           row.ID,
		Model:           row.Model,
		Pulses:          row.Pulses,
		PulsesCompleted: row.PulsesCompleted,
		MaxDepth:        row.MaxDepth,
		Forced:          row.Forced,
		Seed:            row.Seed,
		Optimizer:       row.Optimizer,
		FinalEnergy:     row.FinalEnergy,
		Decision:        row.Decision,
		HostCPUs:        row.HostCPUs,
	}
	rep.StartedAt, _ = time.Parse(timeLayout, row.StartedAt)
	rep.FinishedAt, _ = time.Parse(timeLayout, row.FinishedAt)
	rep.TotalProfit = row.TotalProfit
	rep.ProfitCount = row.ProfitCount
	rep.CloneCount = row.Clones
	rep.MaxDepthReached = row.MaxDepthReached
	rep.Mutations = row.Mutations
	rep.EnergyLogLen = row.EnergyLogLen
	rep.EchoCount = row.EchoCount
	if row.Chains != "" {
		rep.Chains = strings.Split(row.Chains, ",")
	}
	return rep
}

// SaveReport writes a report and its per-run tables in one transaction.
// Saving the same run id twice replaces the earlier rows.
func (db *DB) SaveReport(r engine.Report) error {
	if r.RunID == "" {
		return errors.New("save report: empty run id")
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"specialty_stats", "votes", "clone_depths"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", r.RunID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.NamedExec(`INSERT OR REPLACE INTO runs (`+runColumns+`) VALUES (
		:id, :model, :pulses, :pulses_completed, :max_depth, :forced, :seed, :optimizer,
		:total_profit, :profit_count, :clones, :max_depth_reached, :mutations, :energy_log_len,
		:echo_count, :final_energy, :decision, :chains, :host_cpus, :started_at, :finished_at)`,
		toRow(r))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	stmt, err := tx.Preparex("INSERT INTO specialty_stats (run_id, specialty, success, fail) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for name, s := range r.Specialties {
		if _, err := stmt.Exec(r.RunID, name, s.Success, s.Fail); err != nil {
			return fmt.Errorf("insert specialty %q: %w", name, err)
		}
	}

	for i, v := range r.Votes {
		_, err := tx.Exec("INSERT INTO votes (run_id, seq, proposal, weight) VALUES (?, ?, ?, ?)",
			r.RunID, i, v.Proposal, v.Weight)
		if err != nil {
			return fmt.Errorf("insert vote %d: %w", i, err)
		}
	}

	for depth, n := range r.CloneDepths {
		_, err := tx.Exec("INSERT INTO clone_depths (run_id, depth, count) VALUES (?, ?, ?)",
			r.RunID, depth, n)
		if err != nil {
			return fmt.Errorf("insert clone depth %d: %w", depth, err)
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('last_run', ?)", r.RunID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "run", r.RunID, "clones", r.CloneCount, "votes", len(r.Votes))
	return nil
}

// ListRuns returns the most recent runs, newest first. Per-run tables are
// not loaded.
func (db *DB) ListRuns(limit int) ([]engine.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	err := db.conn.Select(&rows,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	reports := make([]engine.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.report())
	}
	return reports, nil
}

// GetRun loads a full report, including specialties, votes and clone depths.
func (db *DB) GetRun(id string) (engine.Report, error) {
	var row runRow
	err := db.conn.Get(&row, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Report{}, ErrNotFound
	}
	if err != nil {
		return engine.Report{}, fmt.Errorf("get run %s: %w", id, err)
	}
	rep := row.report()

	if rep.Specialties, err = db.SpecialtyStats(id); err != nil {
		return engine.Report{}, err
	}

	var votes []ledger.Vote
	if err := db.conn.Select(&votes,
		"SELECT proposal, weight FROM votes WHERE run_id = ? ORDER BY seq", id); err != nil {
		return engine.Report{}, fmt.Errorf("load votes: %w", err)
	}
	rep.Votes = votes

	var depths []struct {
		Depth int `db:"depth"`
		Count int `db:"count"`
	}
	if err := db.conn.Select(&depths,
		"SELECT depth, count FROM clone_depths WHERE run_id = ?", id); err != nil {
		return engine.Report{}, fmt.Errorf("load clone depths: %w", err)
	}
	rep.CloneDepths = make(map[int]int, len(depths))
	for _, d := range depths {
		rep.CloneDepths[d.Depth] = d.Count
	}

	return rep, nil
}

// SpecialtyStats returns the success/fail counters stored for a run.
func (db *DB) SpecialtyStats(id string) (map[string]ledger.SuccessStats, error) {
	var rows []struct {
		Specialty string `db:"specialty"`
		Success   int    `db:"success"`
		Fail      int    `db:"fail"`
	}
	if err := db.conn.Select(&rows,
		"SELECT specialty, success, fail FROM specialty_stats WHERE run_id = ?", id); err != nil {
		return nil, fmt.Errorf("load specialty stats: %w", err)
	}

	stats := make(map[string]ledger.SuccessStats, len(rows))
	for _, r := range rows {
		stats[r.Specialty] = ledger.SuccessStats{Success: r.Success, Fail: r.Fail}
	}
	return stats, nil
}

// TopSpecialties aggregates success counts across all runs, best first.
func (db *DB) TopSpecialties(limit int) ([]string, error) {
	var rows []struct {
		Specialty string `db:"specialty"`
		Success   int    `db:"total"`
	}
	if err := db.conn.Select(&rows,
		`SELECT specialty, SUM(success) AS total FROM specialty_stats
		 GROUP BY specialty ORDER BY total DESC, specialty LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("top specialties: %w", err)
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Specialty
	}
	return names, nil
}

// CountRuns returns the number of stored runs.
func (db *DB) CountRuns() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM runs")
	return n, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
