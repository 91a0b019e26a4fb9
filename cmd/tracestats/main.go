// tracestats loads a probe trace JSONL log into SQLite and prints wave,
// table, and latency breakdowns, plus the yacht-enforcement rate. Meant for
// offline analysis of production traces; it never touches the live path.
package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yachtops/pms-backend/internal/search"
)

func main() {
	tracePath := flag.String("trace", "./data/probe_trace.jsonl", "path to the probe trace JSONL log")
	dbPath := flag.String("db", ":memory:", "sqlite database path (defaults to in-memory)")
	flag.Parse()

	if err := run(*tracePath, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "tracestats: %v\n", err)
		os.Exit(1)
	}
}

func run(tracePath, dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS probes (
			query_id TEXT,
			lane TEXT,
			wave INTEGER,
			entity_type TEXT,
			canonical_term TEXT,
			tbl TEXT,
			col TEXT,
			match_mode TEXT,
			yacht_id_enforced INTEGER,
			yacht_id TEXT,
			rows_returned INTEGER,
			execution_time_ms INTEGER,
			error TEXT,
			base_score REAL,
			final_score REAL
		)`); err != nil {
		return fmt.Errorf("failed to create probes table: %w", err)
	}

	n, err := loadTraces(db, tracePath)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d probe traces from %s\n\n", n, tracePath)
	if n == 0 {
		return nil
	}

	if err := printLaneBreakdown(db); err != nil {
		return err
	}
	if err := printWaveBreakdown(db); err != nil {
		return err
	}
	if err := printTableBreakdown(db); err != nil {
		return err
	}
	if err := printLatency(db); err != nil {
		return err
	}
	return printEnforcement(db)
}

func loadTraces(db *sql.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open trace log: %w", err)
	}
	defer f.Close()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO probes
			(query_id, lane, wave, entity_type, canonical_term, tbl, col,
			 match_mode, yacht_id_enforced, yacht_id, rows_returned,
			 execution_time_ms, error, base_score, final_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	n := 0
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var t search.ProbeTrace
		if err := json.Unmarshal(line, &t); err != nil {
			skipped++
			continue
		}

		enforced := 0
		if t.YachtIDEnforced {
			enforced = 1
		}
		if _, err := stmt.Exec(
			t.QueryID, t.Lane, t.Wave, t.EntityType, t.CanonicalTerm,
			t.Table, t.Column, t.MatchMode, enforced, t.YachtID,
			t.RowsReturned, t.ExecutionTimeMS, t.Error, t.BaseScore, t.FinalScore,
		); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert trace: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to read trace log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	if skipped > 0 {
		fmt.Printf("Skipped %d malformed lines\n", skipped)
	}
	return n, nil
}

func printLaneBreakdown(db *sql.DB) error {
	fmt.Println("Probes by lane:")
	rows, err := db.Query(`
		SELECT lane, COUNT(*), COUNT(DISTINCT query_id), SUM(rows_returned)
		FROM probes GROUP BY lane ORDER BY lane`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var lane string
		var probes, queries, returned int
		if err := rows.Scan(&lane, &probes, &queries, &returned); err != nil {
			return err
		}
		fmt.Printf("  %-10s %6d probes  %5d queries  %6d rows\n", lane, probes, queries, returned)
	}
	fmt.Println()
	return rows.Err()
}

func printWaveBreakdown(db *sql.DB) error {
	fmt.Println("Probes by match mode:")
	rows, err := db.Query(`
		SELECT match_mode, COUNT(*),
		       SUM(CASE WHEN rows_returned > 0 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN error != '' THEN 1 ELSE 0 END)
		FROM probes GROUP BY match_mode ORDER BY MIN(wave)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var mode string
		var probes, hits, errs int
		if err := rows.Scan(&mode, &probes, &hits, &errs); err != nil {
			return err
		}
		hitRate := 0.0
		if probes > 0 {
			hitRate = float64(hits) / float64(probes) * 100
		}
		fmt.Printf("  %-8s %6d probes  %5.1f%% hit rate  %4d errors\n", mode, probes, hitRate, errs)
	}
	fmt.Println()
	return rows.Err()
}

func printTableBreakdown(db *sql.DB) error {
	fmt.Println("Rows by table:")
	rows, err := db.Query(`
		SELECT tbl, COUNT(*), SUM(rows_returned)
		FROM probes GROUP BY tbl ORDER BY SUM(rows_returned) DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table string
		var probes, returned int
		if err := rows.Scan(&table, &probes, &returned); err != nil {
			return err
		}
		fmt.Printf("  %-16s %6d probes  %6d rows\n", table, probes, returned)
	}
	fmt.Println()
	return rows.Err()
}

func printLatency(db *sql.DB) error {
	fmt.Println("Probe latency (ms):")

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM probes`).Scan(&count); err != nil {
		return err
	}

	for _, pct := range []struct {
		label string
		frac  float64
	}{
		{"p50", 0.50},
		{"p90", 0.90},
		{"p99", 0.99},
	} {
		offset := int(float64(count-1) * pct.frac)
		var ms int64
		err := db.QueryRow(`
			SELECT execution_time_ms FROM probes
			ORDER BY execution_time_ms LIMIT 1 OFFSET ?`, offset).Scan(&ms)
		if err != nil {
			return err
		}
		fmt.Printf("  %s  %6d\n", pct.label, ms)
	}
	fmt.Println()
	return nil
}

func printEnforcement(db *sql.DB) error {
	var total, enforced int
	err := db.QueryRow(`
		SELECT COUNT(*), SUM(yacht_id_enforced) FROM probes`).Scan(&total, &enforced)
	if err != nil {
		return err
	}

	rate := 0.0
	if total > 0 {
		rate = float64(enforced) / float64(total) * 100
	}
	fmt.Printf("Yacht enforcement: %d/%d probes (%.2f%%)\n", enforced, total, rate)
	if enforced != total {
		fmt.Println("WARNING: probes without yacht scoping found, investigate immediately")
	}
	return nil
}
