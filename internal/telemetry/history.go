package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"attnroute/internal/logging"
)

// History is a queryable SQLite index over turns.jsonl. The JSONL file stays
// the source of truth; `attnroute report` re-reads the log and ingests it
// into the index on each run, then queries its aggregates from the index.
// `attnroute status` does not use the index.
type History struct {
	db *sql.DB
}

// OpenHistory opens or creates the history database.
func OpenHistory(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return h, nil
}

func (h *History) Close() error { return h.db.Close() }

func (h *History) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		turn_id        TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		project        TEXT NOT NULL,
		ts             DATETIME NOT NULL,
		prompt_length  INTEGER NOT NULL DEFAULT 0,
		token_estimate INTEGER NOT NULL DEFAULT 0,
		waste_ratio    REAL NOT NULL DEFAULT 0,
		files_injected TEXT NOT NULL DEFAULT '',
		files_used     TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_turns_project ON turns(project);
	CREATE INDEX IF NOT EXISTS idx_turns_ts ON turns(ts);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Ingest loads turn records into the index. Existing turn ids are replaced,
// so re-ingesting the whole log is idempotent.
func (h *History) Ingest(records []TurnRecord) error {
	timer := logging.StartTimer(logging.CategoryTelemetry, "History.Ingest")
	defer timer.Stop()

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("begin ingest: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO turns
		(turn_id, session_id, project, ts, prompt_length, token_estimate, waste_ratio, files_injected, files_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare ingest: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.Exec(r.TurnID, r.SessionID, r.Project, r.Timestamp.UTC(),
			r.PromptLength, r.TokenEstimate, r.WasteRatio,
			strings.Join(r.FilesInjected, "\n"), strings.Join(r.FilesUsed, "\n"))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert turn %s: %w", r.TurnID, err)
		}
	}
	return tx.Commit()
}

// ProjectSummary aggregates routing quality for one project.
type ProjectSummary struct {
	Project     string
	Turns       int
	AvgWaste    float64
	TotalTokens int
	FirstTurn   time.Time
	LastTurn    time.Time
	TopWasted   []FileWaste
	TopInjected []FileWaste
}

// FileWaste pairs a file with its injected/used counts.
type FileWaste struct {
	File     string
	Injected int
	Used     int
}

// Summarize computes a project summary over the indexed turns.
func (h *History) Summarize(project string, limit int) (*ProjectSummary, error) {
	row := h.db.QueryRow(`SELECT COUNT(*), COALESCE(AVG(waste_ratio), 0),
		COALESCE(SUM(token_estimate), 0),
		COALESCE(MIN(ts), '0001-01-01'), COALESCE(MAX(ts), '0001-01-01')
		FROM turns WHERE project = ?`, project)

	s := &ProjectSummary{Project: project}
	var first, last string
	if err := row.Scan(&s.Turns, &s.AvgWaste, &s.TotalTokens, &first, &last); err != nil {
		return nil, fmt.Errorf("summarize %s: %w", project, err)
	}
	s.FirstTurn, _ = time.Parse("2006-01-02 15:04:05.999999999-07:00", first)
	s.LastTurn, _ = time.Parse("2006-01-02 15:04:05.999999999-07:00", last)

	rows, err := h.db.Query(`SELECT files_injected, files_used FROM turns WHERE project = ?`, project)
	if err != nil {
		return nil, fmt.Errorf("scan files for %s: %w", project, err)
	}
	defer rows.Close()

	injected := map[string]int{}
	used := map[string]int{}
	for rows.Next() {
		var inj, u string
		if err := rows.Scan(&inj, &u); err != nil {
			return nil, err
		}
		for _, f := range splitFiles(inj) {
			injected[f]++
		}
		for _, f := range splitFiles(u) {
			used[f]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wasted := make([]FileWaste, 0, len(injected))
	for f, inj := range injected {
		wasted = append(wasted, FileWaste{File: f, Injected: inj, Used: used[f]})
	}
	sortByWaste(wasted)
	if len(wasted) > limit {
		s.TopWasted = append([]FileWaste(nil), wasted[:limit]...)
	} else {
		s.TopWasted = append([]FileWaste(nil), wasted...)
	}
	sortByInjected(wasted)
	if len(wasted) > limit {
		s.TopInjected = append([]FileWaste(nil), wasted[:limit]...)
	} else {
		s.TopInjected = append([]FileWaste(nil), wasted...)
	}
	return s, nil
}

func splitFiles(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\n")
}

func sortByWaste(fw []FileWaste) {
	sort.Slice(fw, func(i, j int) bool {
		return fw[i].Injected-fw[i].Used > fw[j].Injected-fw[j].Used
	})
}

func sortByInjected(fw []FileWaste) {
	sort.Slice(fw, func(i, j int) bool { return fw[i].Injected > fw[j].Injected })
}
