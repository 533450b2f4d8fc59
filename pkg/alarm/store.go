package alarm

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database the alarm engine reads rule
// configuration from and writes log rows to (§4.7, §6).
type Store struct {
	db *sql.DB
}

// OpenStore opens the SQLite database at path (a DSN understood by
// modernc.org/sqlite, typically a filesystem path).
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("alarm: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// LoadRules reads t_alarm_rules joined with t_points, keeps only rows
// with enable=1, and groups the result by point_id with each point's
// rules sorted by LessByPriority (§4.7's "Rule loading" step).
func (s *Store) LoadRules(ctx context.Context) (map[int64][]Rule, error) {
	const query = `
		SELECT r.id, r.name, r.point_id, p.name, r.method, r.threshold,
		       r.param1, r.param2, r.param3
		FROM t_alarm_rules r
		JOIN t_points p ON p.id = r.point_id
		WHERE r.enable = 1
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("alarm: load rules: %w", err)
	}
	defer rows.Close()

	byPoint := make(map[int64][]Rule)
	for rows.Next() {
		var r Rule
		r.Enabled = true
		if err := rows.Scan(&r.ID, &r.Name, &r.PointID, &r.PointName, &r.Method,
			&r.Threshold, &r.Param1, &r.Param2, &r.Param3); err != nil {
			return nil, fmt.Errorf("alarm: scan rule row: %w", err)
		}
		byPoint[r.PointID] = append(byPoint[r.PointID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alarm: iterate rule rows: %w", err)
	}

	for pointID, rules := range byPoint {
		sort.Slice(rules, func(i, j int) bool { return LessByPriority(rules[i], rules[j]) })
		byPoint[pointID] = rules
	}
	return byPoint, nil
}

// LogEvent is one row written to t_alarm_log (§4.7).
type LogEvent struct {
	RuleID      int64
	PointID     int64
	PointName   string
	EventType   int // 1 = trigger, 2 = clear
	Value       float64
	Threshold   float64
	Message     string
	AckStatus   int
	StartTimeMs int64
	EndTimeMs   int64
}

// InsertLogEvent writes one event to t_alarm_log within its own
// transaction, per §4.7's "one row per event within a transaction".
func (s *Store) InsertLogEvent(ctx context.Context, ev LogEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("alarm: begin log tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO t_alarm_log
			(rule_id, point_id, point_name, event_type, value, threshold,
			 message, ack_status, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insert, ev.RuleID, ev.PointID, ev.PointName,
		ev.EventType, ev.Value, ev.Threshold, ev.Message, ev.AckStatus,
		ev.StartTimeMs, ev.EndTimeMs); err != nil {
		return fmt.Errorf("alarm: insert log row: %w", err)
	}
	return tx.Commit()
}
