// Package timeseries writes raw inspection values to TimescaleDB.
package timeseries

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Open connects to PostgreSQL/TimescaleDB through the pgx database/sql driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("timeseries dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open timeseries db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping timeseries db: %w", err)
	}
	return db, nil
}

// Forwarder inserts one row per measured value. Redelivered values hit the
// (inspection_id, channel, ts) key and are skipped.
type Forwarder struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewForwarder(db *sql.DB, table string) (*Forwarder, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid timeseries table name %q", table)
	}
	return &Forwarder{db: db, table: table, now: time.Now}, nil
}

// EnsureTable creates the value table if it is missing.
func (f *Forwarder) EnsureTable(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + f.table + ` (
  inspection_id     TEXT NOT NULL,
  tag_id            TEXT,
  installation_code TEXT,
  channel           TEXT NOT NULL,
  ts                TIMESTAMPTZ NOT NULL,
  value             DOUBLE PRECISION NOT NULL,
  unit              TEXT,
  PRIMARY KEY (inspection_id, channel, ts)
)`
	if _, err := f.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", f.table, err)
	}
	return nil
}

// Forward writes every value of ev in one statement.
func (f *Forwarder) Forward(ctx context.Context, ev inspection.ValueEvent) error {
	if len(ev.Values) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(f.table)
	b.WriteString(" (inspection_id, tag_id, installation_code, channel, ts, value, unit) VALUES ")

	received := f.now().UTC()
	args := make([]any, 0, len(ev.Values)*7)
	for i, v := range ev.Values {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)

		ts := v.Timestamp
		if ts.IsZero() {
			ts = received
		}
		args = append(args,
			ev.InspectionID,
			nullable(ev.TagID),
			nullable(ev.InstallationCode),
			v.Channel,
			ts,
			v.Value,
			nullable(v.Unit),
		)
	}
	b.WriteString(" ON CONFLICT (inspection_id, channel, ts) DO NOTHING")

	if _, err := f.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert %d values for %s: %w", len(ev.Values), ev.InspectionID, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
