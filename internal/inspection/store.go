package inspection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = `id, inspection_id, tag_id, description, inspection_type, installation_code,
  robot_name, isar_id, raw_data_path, visualized_data_path, inspected_at, created_at`

// Store persists inspection records in SQLite.
//
// Exists followed by Create is a check-then-act sequence: two concurrent
// deliveries of the same inspection may both observe "missing". Create then
// fails for the loser on the UNIQUE constraint. CreateIfAbsent is the atomic
// alternative.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Exists reports whether a record exists for inspectionID.
func (s *Store) Exists(ctx context.Context, inspectionID string) (bool, error) {
	if inspectionID == "" {
		return false, fmt.Errorf("inspection id is empty")
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM inspection_record WHERE inspection_id = ?;`, inspectionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check inspection record: %w", err)
	}
	return true, nil
}

// Create inserts a record built from ev.
func (s *Store) Create(ctx context.Context, ev ResultEvent) (*Record, error) {
	rec, err := s.newRecord(ev)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO inspection_record(`+recordColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, recordArgs(rec)...); err != nil {
		return nil, fmt.Errorf("insert inspection record: %w", err)
	}
	return rec, nil
}

// CreateIfAbsent inserts a record unless one already exists for the same
// inspection. created is false when the insert was skipped.
func (s *Store) CreateIfAbsent(ctx context.Context, ev ResultEvent) (*Record, bool, error) {
	rec, err := s.newRecord(ev)
	if err != nil {
		return nil, false, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO inspection_record(`+recordColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(inspection_id) DO NOTHING;
`, recordArgs(rec)...)
	if err != nil {
		return nil, false, fmt.Errorf("insert inspection record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return rec, true, nil
}

// Get loads the record for inspectionID, or ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, inspectionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM inspection_record WHERE inspection_id = ?;`, inspectionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read inspection record: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM inspection_record ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query inspection records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inspection record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) newRecord(ev ResultEvent) (*Record, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &Record{
		ID:                 uuid.NewString(),
		InspectionID:       ev.InspectionID,
		TagID:              ev.TagID,
		Description:        ev.Description,
		InspectionType:     ev.InspectionType,
		InstallationCode:   ev.InstallationCode,
		RobotName:          ev.RobotName,
		ISARID:             ev.ISARID,
		RawDataPath:        ev.RawDataPath,
		VisualizedDataPath: ev.VisualizedDataPath,
		InspectedAt:        ev.Timestamp.UTC(),
		CreatedAt:          s.now().UTC(),
	}, nil
}

func recordArgs(r *Record) []any {
	var inspectedAt any
	if !r.InspectedAt.IsZero() {
		inspectedAt = r.InspectedAt.Format(timeLayout)
	}
	return []any{
		r.ID, r.InspectionID, r.TagID, r.Description,
		nullable(r.InspectionType), nullable(r.InstallationCode), nullable(r.RobotName), nullable(r.ISARID),
		nullable(r.RawDataPath), nullable(r.VisualizedDataPath),
		inspectedAt, r.CreatedAt.Format(timeLayout),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var inspectionType, installationCode, robotName, isarID sql.NullString
	var rawDataPath, visualizedDataPath, inspectedAt sql.NullString
	var createdAt string
	if err := row.Scan(
		&r.ID, &r.InspectionID, &r.TagID, &r.Description,
		&inspectionType, &installationCode, &robotName, &isarID,
		&rawDataPath, &visualizedDataPath, &inspectedAt, &createdAt,
	); err != nil {
		return nil, err
	}
	r.InspectionType = inspectionType.String
	r.InstallationCode = installationCode.String
	r.RobotName = robotName.String
	r.ISARID = isarID.String
	r.RawDataPath = rawDataPath.String
	r.VisualizedDataPath = visualizedDataPath.String
	if inspectedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, inspectedAt.String); err == nil {
			r.InspectedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}
