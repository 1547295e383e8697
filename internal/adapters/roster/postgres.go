package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	_ "github.com/lib/pq" // postgres driver

	"github.com/okian/vitalstream/internal/domain/model"
)

const activeSubjectsQuery = `SELECT patient_id, name, diagnosed_conditions, vitals_history
FROM patients
WHERE is_active = TRUE
ORDER BY patient_id`

// pgRecord mirrors a vitals_history JSONB element. Fields are decoded loosely
// so a value of the wrong type zeroes that field instead of failing the row.
type pgRecord struct {
	HeartRate     any `json:"heart_rate"`
	BloodPressure any `json:"blood_pressure"`
	Temperature   any `json:"temperature"`
	SpO2          any `json:"spo2"`
	Timestamp     any `json:"timestamp"`
}

func (r pgRecord) toModel() model.VitalsRecord {
	bp, _ := r.BloodPressure.(string)
	ts, _ := r.Timestamp.(string)
	return model.VitalsRecord{
		HeartRate:     int(math.Round(jsonNumber(r.HeartRate))),
		BloodPressure: bp,
		Temperature:   jsonNumber(r.Temperature),
		SpO2:          jsonNumber(r.SpO2),
		Timestamp:     parseTimestamp(ts),
	}
}

// jsonNumber returns v when it decoded as a JSON number and 0 otherwise.
func jsonNumber(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}

// PostgresSource reads subjects from a patients table with JSONB condition and history columns.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source over db. The caller owns db.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return db, nil
}

// ListActiveSubjects returns active subjects ordered by id.
func (p *PostgresSource) ListActiveSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := p.db.QueryContext(ctx, activeSubjectsQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var subjects []model.Subject
	for rows.Next() {
		var (
			id               string
			name             sql.NullString
			conditions, hist []byte
		)
		if err := rows.Scan(&id, &name, &conditions, &hist); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrDecode, err)
		}
		subj := model.Subject{ID: id, Name: name.String, Active: true}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &subj.Conditions); err != nil {
				return nil, fmt.Errorf("%w: %s conditions: %w", ErrDecode, id, err)
			}
		}
		if len(hist) > 0 {
			var elems []json.RawMessage
			if err := json.Unmarshal(hist, &elems); err != nil {
				return nil, fmt.Errorf("%w: %s history: %w", ErrDecode, id, err)
			}
			for _, raw := range elems {
				var r pgRecord
				if err := json.Unmarshal(raw, &r); err != nil {
					continue
				}
				subj.History = append(subj.History, r.toModel())
			}
		}
		subjects = append(subjects, subj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return subjects, nil
}

// Ping checks the database connection.
func (p *PostgresSource) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
