package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/soaringjerry/Spotcheck/internal/services"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB, logger zerolog.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger.With().Str("component", "sqlite_store").Logger()}, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- Users ---

func (s *SQLiteStore) AddUser(ctx context.Context, u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, formatTime(created))
	if isUniqueViolation(err) {
		return services.NewConflictError("email exists")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email, pass_hash, created_at FROM users WHERE email = ?`, email)
	var u services.User
	var created string
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// --- Images ---

func (s *SQLiteStore) AddImage(ctx context.Context, img *services.Image) error {
	if img == nil {
		return errors.New("nil image")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO images (id, user_id, content_type, sha256, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.UserID, img.ContentType, img.SHA256, img.Data, formatTime(img.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetImage(ctx context.Context, id string) (*services.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, content_type, sha256, data, created_at FROM images WHERE id = ?`, id)
	var img services.Image
	var created string
	if err := row.Scan(&img.ID, &img.UserID, &img.ContentType, &img.SHA256, &img.Data, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	img.CreatedAt = parseTime(created)
	return &img, nil
}

func (s *SQLiteStore) DeleteImage(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Assessments ---

func (s *SQLiteStore) AddAssessment(ctx context.Context, rec *services.AssessmentRecord) error {
	if rec == nil {
		return errors.New("nil assessment")
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	var preds sql.NullString
	if rec.Predictions != nil {
		b, err := json.Marshal(rec.Predictions)
		if err != nil {
			return fmt.Errorf("encode predictions: %w", err)
		}
		preds = sql.NullString{String: string(b), Valid: true}
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var imageID sql.NullString
	if rec.ImageID != "" {
		imageID = sql.NullString{String: rec.ImageID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments (id, user_id, image_id, answers, predictions, result, likelihood, score, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, imageID, string(answers), preds, string(result),
		string(rec.Result.Likelihood), rec.Result.Score, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

const assessmentColumns = `id, user_id, image_id, answers, predictions, result, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanAssessment(row rowScanner) (*services.AssessmentRecord, error) {
	var rec services.AssessmentRecord
	var imageID, preds sql.NullString
	var answers, result, created string
	if err := row.Scan(&rec.ID, &rec.UserID, &imageID, &answers, &preds, &result, &created); err != nil {
		return nil, err
	}
	rec.ImageID = imageID.String
	rec.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", rec.ID, err)
	}
	if rec.Result.Reasons == nil {
		rec.Result.Reasons = []string{}
	}
	if preds.Valid && strings.TrimSpace(preds.String) != "" {
		if err := json.Unmarshal([]byte(preds.String), &rec.Predictions); err != nil {
			// the stored result is still authoritative
			s.logger.Warn().Err(err).Str("assessment_id", rec.ID).Msg("decode predictions")
			rec.Predictions = nil
		}
	}
	return &rec, nil
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*services.AssessmentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id)
	rec, err := s.scanAssessment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return rec, nil
}

// ListAssessmentsByUser returns newest first; limit <= 0 returns everything.
func (s *SQLiteStore) ListAssessmentsByUser(ctx context.Context, userID string, limit int) ([]*services.AssessmentRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assessmentColumns+` FROM assessments
      WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("ListAssessmentsByUser: rows.Close")
		}
	}()
	out := []*services.AssessmentRecord{}
	for rows.Next() {
		rec, err := s.scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteAssessment(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete assessment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var (
	_ services.AuthStore       = (*SQLiteStore)(nil)
	_ services.AssessmentStore = (*SQLiteStore)(nil)
)
