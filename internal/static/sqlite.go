// SPDX-License-Identifier: MIT

package static

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const schema = `
CREATE TABLE IF NOT EXISTS static_profiles (
	user_id           TEXT PRIMARY KEY,
	registration_date INTEGER NOT NULL,
	gender            TEXT NOT NULL DEFAULT '',
	age_group         TEXT NOT NULL DEFAULT '',
	real_name         TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	phone_number      TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	source_channel    TEXT NOT NULL DEFAULT '',
	is_deleted        INTEGER NOT NULL DEFAULT 0,
	version           INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_static_email
	ON static_profiles(email) WHERE email != '' AND is_deleted = 0;
CREATE UNIQUE INDEX IF NOT EXISTS idx_static_phone
	ON static_profiles(phone_number) WHERE phone_number != '' AND is_deleted = 0;
CREATE INDEX IF NOT EXISTS idx_static_city ON static_profiles(city);
CREATE INDEX IF NOT EXISTS idx_static_channel ON static_profiles(source_channel);
CREATE INDEX IF NOT EXISTS idx_static_registration ON static_profiles(registration_date);
`

const selectCols = `user_id, registration_date, gender, age_group, real_name,
	email, phone_number, city, source_channel, is_deleted, version`

// SQLiteStore is the Store implementation on modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, enforcing WAL mode
// and bootstrapping the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema bootstrap failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetByID(ctx context.Context, userID string) (*Profile, error) {
	return s.getWhere(ctx, "user_id = ? AND is_deleted = 0", userID)
}

func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.getWhere(ctx, "email = ? AND is_deleted = 0", email)
}

func (s *SQLiteStore) GetByPhone(ctx context.Context, phone string) (*Profile, error) {
	return s.getWhere(ctx, "phone_number = ? AND is_deleted = 0", phone)
}

func (s *SQLiteStore) ExistsEmail(ctx context.Context, email string) (bool, error) {
	return s.existsWhere(ctx, "email = ? AND is_deleted = 0", email)
}

func (s *SQLiteStore) ExistsPhone(ctx context.Context, phone string) (bool, error) {
	return s.existsWhere(ctx, "phone_number = ? AND is_deleted = 0", phone)
}

func (s *SQLiteStore) Create(ctx context.Context, p *Profile) error {
	if p.UserID == "" {
		return fmt.Errorf("static: user_id must not be empty")
	}
	if p.RegistrationDate.IsZero() {
		p.RegistrationDate = time.Now().UTC()
	}
	p.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO static_profiles
			(user_id, registration_date, gender, age_group, real_name,
			 email, phone_number, city, source_channel, is_deleted, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1)`,
		p.UserID, p.RegistrationDate.UnixMilli(), string(p.Gender), string(p.AgeGroup),
		p.RealName, p.Email, p.PhoneNumber, p.City, p.SourceChannel)
	if err != nil {
		return mapConstraint(err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, p *Profile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE static_profiles SET
			gender = ?, age_group = ?, real_name = ?, email = ?,
			phone_number = ?, city = ?, source_channel = ?, version = version + 1
		WHERE user_id = ? AND version = ? AND is_deleted = 0`,
		string(p.Gender), string(p.AgeGroup), p.RealName, p.Email,
		p.PhoneNumber, p.City, p.SourceChannel, p.UserID, p.Version)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a stale version from a missing row.
		exists, err := s.existsWhere(ctx, "user_id = ? AND is_deleted = 0", p.UserID)
		if err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return ErrNotFound
	}
	p.Version++
	return nil
}

// allowed patch columns for PartialUpdate.
var patchColumns = map[string]string{
	"gender":         "gender",
	"age_group":      "age_group",
	"real_name":      "real_name",
	"email":          "email",
	"phone_number":   "phone_number",
	"city":           "city",
	"source_channel": "source_channel",
}

func (s *SQLiteStore) PartialUpdate(ctx context.Context, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for name, value := range fields {
		col, ok := patchColumns[name]
		if !ok {
			return fmt.Errorf("static: field %q is not patchable", name)
		}
		sets = append(sets, col+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "version = version + 1")
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE static_profiles SET "+strings.Join(sets, ", ")+" WHERE user_id = ? AND is_deleted = 0",
		args...)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, userID string) error {
	return s.setDeleted(ctx, userID, true)
}

func (s *SQLiteStore) Restore(ctx context.Context, userID string) error {
	return s.setDeleted(ctx, userID, false)
}

func (s *SQLiteStore) setDeleted(ctx context.Context, userID string, deleted bool) error {
	flag := 0
	if deleted {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE static_profiles SET is_deleted = ?, version = version + 1 WHERE user_id = ? AND is_deleted = ?",
		flag, userID, 1-flag)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListBySourceChannel(ctx context.Context, channel string) ([]*Profile, error) {
	return s.listWhere(ctx, "source_channel = ? AND is_deleted = 0", channel)
}

func (s *SQLiteStore) ListByCity(ctx context.Context, city string) ([]*Profile, error) {
	return s.listWhere(ctx, "city = ? AND is_deleted = 0", city)
}

func (s *SQLiteStore) ListByGender(ctx context.Context, gender Gender) ([]*Profile, error) {
	return s.listWhere(ctx, "gender = ? AND is_deleted = 0", string(gender))
}

func (s *SQLiteStore) ListNewUsers(ctx context.Context, days int) ([]*Profile, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return s.listWhere(ctx, "registration_date >= ? AND is_deleted = 0", cutoff.UnixMilli())
}

func (s *SQLiteStore) ListCompleteProfiles(ctx context.Context) ([]*Profile, error) {
	return s.listWhere(ctx, `real_name != '' AND email != '' AND phone_number != ''
		AND city != '' AND gender != '' AND age_group != '' AND is_deleted = 0`)
}

func (s *SQLiteStore) CountByRegistrationDateAfter(ctx context.Context, after time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM static_profiles WHERE registration_date > ? AND is_deleted = 0",
		after.UnixMilli()).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM static_profiles WHERE is_deleted = 0").Scan(&n)
	return n, err
}

func (s *SQLiteStore) getWhere(ctx context.Context, where string, args ...any) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectCols+" FROM static_profiles WHERE "+where, args...)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) existsWhere(ctx context.Context, where string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM static_profiles WHERE "+where+" LIMIT 1", args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) listWhere(ctx context.Context, where string, args ...any) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectCols+" FROM static_profiles WHERE "+where+" ORDER BY user_id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var (
		p       Profile
		regMs   int64
		deleted int
		gender  string
		age     string
	)
	err := row.Scan(&p.UserID, &regMs, &gender, &age, &p.RealName,
		&p.Email, &p.PhoneNumber, &p.City, &p.SourceChannel, &deleted, &p.Version)
	if err != nil {
		return nil, err
	}
	p.RegistrationDate = time.UnixMilli(regMs).UTC()
	p.Gender = Gender(gender)
	p.AgeGroup = AgeGroup(age)
	p.IsDeleted = deleted == 1
	return &p, nil
}

func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "idx_static_email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "idx_static_phone"):
		return ErrDuplicatePhone
	}
	return err
}
