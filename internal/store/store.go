// Package store archives exported posts and keeps a ledger of pipeline runs
// in a local SQLite database.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run kinds.
const (
	KindExport = "export"
	KindSpeak  = "speak"
)

type Store struct {
	db *sql.DB
}

type Post struct {
	ID         int64
	Account    string
	ExternalID string
	Text       string
	TextHash   string
	URL        string
	PostedAt   time.Time
	FetchedAt  time.Time
}

type PostInput struct {
	Account    string
	ExternalID string
	Text       string
	URL        string
	PostedAt   time.Time
	FetchedAt  time.Time
}

// RunCounts summarizes a finished run. Export runs only fill Total.
type RunCounts struct {
	Total     int
	Generated int
	Skipped   int
	Failed    int
	Bytes     int64
}

type Run struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress or if it crashed
	Counts     RunCounts
	Error      string // set by FailRun
}

// ItemRecord is the outcome of one item in a speak run.
type ItemRecord struct {
	Key    string
	File   string
	Status string
	Bytes  int
	Error  string
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// PRAGMAs are per connection; one connection keeps foreign keys on.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertPost archives a post, replacing any earlier copy of the same
// account and external id.
func (s *Store) InsertPost(ctx context.Context, in PostInput) (Post, error) {
	if s == nil || s.db == nil {
		return Post{}, errors.New("store is not initialized")
	}

	if strings.TrimSpace(in.Account) == "" {
		return Post{}, errors.New("account is required")
	}
	if strings.TrimSpace(in.ExternalID) == "" {
		return Post{}, errors.New("external_id is required")
	}
	if in.PostedAt.IsZero() {
		return Post{}, errors.New("posted_at is required")
	}
	if in.FetchedAt.IsZero() {
		return Post{}, errors.New("fetched_at is required")
	}

	var urlVal sql.NullString
	if u := strings.TrimSpace(in.URL); u != "" {
		urlVal = sql.NullString{String: u, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (account, external_id, text, text_hash, url, posted_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, external_id) DO UPDATE SET
			text = excluded.text,
			text_hash = excluded.text_hash,
			url = excluded.url,
			posted_at = excluded.posted_at,
			fetched_at = excluded.fetched_at
	`,
		in.Account,
		in.ExternalID,
		in.Text,
		textHash(in.Text),
		urlVal,
		formatTime(in.PostedAt),
		formatTime(in.FetchedAt),
	)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, account, external_id, text, text_hash, url, posted_at, fetched_at
		FROM posts
		WHERE account = ? AND external_id = ?
	`, in.Account, in.ExternalID)

	return scanPost(row)
}

// CountPosts returns the number of archived posts for account, or for all
// accounts when account is empty.
func (s *Store) CountPosts(ctx context.Context, account string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}

	query := "SELECT COUNT(*) FROM posts"
	var args []any
	if account != "" {
		query += " WHERE account = ?"
		args = append(args, account)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// LatestPosts returns up to limit archived posts for account, newest first.
func (s *Store) LatestPosts(ctx context.Context, account string, limit int) ([]Post, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, external_id, text, text_hash, url, posted_at, fetched_at
		FROM posts
		WHERE account = ?
		ORDER BY posted_at DESC, id DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("latest posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// StartRun opens a ledger entry for a run of the given kind.
func (s *Store) StartRun(ctx context.Context, kind string) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, errors.New("store is not initialized")
	}
	if kind != KindExport && kind != KindSpeak {
		return Run{}, fmt.Errorf("unknown run kind %q", kind)
	}

	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)",
		run.ID, run.Kind, formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// RecordItem appends an item outcome to a run.
func (s *Store) RecordItem(ctx context.Context, runID string, rec ItemRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if rec.Key == "" {
		return errors.New("item key is required")
	}

	var errVal sql.NullString
	if rec.Error != "" {
		errVal = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (run_id, item_key, file, status, bytes, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, rec.Key, rec.File, rec.Status, rec.Bytes, errVal, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record item: %w", err)
	}
	return nil
}

// ItemRecords returns the recorded outcomes of a run in insertion order.
func (s *Store) ItemRecords(ctx context.Context, runID string) ([]ItemRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_key, file, status, bytes, error
		FROM generations
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("item records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []ItemRecord
	for rows.Next() {
		var (
			rec    ItemRecord
			errVal sql.NullString
		)
		if err := rows.Scan(&rec.Key, &rec.File, &rec.Status, &rec.Bytes, &errVal); err != nil {
			return nil, fmt.Errorf("scan item record: %w", err)
		}
		rec.Error = errVal.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item records: %w", err)
	}
	return recs, nil
}

// FinishRun closes a run with its final counts.
func (s *Store) FinishRun(ctx context.Context, runID string, c RunCounts) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, total = ?, generated = ?, skipped = ?, failed = ?, bytes = ?
		WHERE id = ?
	`, formatTime(time.Now()), c.Total, c.Generated, c.Skipped, c.Failed, c.Bytes, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

// FailRun closes a run that stopped on an error and keeps the error text.
func (s *Store) FailRun(ctx context.Context, runID string, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, error = ? WHERE id = ?",
		formatTime(time.Now()), msg, runID,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fail run: run %s not found", runID)
	}
	return nil
}

// RecentRuns returns up to limit runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, started_at, finished_at, total, generated, skipped, failed, bytes, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// PruneRuns deletes runs started more than retainDays ago together with
// their item records. Returns the number of runs removed.
func (s *Store) PruneRuns(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(scanner rowScanner) (Post, error) {
	var (
		post                Post
		urlVal              sql.NullString
		postedAt, fetchedAt string
	)

	if err := scanner.Scan(
		&post.ID,
		&post.Account,
		&post.ExternalID,
		&post.Text,
		&post.TextHash,
		&urlVal,
		&postedAt,
		&fetchedAt,
	); err != nil {
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	post.URL = urlVal.String

	var err error
	post.PostedAt, err = parseTime(postedAt)
	if err != nil {
		return Post{}, fmt.Errorf("parse posted_at: %w", err)
	}
	post.FetchedAt, err = parseTime(fetchedAt)
	if err != nil {
		return Post{}, fmt.Errorf("parse fetched_at: %w", err)
	}
	return post, nil
}

func scanRun(scanner rowScanner) (Run, error) {
	var (
		run         Run
		startedAt   string
		finishedVal sql.NullString
		errVal      sql.NullString
	)

	if err := scanner.Scan(
		&run.ID,
		&run.Kind,
		&startedAt,
		&finishedVal,
		&run.Counts.Total,
		&run.Counts.Generated,
		&run.Counts.Skipped,
		&run.Counts.Failed,
		&run.Counts.Bytes,
		&errVal,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Error = errVal.String

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	run.FinishedAt, err = parseTime(finishedVal.String)
	if err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return run, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
