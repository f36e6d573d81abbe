package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file inside a partition directory.
const FileName = "partition.db"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// PartitionDB stores the on-disk state of one storage partition: visited
// pages, persistent cookies and downloads. Wiping a partition removes the
// directory holding this file.
type PartitionDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures PartitionDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the partition database in dir.
func Open(dir string, opts Options) (*PartitionDB, error) {
	dbPath := filepath.Join(dir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, ErrNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create partition directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pdb := &PartitionDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := pdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return pdb, nil
}

// Close closes the database connection.
func (p *PartitionDB) Close() error {
	return p.db.Close()
}

// Path returns the database file path.
func (p *PartitionDB) Path() string {
	return p.dbPath
}

func (p *PartitionDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT,
		visited_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_visits_visited_at ON visits(visited_at);

	-- Only cookies with an expiry are stored; session cookies die with the process.
	CREATE TABLE IF NOT EXISTS cookies (
		domain TEXT NOT NULL,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		host_only INTEGER NOT NULL DEFAULT 0,
		secure INTEGER NOT NULL DEFAULT 0,
		http_only INTEGER NOT NULL DEFAULT 0,
		same_site INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (domain, path, name)
	);

	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT,
		state TEXT NOT NULL,
		received INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT -1,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	`
	_, err := p.db.ExecContext(context.Background(), schema)
	return err
}

// Visit is one page load.
type Visit struct {
	ID        int64
	URL       string
	Title     string
	VisitedAt time.Time
}

// RecordVisit stores a page load and returns its id.
func (p *PartitionDB) RecordVisit(ctx context.Context, rawURL, title string, at time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO visits (url, title, visited_at) VALUES (?, ?, ?)`,
		rawURL, title, at.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to record visit: %w", err)
	}
	return res.LastInsertId()
}

// RecentVisits returns up to limit visits, newest first.
func (p *PartitionDB) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, url, COALESCE(title, ''), visited_at FROM visits ORDER BY visited_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var v Visit
		var at int64
		if err := rows.Scan(&v.ID, &v.URL, &v.Title, &at); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		v.VisitedAt = time.Unix(0, at)
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// SaveCookies stores the cookies a response to u set. Cookies without an
// expiry are ignored and expired cookies delete their stored counterpart.
func (p *PartitionDB) SaveCookies(ctx context.Context, u *url.URL, cookies []*http.Cookie, now time.Time) error {
	for _, c := range cookies {
		domain, hostOnly := cookieDomain(u, c)
		path := c.Path
		if path == "" || !strings.HasPrefix(path, "/") {
			path = "/"
		}

		expires, persistent := cookieExpiry(c, now)
		if !persistent {
			continue
		}
		if !expires.After(now) {
			if _, err := p.db.ExecContext(ctx,
				`DELETE FROM cookies WHERE domain = ? AND path = ? AND name = ?`,
				domain, path, c.Name); err != nil {
				return fmt.Errorf("failed to delete cookie: %w", err)
			}
			continue
		}

		_, err := p.db.ExecContext(ctx, `
		INSERT INTO cookies (domain, path, name, value, host_only, secure, http_only, same_site, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, path, name) DO UPDATE SET
			value = excluded.value,
			host_only = excluded.host_only,
			secure = excluded.secure,
			http_only = excluded.http_only,
			same_site = excluded.same_site,
			expires_at = excluded.expires_at
		`, domain, path, c.Name, c.Value, hostOnly, c.Secure, c.HttpOnly, int(c.SameSite), expires.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save cookie: %w", err)
		}
	}
	return nil
}

// StoredCookie is a persisted cookie together with the URL it can be
// replayed against.
type StoredCookie struct {
	URL    *url.URL
	Cookie *http.Cookie
}

// LoadCookies returns all cookies that have not expired at now.
func (p *PartitionDB) LoadCookies(ctx context.Context, now time.Time) ([]StoredCookie, error) {
	rows, err := p.db.QueryContext(ctx, `
	SELECT domain, path, name, value, host_only, secure, http_only, same_site, expires_at
	FROM cookies WHERE expires_at > ? ORDER BY domain, path, name`, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	var out []StoredCookie
	for rows.Next() {
		var (
			domain, path, name, value  string
			hostOnly, secure, httpOnly bool
			sameSite                   int
			expiresAt                  int64
		)
		if err := rows.Scan(&domain, &path, &name, &value, &hostOnly, &secure, &httpOnly, &sameSite, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		scheme := "http"
		if secure {
			scheme = "https"
		}
		c := &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     path,
			Secure:   secure,
			HttpOnly: httpOnly,
			SameSite: http.SameSite(sameSite),
			Expires:  time.Unix(0, expiresAt),
		}
		if !hostOnly {
			c.Domain = domain
		}
		out = append(out, StoredCookie{
			URL:    &url.URL{Scheme: scheme, Host: domain, Path: path},
			Cookie: c,
		})
	}
	return out, rows.Err()
}

// cookieDomain returns the domain a cookie is stored under and whether it
// is host-only.
func cookieDomain(u *url.URL, c *http.Cookie) (string, bool) {
	if c.Domain == "" {
		return strings.ToLower(u.Hostname()), true
	}
	return strings.ToLower(strings.TrimPrefix(c.Domain, ".")), false
}

// cookieExpiry follows RFC 6265: Max-Age wins over Expires.
func cookieExpiry(c *http.Cookie, now time.Time) (time.Time, bool) {
	switch {
	case c.MaxAge < 0:
		return now, true
	case c.MaxAge > 0:
		return now.Add(time.Duration(c.MaxAge) * time.Second), true
	case !c.Expires.IsZero():
		return c.Expires, true
	default:
		return time.Time{}, false
	}
}

// Download is a stored download record.
type Download struct {
	ID         string
	URL        string
	Name       string
	Path       string
	State      string
	Received   int64
	Total      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// SaveDownload inserts or updates a download record.
func (p *PartitionDB) SaveDownload(ctx context.Context, d *Download) error {
	var finished any
	if !d.FinishedAt.IsZero() {
		finished = d.FinishedAt.UnixNano()
	}
	_, err := p.db.ExecContext(ctx, `
	INSERT INTO downloads (id, url, name, path, state, received, total, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		path = excluded.path,
		state = excluded.state,
		received = excluded.received,
		total = excluded.total,
		finished_at = excluded.finished_at
	`, d.ID, d.URL, d.Name, d.Path, d.State, d.Received, d.Total, d.StartedAt.UnixNano(), finished)
	if err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}
	return nil
}

// GetDownload returns one download by id.
func (p *PartitionDB) GetDownload(ctx context.Context, id string) (*Download, error) {
	row := p.db.QueryRowContext(ctx, `
	SELECT id, url, name, COALESCE(path, ''), state, received, total, started_at, finished_at
	FROM downloads WHERE id = ?`, id)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// Downloads returns all downloads, newest first.
func (p *PartitionDB) Downloads(ctx context.Context) ([]Download, error) {
	rows, err := p.db.QueryContext(ctx, `
	SELECT id, url, name, COALESCE(path, ''), state, received, total, started_at, finished_at
	FROM downloads ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDownload(s scanner) (*Download, error) {
	var (
		d        Download
		started  int64
		finished sql.NullInt64
	)
	if err := s.Scan(&d.ID, &d.URL, &d.Name, &d.Path, &d.State, &d.Received, &d.Total, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan download: %w", err)
	}
	d.StartedAt = time.Unix(0, started)
	if finished.Valid {
		d.FinishedAt = time.Unix(0, finished.Int64)
	}
	return &d, nil
}
