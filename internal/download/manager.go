package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/unseen/internal/database"
	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
)

const (
	// DefaultName is used when neither the response nor the URL names a file.
	DefaultName = "download"

	// progressStep is how many bytes pass between progress events.
	progressStep = 256 * 1024

	// maxMetadataScan caps how much of a file is read for EXIF.
	maxMetadataScan = 16 * 1024 * 1024

	partSuffix = ".part"
)

// ErrNoDirectory is returned when no downloads directory is configured.
var ErrNoDirectory = errors.New("no downloads directory configured")

// displayable are media types the page loader renders instead of saving.
var displayable = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/plain":            true,
}

// IsDownload reports whether resp should be saved rather than displayed.
func IsDownload(resp *http.Response) bool {
	if d := resp.Header.Get("Content-Disposition"); d != "" {
		if disp, _, err := mime.ParseMediaType(d); err == nil && disp == "attachment" {
			return true
		}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return !displayable[mediaType]
}

// Manager saves downloads to one directory.
type Manager struct {
	dir    string
	events event.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents sets the event publisher.
func WithEvents(pub event.Publisher) Option {
	return func(m *Manager) {
		if pub != nil {
			m.events = pub
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager saving into dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:    dir,
		events: event.Discard,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the downloads directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Save writes the body of resp to the downloads directory and closes it.
// db may be nil; persistent containers pass their partition database to
// keep a record. The returned event is also published. A cancelled context
// ends the download in the cancelled state; a read or write failure ends it
// interrupted. Partial files are removed in both cases.
func (m *Manager) Save(ctx context.Context, db *database.PartitionDB, resp *http.Response) (model.DownloadDone, error) {
	defer resp.Body.Close()

	if m.dir == "" {
		return model.DownloadDone{}, ErrNoDirectory
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return model.DownloadDone{}, fmt.Errorf("create downloads directory: %w", err)
	}

	rec := &database.Download{
		ID:        uuid.NewString(),
		URL:       requestURL(resp),
		Name:      FileName(resp),
		Total:     resp.ContentLength,
		StartedAt: m.now(),
	}
	if rec.Total < 0 {
		rec.Total = -1
	}

	f, finalPath, err := m.create(rec.Name)
	if err != nil {
		return model.DownloadDone{}, err
	}
	rec.Name = filepath.Base(finalPath)
	rec.Path = finalPath
	partPath := f.Name()

	m.progress(rec)
	m.logger.Debug("download started", slog.String("id", rec.ID), slog.String("name", rec.Name))

	copyErr := m.copy(ctx, f, resp.Body, rec)
	closeErr := f.Close()
	switch {
	case copyErr == nil && closeErr == nil:
		if err := os.Rename(partPath, finalPath); err != nil {
			copyErr = err
		}
	case copyErr == nil:
		copyErr = closeErr
	}

	done := model.DownloadDone{ID: rec.ID, Name: rec.Name, Path: finalPath}
	switch {
	case copyErr == nil:
		rec.State = model.DownloadCompleted
		done.Warnings = scanMetadata(finalPath)
	case ctx.Err() != nil:
		rec.State = model.DownloadCancelled
	default:
		rec.State = model.DownloadInterrupted
	}
	if copyErr != nil {
		_ = os.Remove(partPath) //nolint:errcheck // best effort
		done.Path = ""
		m.logger.Warn("download failed",
			slog.String("id", rec.ID),
			slog.String("state", rec.State),
			slog.String("error", copyErr.Error()))
	}
	rec.FinishedAt = m.now()
	done.State = rec.State

	if db != nil {
		if err := db.SaveDownload(ctx, rec); err != nil {
			m.logger.Warn("failed to record download", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
	}
	m.events.Publish(model.EventDownloadDone, done)
	return done, copyErr
}

// create opens a part file for name, choosing "name (n).ext" when the final
// name is taken.
func (m *Manager) create(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := range 1000 {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		final := filepath.Join(m.dir, candidate)
		if _, err := os.Stat(final); err == nil {
			continue
		}
		f, err := os.OpenFile(final+partSuffix, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create download file: %w", err)
		}
		return f, final, nil
	}
	return nil, "", fmt.Errorf("no free file name for %q", name)
}

func (m *Manager) copy(ctx context.Context, dst io.Writer, src io.Reader, rec *database.Download) error {
	buf := make([]byte, 32*1024)
	var sinceEvent int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			rec.Received += int64(n)
			sinceEvent += int64(n)
			if sinceEvent >= progressStep {
				sinceEvent = 0
				m.progress(rec)
			}
		}
		if errors.Is(readErr, io.EOF) {
			if sinceEvent > 0 {
				m.progress(rec)
			}
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (m *Manager) progress(rec *database.Download) {
	m.events.Publish(model.EventDownloadProgress, model.DownloadProgress{
		ID:       rec.ID,
		Name:     rec.Name,
		Received: rec.Received,
		Total:    rec.Total,
	})
}

// FileName picks a safe file name for resp: the Content-Disposition file
// name, then the last URL path segment, then DefaultName.
func FileName(resp *http.Response) string {
	if d := resp.Header.Get("Content-Disposition"); d != "" {
		if _, params, err := mime.ParseMediaType(d); err == nil {
			if name := sanitize(params["filename"]); name != "" {
				return name
			}
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if name := sanitize(path.Base(resp.Request.URL.Path)); name != "" {
			return name
		}
	}
	return DefaultName
}

// sanitize reduces name to a single path element without control characters.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		return strings.TrimLeft(name, "./")
	}
	return name
}

func requestURL(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	return resp.Request.URL.String()
}

func scanMetadata(p string) []string {
	if !HasMetadata(p) {
		return nil
	}
	f, err := os.Open(p) //nolint:gosec // path is inside the downloads directory
	if err != nil {
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxMetadataScan))
	if err != nil {
		return nil
	}
	return MetadataWarnings(data)
}
