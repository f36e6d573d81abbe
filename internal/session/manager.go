package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/nao1215/unseen/internal/database"
	"github.com/nao1215/unseen/internal/model"
)

// PartitionDir returns the storage directory of a partition under root.
// Partition identifiers contain user-chosen names, so the directory name is
// a hash of the identifier.
func PartitionDir(root, partition string) string {
	sum := blake3.Sum256([]byte(partition))
	return filepath.Join(root, hex.EncodeToString(sum[:16]))
}

// Manager creates one Session per partition and owns their storage.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	root     string
	timeout  time.Duration
	logger   *slog.Logger
	onCreate []func(*Session)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRoot sets the directory holding partition storage. Without a root no
// session touches the disk.
func WithRoot(dir string) ManagerOption {
	return func(m *Manager) {
		m.root = dir
	}
}

// WithRequestTimeout sets the client timeout of every created session.
func WithRequestTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithManagerLogger sets the logger handed to sessions.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnCreate registers fn to run on every session the manager creates, before
// the session is handed out. Sessions that already exist are passed to fn
// immediately. fn runs with the manager locked and must not call back into it.
func (m *Manager) OnCreate(fn func(*Session)) {
	m.mu.Lock()
	m.onCreate = append(m.onCreate, fn)
	existing := m.sessionsLocked()
	m.mu.Unlock()

	for _, s := range existing {
		fn(s)
	}
}

// ForContainer returns the session of c, creating it on first use.
func (m *Manager) ForContainer(ctx context.Context, c model.Container) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[c.PartitionID]; ok {
		return s, nil
	}

	opts := []Option{WithTimeout(m.timeout), WithLogger(m.logger)}
	if m.root != "" {
		dir := PartitionDir(m.root, c.PartitionID)
		opts = append(opts, WithStorageDir(dir))
		if c.Persistent {
			db, err := database.Open(dir, database.DefaultOptions())
			if err != nil {
				return nil, fmt.Errorf("failed to open storage for %s: %w", c.PartitionID, err)
			}
			opts = append(opts, WithDatabase(ctx, db))
		}
	}

	s := New(c.PartitionID, c.Persistent, opts...)
	for _, fn := range m.onCreate {
		fn(s)
	}
	m.sessions[c.PartitionID] = s
	m.order = append(m.order, c.PartitionID)
	m.logger.Debug("session created", "partition", c.PartitionID, "persistent", c.Persistent)
	return s, nil
}

// Get returns the session of partition if it has been created.
func (m *Manager) Get(partition string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[partition]
	return s, ok
}

// Sessions returns all sessions in creation order.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionsLocked()
}

func (m *Manager) sessionsLocked() []*Session {
	out := make([]*Session, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.sessions[p])
	}
	return out
}

// ClearNonPersistent wipes the storage of every non-persistent session.
func (m *Manager) ClearNonPersistent() error {
	var errs []error
	for _, s := range m.Sessions() {
		if s.Persistent() {
			continue
		}
		s.ClearStorage()
		if dir := s.StorageDir(); dir != "" {
			if err := os.RemoveAll(dir); err != nil {
				errs = append(errs, fmt.Errorf("failed to wipe %s: %w", s.Partition(), err))
			}
		}
		m.logger.Debug("storage cleared", "partition", s.Partition())
	}
	return errors.Join(errs...)
}

// WipePartition removes the on-disk storage of a partition that has no live
// session, such as one left behind by an earlier run.
func (m *Manager) WipePartition(partition string) error {
	if m.root == "" {
		return nil
	}
	if _, ok := m.Get(partition); ok {
		return fmt.Errorf("partition %s is in use", partition)
	}
	return os.RemoveAll(PartitionDir(m.root, partition))
}

// Close releases the partition databases and idle connections.
func (m *Manager) Close() error {
	var errs []error
	for _, s := range m.Sessions() {
		s.ClearResolverCache()
		if db := s.Database(); db != nil {
			if err := db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
