// Package session synchronizes the in-memory table store with the remote
// research repository.
//
// A session pulls the authoritative document on open (or bootstraps a fresh
// store when none exists), serves reads and writes from memory, and persists
// on an explicit push. Every push first backs up the current remote document
// so a bad write never destroys the only copy.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/surgtrack/curator/internal/config"
	"github.com/surgtrack/curator/internal/remote"
	"github.com/surgtrack/curator/internal/tablestore"
	"github.com/surgtrack/curator/internal/uid"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("session is closed")
	// ErrNotRegistered is returned when the acting principal has no entry
	// in the USERS table.
	ErrNotRegistered = errors.New("principal is not a registered user")
	// ErrNotPrivileged is returned when an operation needs the admin role
	// and the acting principal does not have it.
	ErrNotPrivileged = errors.New("principal is not privileged")
)

// backupStamp is the timestamp layout embedded in backup names. Fixed width
// so lexicographic order is chronological order.
const backupStamp = "20060102T150405.000000000"

// Session is a live connection between an in-memory store and the remote
// document that backs it. At most one session per process is live; see
// Manager.
type Session struct {
	cfg     config.Config
	remote  remote.Store
	logger  *slog.Logger
	now     func() time.Time
	release func()

	mu     sync.Mutex
	store  *tablestore.Store
	actor  string
	closed bool
}

// open pulls the remote document into a fresh store, bootstrapping the
// default schema when the document does not exist yet.
func open(ctx context.Context, cfg config.Config, rem remote.Store, logger *slog.Logger, now func() time.Time) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		remote: rem,
		logger: logger.With(slog.String("component", "session"), slog.String("document", cfg.DocumentPath)),
		now:    now,
	}
	data, err := rem.Fetch(ctx, cfg.DocumentPath)
	switch {
	case err == nil:
		gen := uid.New(cfg.Principal.UID)
		st := tablestore.New(gen, cfg.Principal.UID)
		if err := st.Load(data); err != nil {
			return nil, fmt.Errorf("failed to load document %s: %w", cfg.DocumentPath, err)
		}
		s.store = st
		s.actor = cfg.Principal.UID
		if err := s.saveLocal(data); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "Pulled document", "tables", len(st.ListTables()))
	case errors.Is(err, remote.ErrNotExist):
		if err := s.bootstrap(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to pull document %s: %w", cfg.DocumentPath, err)
	}
	return s, nil
}

// bootstrap creates the default schema, registers the acting principal as
// its first user and pushes the result. Only an admin principal may create
// a store.
func (s *Session) bootstrap(ctx context.Context) error {
	p := s.cfg.Principal
	if tablestore.Fold(p.Role) != tablestore.RoleAdmin {
		return fmt.Errorf("bootstrapping %s requires the %s role: %w",
			s.cfg.DocumentPath, tablestore.RoleAdmin, ErrNotPrivileged)
	}
	if p.Name == "" {
		return errors.New("principal.name is required to bootstrap a new store")
	}
	gen := uid.New(p.UID)
	actor := p.UID
	if actor == "" {
		actor = gen.Generate()
	}
	st := tablestore.New(gen, actor)
	for _, def := range tablestore.DefaultSchema() {
		if err := st.AddTable(def.Name, def.ExtraColumns, actor); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.Name, err)
		}
	}
	res, err := st.AddItem(tablestore.TableUsers, p.Name, tablestore.ItemSpec{
		UID:   actor,
		Extra: map[string]any{tablestore.ColRole: tablestore.RoleAdmin},
		Actor: actor,
	})
	if err != nil {
		return fmt.Errorf("failed to register principal %s: %w", p.Name, err)
	}
	s.store = st
	s.actor = res.UID
	s.logger.InfoContext(ctx, "Bootstrapped new store", "principal", res.UID)
	return s.push(ctx)
}

// Actor returns the uid acting in this session. During a bootstrap of a
// principal without a configured uid this is the freshly generated one.
func (s *Session) Actor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// Pull replaces the in-memory store with the current remote document.
// Unpushed local changes are discarded.
func (s *Session) Pull(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	data, err := s.remote.Fetch(ctx, s.cfg.DocumentPath)
	if err != nil {
		return fmt.Errorf("failed to pull document %s: %w", s.cfg.DocumentPath, err)
	}
	if err := s.store.Load(data); err != nil {
		return fmt.Errorf("failed to load document %s: %w", s.cfg.DocumentPath, err)
	}
	if err := s.saveLocal(data); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Pulled document", "tables", len(s.store.ListTables()))
	return nil
}

// Push persists the in-memory store: the current remote document is backed
// up first, then the serialized store is saved locally and uploaded. A
// failed push removes the backup it just made and leaves the remote and the
// in-memory store as they were.
func (s *Session) Push(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.push(ctx)
}

func (s *Session) push(ctx context.Context) error {
	data, err := s.store.MarshalDocument()
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	backupName := ""
	current, err := s.remote.Fetch(ctx, s.cfg.DocumentPath)
	switch {
	case err == nil:
		backupName = s.backupName()
		if err := s.remote.Upload(ctx, backupName, current); err != nil {
			return fmt.Errorf("failed to back up document to %s: %w", backupName, err)
		}
	case errors.Is(err, remote.ErrNotExist):
		// First push, nothing to back up.
	default:
		return fmt.Errorf("failed to read current document %s: %w", s.cfg.DocumentPath, err)
	}

	if err := s.saveLocal(data); err != nil {
		s.discardBackup(ctx, backupName)
		return err
	}
	if err := s.remote.Upload(ctx, s.cfg.DocumentPath, data); err != nil {
		s.discardBackup(ctx, backupName)
		return fmt.Errorf("failed to push document %s: %w", s.cfg.DocumentPath, err)
	}
	s.logger.InfoContext(ctx, "Pushed document", "bytes", len(data), "backup", backupName)
	s.pruneBackups(ctx)
	return nil
}

func (s *Session) backupName() string {
	base := path.Base(s.cfg.DocumentPath)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return s.cfg.BackupPrefix + stem + "_" + s.now().UTC().Format(backupStamp) + ext
}

// discardBackup removes a backup made by a push that then failed, so failed
// pushes do not grow the backup set.
func (s *Session) discardBackup(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := s.remote.Delete(ctx, name); err != nil {
		s.logger.WarnContext(ctx, "Failed to remove backup of failed push", "backup", name, "err", err)
	}
}

// pruneBackups deletes the oldest backups beyond the retention cap. Pruning
// is best effort; a failure never fails the push that triggered it.
func (s *Session) pruneBackups(ctx context.Context) {
	if s.cfg.BackupRetention <= 0 {
		return
	}
	names, err := s.remote.List(ctx, s.cfg.BackupPrefix)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to list backups for pruning", "err", err)
		return
	}
	if len(names) <= s.cfg.BackupRetention {
		return
	}
	for _, name := range names[:len(names)-s.cfg.BackupRetention] {
		if err := s.remote.Delete(ctx, name); err != nil {
			s.logger.WarnContext(ctx, "Failed to prune backup", "backup", name, "err", err)
			continue
		}
		s.logger.InfoContext(ctx, "Pruned backup", "backup", name)
	}
}

func (s *Session) saveLocal(data []byte) error {
	if err := os.MkdirAll(s.cfg.LocalCacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create local cache directory: %w", err)
	}
	p := s.localPath()
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save local copy %s: %w", p, err)
	}
	return nil
}

func (s *Session) localPath() string {
	return filepath.Join(s.cfg.LocalCacheDir, path.Base(s.cfg.DocumentPath))
}

// AddTable creates a new table. Requires the admin role.
func (s *Session) AddTable(name string, extraColumns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.store.IsPrivilegedUser(s.actor) {
		return fmt.Errorf("creating table %s: %w", tablestore.Fold(name), ErrNotPrivileged)
	}
	return s.store.AddTable(name, extraColumns, s.actor)
}

// AddItem appends an item to a table on behalf of the session principal.
// Requires a registered principal.
func (s *Session) AddItem(table, name string, extra map[string]any) (tablestore.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tablestore.InsertResult{}, ErrClosed
	}
	if !s.store.IsRegisteredUser(s.actor) {
		return tablestore.InsertResult{}, fmt.Errorf("inserting into %s: %w", tablestore.Fold(table), ErrNotRegistered)
	}
	return s.store.AddItem(table, name, tablestore.ItemSpec{Extra: extra, Actor: s.actor})
}

// ItemExists reports whether the table holds an item with that name. A
// closed session holds nothing.
func (s *Session) ItemExists(table, item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.store.ItemExists(table, item)
}

// GetUID returns the uid of the named item.
func (s *Session) GetUID(table, item string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.store.GetUID(table, item)
}

// GetName returns the stored name of the item with the given uid.
func (s *Session) GetName(table, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.store.GetName(table, id)
}

// GetItem returns a copy of the named item.
func (s *Session) GetItem(table, item string) (*tablestore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.store.GetItem(table, item)
}

// ListTables returns all table names, sorted.
func (s *Session) ListTables() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.store.ListTables(), nil
}

// ListItems returns the item names of a table in insertion order.
func (s *Session) ListItems(table string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.store.ListItems(table)
}

// ExtraColumns returns the declared extra columns of a table.
func (s *Session) ExtraColumns(table string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.store.ExtraColumns(table)
}

// Close ends the session and removes the local cached copy. Unpushed
// changes are lost. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	release := s.release
	p := s.localPath()
	s.mu.Unlock()

	if release != nil {
		release()
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove local copy %s: %w", p, err)
	}
	s.logger.Info("Closed session")
	return nil
}

// markClosed invalidates the session without touching the local copy or the
// manager; used when a newer session supersedes this one.
func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
