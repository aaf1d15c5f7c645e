package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pub-viewer/bibtex"
	"pub-viewer/models"
)

// ErrNoStore is returned by History when persistence is not configured.
var ErrNoStore = errors.New("snapshot persistence is not configured")

// SnapshotStore persists accepted bibliographies.
type SnapshotStore interface {
	Save(ctx context.Context, snap *models.BibliographySnapshot) error
	Latest(ctx context.Context) (*models.BibliographySnapshot, error)
	List(ctx context.Context, limit int) ([]models.BibliographySnapshot, error)
}

// Archiver keeps copies of uploaded files.
type Archiver interface {
	Store(ctx context.Context, fileName string, data []byte) (string, error)
	Prune(ctx context.Context) (int, error)
}

// Snapshot is the publication set currently served. It is never modified
// after it has been published.
type Snapshot struct {
	Entries  []bibtex.Entry
	Source   string
	FileName string
	Checksum string
	LoadedAt time.Time
}

// Library holds the current publication set. Readers load the snapshot
// pointer without locking; replacements are serialized and swap the
// pointer only after the new set has been parsed and persisted.
type Library struct {
	MaxBytes int64
	Store    SnapshotStore
	Archive  Archiver
	Logger   *zap.Logger

	mu       sync.Mutex
	current  atomic.Pointer[Snapshot]
	fileSums map[string]string // last checksum seen per file path
	now      func() time.Time
}

// NewLibrary creates a library. store and archive may be nil.
func NewLibrary(maxBytes int64, store SnapshotStore, archive Archiver, logger *zap.Logger) *Library {
	return &Library{
		MaxBytes: maxBytes,
		Store:    store,
		Archive:  archive,
		Logger:   logger,
		fileSums: make(map[string]string),
		now:      time.Now,
	}
}

// Current returns the served snapshot, or false before the first load.
func (l *Library) Current() (*Snapshot, bool) {
	snap := l.current.Load()
	return snap, snap != nil
}

// LoadFile validates, parses and publishes a bibliography from disk.
func (l *Library) LoadFile(ctx context.Context, path string) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadFileLocked(ctx, path, false)
}

// ReloadIfChanged reloads the file when its content differs from the last
// version seen at path. A file never seen before while a set is already
// served (e.g. restored from the store) only records its checksum, so an
// upload is not overwritten by an unchanged mounted file. It reports
// whether a new snapshot was published.
func (l *Library) ReloadIfChanged(ctx context.Context, path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, err := l.loadFileLocked(ctx, path, true)
	if err != nil {
		return false, err
	}
	return snap != nil, nil
}

func (l *Library) loadFileLocked(ctx context.Context, path string, skipUnchanged bool) (*Snapshot, error) {
	content, err := ValidateBibFile(path, l.MaxBytes)
	if err != nil {
		return nil, err
	}
	sum := checksum([]byte(content))
	if skipUnchanged {
		prev, seen := l.fileSums[path]
		if (seen && prev == sum) || (!seen && l.current.Load() != nil) {
			l.fileSums[path] = sum
			l.Logger.Debug("Bibliography unchanged, skipping reload", zap.String("path", path))
			return nil, nil
		}
	}
	snap, err := l.publishLocked(ctx, models.SourceFile, filepath.Base(path), content, nil)
	if err != nil {
		return nil, err
	}
	l.fileSums[path] = sum
	return snap, nil
}

// Replace validates and parses an uploaded file and, on success, publishes
// it as the new publication set. On any error the served set is kept.
func (l *Library) Replace(ctx context.Context, fileName string, data []byte) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := ValidateBibContent(fileName, data, l.MaxBytes)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	snap, err := l.publishLocked(ctx, models.SourceUpload, filepath.Base(fileName), content, data)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	uploadsTotal.WithLabelValues("accepted").Inc()
	return snap, nil
}

// Restore publishes the latest persisted snapshot.
func (l *Library) Restore(ctx context.Context) (*Snapshot, error) {
	if l.Store == nil {
		return nil, ErrNoStore
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, err := l.Store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := parse(stored.Content)
	if err != nil {
		return nil, fmt.Errorf("stored snapshot %d: %w", stored.ID, err)
	}
	snap := &Snapshot{
		Entries:  entries,
		Source:   stored.Source,
		FileName: stored.FileName,
		Checksum: stored.Checksum,
		LoadedAt: l.now(),
	}
	l.swap(snap)
	l.Logger.Info("Restored bibliography snapshot",
		zap.Uint("snapshot_id", stored.ID),
		zap.String("file", stored.FileName),
		zap.Int("publications", len(entries)))
	return snap, nil
}

// History lists persisted snapshots, newest first.
func (l *Library) History(ctx context.Context, limit int) ([]models.BibliographySnapshot, error) {
	if l.Store == nil {
		return nil, ErrNoStore
	}
	return l.Store.List(ctx, limit)
}

// publishLocked parses content, archives raw uploads, persists the record
// and swaps the served snapshot. The archive is pruned only once the record
// is persisted. raw is nil for files loaded from disk.
func (l *Library) publishLocked(ctx context.Context, source, fileName, content string, raw []byte) (*Snapshot, error) {
	log := l.Logger.With(zap.String("source", source), zap.String("file", fileName))

	entries, err := parse(content)
	if err != nil {
		log.Warn("Bibliography rejected", zap.Error(err))
		return nil, err
	}

	snap := &Snapshot{
		Entries:  entries,
		Source:   source,
		FileName: fileName,
		Checksum: checksum([]byte(content)),
		LoadedAt: l.now(),
	}

	record := &models.BibliographySnapshot{
		Source:     source,
		FileName:   fileName,
		Checksum:   snap.Checksum,
		SizeBytes:  int64(len(content)),
		EntryCount: len(entries),
		Content:    content,
	}
	archived := false
	if raw != nil && l.Archive != nil {
		link, err := l.Archive.Store(ctx, fileName, raw)
		if err != nil {
			log.Warn("Archiving upload failed", zap.Error(err))
		} else {
			record.ArchiveURL = link
			archived = true
		}
	}
	if l.Store != nil {
		if err := l.Store.Save(ctx, record); err != nil {
			// older archive copies stay until an upload is persisted
			log.Error("Persisting bibliography failed", zap.String("archive_url", record.ArchiveURL), zap.Error(err))
			return nil, fmt.Errorf("persist bibliography: %w", err)
		}
	}
	if archived {
		if n, err := l.Archive.Prune(ctx); err != nil {
			log.Warn("Pruning upload archive failed", zap.Error(err))
		} else if n > 0 {
			log.Info("Pruned upload archive", zap.Int("deleted", n))
		}
	}

	l.swap(snap)
	log.Info("Publications loaded", zap.Int("publications", len(entries)), zap.String("checksum", snap.Checksum))
	return snap, nil
}

func (l *Library) swap(snap *Snapshot) {
	l.current.Store(snap)
	publicationsLoaded.Set(float64(len(snap.Entries)))
}

func parse(content string) ([]bibtex.Entry, error) {
	entries, err := bibtex.Parse(content)
	if err != nil {
		parsesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	parsesTotal.WithLabelValues("ok").Inc()
	return entries, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
