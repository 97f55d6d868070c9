package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
	"github.com/gyeh/pricepanel/internal/output"
	"github.com/gyeh/pricepanel/internal/parquetread"
)

const (
	doneLogFile        = "done.log"
	partialsDir        = "partials"
	hospitalsCacheFile = "hospitals.parquet"
)

// ProgressStore is the durable state of a remote extraction: an append-only
// log of completed entity ids, one partial Parquet file per completed entity
// with rows, and a cached hospital list.
//
// An entity is appended to the log only after its partial file is fully
// written and renamed into place, so a crash at any point leaves either no
// record (the entity is redone) or a record with its complete file.
type ProgressStore struct {
	dir string

	mu    sync.Mutex
	done  map[string]bool
	order []string
	log   *os.File
}

// OpenStore loads or initializes the state directory.
func OpenStore(dir string) (*ProgressStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, partialsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &ProgressStore{dir: dir, done: make(map[string]bool)}

	path := filepath.Join(dir, doneLogFile)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read progress record: %w", err)
	}
	complete := string(data)
	if i := strings.LastIndexByte(complete, '\n'); i < len(complete)-1 {
		// A torn final line has no newline; it was never acknowledged.
		complete = complete[:i+1]
	}
	sc := bufio.NewScanner(strings.NewReader(complete))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		id := sc.Text()
		if id == "" || s.done[id] {
			continue
		}
		s.done[id] = true
		s.order = append(s.order, id)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open progress record: %w", err)
	}
	// Drop any torn tail so the next append starts on a fresh line.
	if err := f.Truncate(int64(len(complete))); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate progress record: %w", err)
	}
	if _, err := f.Seek(int64(len(complete)), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek progress record: %w", err)
	}
	s.log = f
	return s, nil
}

// Dir returns the state directory.
func (s *ProgressStore) Dir() string { return s.dir }

// IsDone reports whether id has been fully extracted.
func (s *ProgressStore) IsDone(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done[id]
}

// Done returns the completed ids in completion order.
func (s *ProgressStore) Done() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// MarkDone durably appends id to the progress record.
func (s *ProgressStore) MarkDone(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("entity id %q cannot be recorded", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done[id] {
		return nil
	}
	if _, err := s.log.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("append progress record: %w", err)
	}
	if err := s.log.Sync(); err != nil {
		return fmt.Errorf("sync progress record: %w", err)
	}
	s.done[id] = true
	s.order = append(s.order, id)
	return nil
}

// PartialPath returns the partial result file for an entity.
func (s *ProgressStore) PartialPath(id string) string {
	return filepath.Join(s.dir, partialsDir, normalize.EntityFileKey(id)+".parquet")
}

// WritePartial atomically writes an entity's rows.
func (s *ProgressStore) WritePartial(id string, rows []model.RawChargeRow) error {
	if err := output.WriteParquet(s.PartialPath(id), rows); err != nil {
		return fmt.Errorf("write partial for %s: %w", id, err)
	}
	return nil
}

// RemovePartial deletes an entity's partial file, if any, so an entity that
// finishes with zero rows never reassembles rows from an earlier attempt.
func (s *ProgressStore) RemovePartial(id string) error {
	path := s.PartialPath(id)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove partial for %s: %w", id, err)
	}
	return output.SyncDir(filepath.Dir(path))
}

// ReadPartial reads an entity's rows. A missing file means the entity
// finished with zero rows.
func (s *ProgressStore) ReadPartial(id string) ([]model.RawChargeRow, error) {
	path := s.PartialPath(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquetread.ReadAll[model.RawChargeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read partial for %s: %w", id, err)
	}
	return rows, nil
}

// SaveHospitals caches the hospital list.
func (s *ProgressStore) SaveHospitals(hospitals []model.Hospital) error {
	return output.WriteParquet(filepath.Join(s.dir, hospitalsCacheFile), hospitals)
}

// LoadHospitals returns the cached hospital list, or ok=false when none is cached.
func (s *ProgressStore) LoadHospitals() (hospitals []model.Hospital, ok bool, err error) {
	path := filepath.Join(s.dir, hospitalsCacheFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	hospitals, err = parquetread.ReadAll[model.Hospital](path)
	if err != nil {
		return nil, false, fmt.Errorf("read hospital cache: %w", err)
	}
	return hospitals, true, nil
}

// Close releases the progress record.
func (s *ProgressStore) Close() error {
	return s.log.Close()
}
