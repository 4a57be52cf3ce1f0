package adif

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// PersistenceError is returned by Append when a record could not be written
// after a retry.
type PersistenceError struct {
	Path string
	Call string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to append %s to %s: %v", e.Call, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is an append-only ADIF log file with an in-memory copy of its
// records.
type Store struct {
	path      string
	programID string

	mu      sync.Mutex
	records []Record
	calls   map[string]struct{}

	// openFile is swapped in tests to simulate write failures
	openFile func(name string, flag int, perm os.FileMode) (*os.File, error)
}

// Open loads the log at path. A missing file is not an error; it is created
// on the first Append.
func Open(path string) (*Store, error) {
	s := &Store{
		path:      path,
		programID: "ultron",
		calls:     make(map[string]struct{}),
		openFile:  os.OpenFile,
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to open contact log: %w", err)
	}
	defer f.Close()

	for _, r := range Parse(f) {
		s.add(r)
	}
	return s, nil
}

// Path returns the log file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) add(r Record) {
	r.Call = strings.ToUpper(strings.TrimSpace(r.Call))
	s.records = append(s.records, r)
	if r.Call != "" {
		s.calls[r.Call] = struct{}{}
	}
}

// Append writes one record and syncs the file. A failed write is retried
// once. The record is kept in memory even if both attempts fail.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Call = strings.ToUpper(strings.TrimSpace(r.Call))
	s.add(r)
	text := r.Encode()

	err := s.write(text)
	if err != nil {
		log.Printf("ADIF: append to %s failed, retrying: %v", s.path, err)
		err = s.write(text)
	}
	if err != nil {
		return &PersistenceError{Path: s.path, Call: r.Call, Err: err}
	}
	return nil
}

func (s *Store) write(text string) error {
	f, err := s.openFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err == nil && info.Size() == 0 {
		text = Header(s.programID, "1.0") + text
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Records returns a copy of all records in file order.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Calls returns the distinct upper-cased calls in the log.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for c := range s.calls {
		out = append(out, c)
	}
	return out
}

// Has reports whether call appears in the log.
func (s *Store) Has(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calls[strings.ToUpper(strings.TrimSpace(call))]
	return ok
}
