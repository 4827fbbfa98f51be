// Package userstore persists user accounts as a keyed JSON record file and
// performs credential verification against their bcrypt digests.
package userstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

var (
	// ErrInvalidCredentials is returned for any failed authentication outcome.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateUser is returned when inserting a username that already exists.
	ErrDuplicateUser = errors.New("user already exists")
)

// Record is a single user account. Password is nil for anonymous-eligible
// accounts and a bcrypt digest otherwise.
type Record struct {
	Username string  `json:"username"`
	Password *string `json:"password"`
	Home     string  `json:"home"`
}

// Store is a keyed record store backed by a single JSON document.
// Reads at runtime vastly outnumber writes; a RWMutex guards the index.
type Store struct {
	fs      afero.Fs
	path    string
	mu      sync.RWMutex
	records map[string]Record
}

// Open loads the record file, creating an empty store if the file is absent.
func Open(fs afero.Fs, path string) (*Store, error) {
	store := &Store{
		fs:      fs,
		path:    path,
		records: make(map[string]Record),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}

		return nil, fmt.Errorf("could not read user store %q: %w", path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("could not parse user store %q: %w", path, err)
	}

	for _, record := range records {
		store.records[record.Username] = record
	}

	return store, nil
}

// Lookup returns the record for a username, if any.
func (s *Store) Lookup(username string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, found := s.records[username]

	return record, found
}

// Exists reports whether a username is present.
func (s *Store) Exists(username string) bool {
	_, found := s.Lookup(username)

	return found
}

// Insert adds a new record and persists the store.
func (s *Store) Insert(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.records[record.Username]; found {
		return fmt.Errorf("%w: %q", ErrDuplicateUser, record.Username)
	}

	s.records[record.Username] = record

	return s.save()
}

// save rewrites the whole document. Callers hold the write lock.
func (s *Store) save() error {
	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode user store: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.path, data, 0600); err != nil {
		return fmt.Errorf("could not write user store %q: %w", s.path, err)
	}

	return nil
}

// Bootstrap applies the default-account rule: an "anonymous" record with no
// digest and home <root>/anonymous is inserted iff absent.
func (s *Store) Bootstrap(rootDir string) error {
	if s.Exists("anonymous") {
		return nil
	}

	return s.Insert(Record{
		Username: "anonymous",
		Password: nil,
		Home:     filepath.Join(rootDir, "anonymous"),
	})
}

// Authenticate checks the provided password against a record. An account
// without a digest requires allowAnonymous; an account with one requires a
// bcrypt match. Every other outcome is ErrInvalidCredentials.
func (s *Store) Authenticate(username, password string, allowAnonymous bool) (Record, error) {
	record, found := s.Lookup(username)
	if !found {
		return Record{}, ErrInvalidCredentials
	}

	if record.Password == nil {
		if !allowAnonymous {
			return Record{}, ErrInvalidCredentials
		}

		return record, nil
	}

	if !CheckPassword(password, *record.Password) {
		return Record{}, ErrInvalidCredentials
	}

	return record, nil
}
