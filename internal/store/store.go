// Package store implements the flat-file record store backing every entity
// table. The whole store is one JSON document (one top-level key per table,
// the millo-database.json layout) kept in memory and flushed wholesale with
// an atomic rename on every mutation. A single writer lock serializes all
// mutating transactions, so read-check-write sequences inside Mutate are a
// critical section.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one row of a table, as decoded from the JSON document.
type Record map[string]any

// Schema maps a table name to the json field names its records may carry.
type Schema map[string][]string

type Store struct {
	mu      sync.RWMutex
	path    string
	tables  map[string][]Record
	schemas map[string]map[string]bool
	now     func() time.Time
}

// Open loads the document at path, creating it with empty declared tables if
// it does not exist yet. Tables present on disk but absent from the schema
// are preserved verbatim and stay inaccessible through the API.
func Open(path string, schema Schema) (*Store, error) {
	s := &Store{
		path:    path,
		tables:  make(map[string][]Record, len(schema)),
		schemas: make(map[string]map[string]bool, len(schema)),
		now:     time.Now,
	}
	for table, fields := range schema {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		s.schemas[table] = set
		s.tables[table] = nil
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.persist(s.tables); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	loaded := make(map[string][]Record)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("%w: corrupt store file %s: %v", ErrPersistence, path, err)
	}
	for table, recs := range loaded {
		s.tables[table] = recs
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string { return s.path }

// GetAll returns every record of a table in insertion order.
func (s *Store) GetAll(table string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.schemas[table]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	out := make([]Record, len(s.tables[table]))
	for i, r := range s.tables[table] {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

// GetByID returns the record with the given id or ErrNotFound.
func (s *Store) GetByID(table, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.schemas[table]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	for _, r := range s.tables[table] {
		if r["id"] == id {
			return cloneRecord(r), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
}

// Find returns all records matching the predicate, in insertion order.
func (s *Store) Find(table string, match func(Record) bool) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.schemas[table]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var out []Record
	for _, r := range s.tables[table] {
		if match(r) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

// FindBy returns all records whose fields equal every value in criteria.
func (s *Store) FindBy(table string, criteria map[string]any) ([]Record, error) {
	return s.Find(table, func(r Record) bool {
		for k, v := range criteria {
			if r[k] != v {
				return false
			}
		}
		return true
	})
}

// Count reports the number of records in a table.
func (s *Store) Count(table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.schemas[table]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return len(s.tables[table]), nil
}

// Create appends a record to a table in its own transaction.
func (s *Store) Create(table string, rec Record) (Record, error) {
	var out Record
	err := s.Mutate(func(tx *Tx) error {
		var err error
		out, err = tx.Create(table, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update merges patch into the record with the given id in its own transaction.
func (s *Store) Update(table, id string, patch Record) (Record, error) {
	var out Record
	err := s.Mutate(func(tx *Tx) error {
		var err error
		out, err = tx.Update(table, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record with the given id in its own transaction and
// returns it.
func (s *Store) Delete(table, id string) (Record, error) {
	var out Record
	err := s.Mutate(func(tx *Tx) error {
		var err error
		out, err = tx.Delete(table, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Mutate runs fn as an all-or-nothing transaction. Writes are staged on
// copies of the touched tables; when fn returns nil the whole document is
// flushed to disk and only then swapped into memory, so a failed persist
// leaves the store exactly as it was.
func (s *Store) Mutate(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s, staged: make(map[string][]Record)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.staged) == 0 {
		return nil
	}

	merged := make(map[string][]Record, len(s.tables))
	for table, recs := range s.tables {
		merged[table] = recs
	}
	for table, recs := range tx.staged {
		merged[table] = recs
	}
	if err := s.persist(merged); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.tables = merged
	return nil
}

// persist writes the full document next to the target file and renames it
// into place so a crash never leaves a partially written store.
func (s *Store) persist(tables map[string][]Record) error {
	data, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Tx is a staged view of the store inside Mutate. It is not safe for use
// outside the callback it was handed to.
type Tx struct {
	s      *Store
	staged map[string][]Record
}

func (tx *Tx) table(name string) ([]Record, error) {
	if _, ok := tx.s.schemas[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if recs, ok := tx.staged[name]; ok {
		return recs, nil
	}
	return tx.s.tables[name], nil
}

// writable returns a copy of the table that is safe to mutate and will be
// committed when the transaction succeeds.
func (tx *Tx) writable(name string) ([]Record, error) {
	if _, ok := tx.s.schemas[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if recs, ok := tx.staged[name]; ok {
		return recs, nil
	}
	base := tx.s.tables[name]
	cp := make([]Record, len(base))
	copy(cp, base)
	tx.staged[name] = cp
	return cp, nil
}

func (tx *Tx) checkFields(table string, rec Record) error {
	allowed := tx.s.schemas[table]
	for k := range rec {
		if !allowed[k] {
			return fmt.Errorf("%w: table %s has no field %q", ErrValidation, table, k)
		}
	}
	return nil
}

// GetAll returns the table contents as seen by this transaction.
func (tx *Tx) GetAll(table string) ([]Record, error) {
	recs, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

// GetByID returns the record with the given id as seen by this transaction.
func (tx *Tx) GetByID(table, id string) (Record, error) {
	recs, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r["id"] == id {
			return cloneRecord(r), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
}

// Find returns all records matching the predicate as seen by this transaction.
func (tx *Tx) Find(table string, match func(Record) bool) ([]Record, error) {
	recs, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range recs {
		if match(r) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

// Create stages a new record. A missing id gets
// {singularTable}-{unixMillis}-{randomSuffix}; a missing created_at gets the
// current time in RFC3339.
func (tx *Tx) Create(table string, rec Record) (Record, error) {
	recs, err := tx.writable(table)
	if err != nil {
		return nil, err
	}
	if err := tx.checkFields(table, rec); err != nil {
		return nil, err
	}
	stored, err := normalizeRecord(rec)
	if err != nil {
		return nil, err
	}
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = NewID(singularize(table), tx.s.now())
	}
	if ts, _ := stored["created_at"].(string); ts == "" {
		stored["created_at"] = tx.s.now().UTC().Format(time.RFC3339)
	}
	tx.staged[table] = append(recs, stored)
	return cloneRecord(stored), nil
}

// Update stages a field merge into an existing record. id and created_at are
// preserved even if the patch supplies different values.
func (tx *Tx) Update(table, id string, patch Record) (Record, error) {
	recs, err := tx.writable(table)
	if err != nil {
		return nil, err
	}
	if err := tx.checkFields(table, patch); err != nil {
		return nil, err
	}
	canonical, err := normalizeRecord(patch)
	if err != nil {
		return nil, err
	}
	for i, r := range recs {
		if r["id"] != id {
			continue
		}
		merged := cloneRecord(r)
		for k, v := range canonical {
			merged[k] = v
		}
		merged["id"] = r["id"]
		if ts, ok := r["created_at"]; ok {
			merged["created_at"] = ts
		}
		recs[i] = merged
		tx.staged[table] = recs
		return cloneRecord(merged), nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
}

// Delete stages removal of a record and returns the removed record.
func (tx *Tx) Delete(table, id string) (Record, error) {
	recs, err := tx.writable(table)
	if err != nil {
		return nil, err
	}
	for i, r := range recs {
		if r["id"] != id {
			continue
		}
		deleted := cloneRecord(r)
		tx.staged[table] = append(recs[:i:i], recs[i+1:]...)
		return deleted, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
}

// NewID builds a record id with overwhelming uniqueness probability.
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

func singularize(table string) string {
	return strings.TrimSuffix(table, "s")
}

// normalizeRecord round-trips a record through JSON so staged values carry
// the same dynamic types as values loaded from disk. Without this, typed
// newtypes and ints written by callers would compare unequal to their
// persisted form until a restart.
func normalizeRecord(r Record) (Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return out, nil
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneRecord(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}
