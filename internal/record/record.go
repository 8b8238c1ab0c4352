// Package record holds the immutable input set of a detection run.
package record

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrDuplicateRecordID is returned when two input records share an id.
	ErrDuplicateRecordID = errors.New("duplicate record id")

	// ErrEmptyRecordID is returned for a record without an id.
	ErrEmptyRecordID = errors.New("empty record id")
)

// ID is an opaque record identifier.
type ID string

// Record is one input text item.
type Record struct {
	ID   ID     `json:"id"`
	Text string `json:"text"`
	// Label is an optional answer/category carried alongside the text.
	// Members of one cluster whose labels disagree are reported as opposites.
	Label string `json:"label,omitempty"`
}

// DuplicateIDError names the repeated id and both positions it was seen at.
type DuplicateIDError struct {
	ID     ID
	First  int
	Second int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate record id %q at positions %d and %d", e.ID, e.First, e.Second)
}

func (e *DuplicateIDError) Is(target error) bool { return target == ErrDuplicateRecordID }

// Compare orders ids naturally. Two base-10 integers compare numerically,
// integers sort before any other id, and everything else compares bytewise.
// Numerically equal ids ("7" and "007") fall back to byte order so the
// ordering stays total.
func Compare(a, b ID) int {
	na, aok := parseInteger(string(a))
	nb, bok := parseInteger(string(b))
	switch {
	case aok && bok:
		if c := na.Cmp(nb); c != 0 {
			return c
		}
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(string(a), string(b))
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool { return Compare(a, b) < 0 }

func parseInteger(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	digits := s
	if s[0] == '-' || s[0] == '+' {
		digits = s[1:]
	}
	if digits == "" {
		return nil, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	return n, ok
}

// Store is the ordered, read-only record set of one run.
type Store struct {
	records []Record
	index   map[ID]int
}

// NewStore validates ids and keeps the input order.
func NewStore(records []Record) (*Store, error) {
	s := &Store{
		records: make([]Record, len(records)),
		index:   make(map[ID]int, len(records)),
	}
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record at position %d: %w", i, ErrEmptyRecordID)
		}
		if first, ok := s.index[r.ID]; ok {
			return nil, &DuplicateIDError{ID: r.ID, First: first, Second: i}
		}
		s.index[r.ID] = i
		s.records[i] = r
	}
	return s, nil
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// At returns the record at position i.
func (s *Store) At(i int) Record { return s.records[i] }

// Records returns a copy of the records in input order.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// IDs returns the ids in input order.
func (s *Store) IDs() []ID {
	ids := make([]ID, len(s.records))
	for i, r := range s.records {
		ids[i] = r.ID
	}
	return ids
}

// Texts returns the texts in input order.
func (s *Store) Texts() []string {
	texts := make([]string, len(s.records))
	for i, r := range s.records {
		texts[i] = r.Text
	}
	return texts
}

// IndexOf returns the position of id, or -1.
func (s *Store) IndexOf(id ID) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Contains reports whether id is part of the store.
func (s *Store) Contains(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the record with the given id.
func (s *Store) Get(id ID) (Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}
