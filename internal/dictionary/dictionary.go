// Package dictionary maintains the OpenJTalk user dictionary CSV that maps
// custom words to katakana readings.
//
// The dictionary serves two purposes: synthesis servers read the CSV to
// pronounce the words, and the language selector treats any listed word as
// a sign that a segment is Japanese.
package dictionary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MrWong99/yomiage/internal/language"
)

var (
	// ErrEmptyWord is returned by [Dictionary.Add] for a blank surface form.
	ErrEmptyWord = errors.New("dictionary: word must not be empty")

	// ErrInvalidReading is returned by [Dictionary.Add] when the reading is
	// not made only of katakana.
	ErrInvalidReading = errors.New("dictionary: reading must be katakana")
)

// Column layout of an OpenJTalk user dictionary row.
const (
	colSurface = 0
	colReading = 11
	minColumns = colReading + 1
)

// Entry is one word and its reading.
type Entry struct {
	Surface string
	Reading string
}

// Dictionary is a CSV-backed word list. It keeps the parsed rows in memory
// and rewrites the file atomically on every change. Safe for concurrent use.
type Dictionary struct {
	path string

	mu      sync.RWMutex
	rows    [][]string
	loadErr error
}

var _ language.DictionaryLookup = (*Dictionary)(nil)

// Open loads the dictionary at path. A missing file is treated as an empty
// dictionary and is created on the first [Dictionary.Add].
func Open(path string) (*Dictionary, error) {
	d := &Dictionary{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the CSV file backing d.
func (d *Dictionary) Path() string { return d.path }

// Err returns the error of the last failed reload, or nil.
func (d *Dictionary) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr
}

// Reload re-reads the CSV file. On failure the previously loaded rows stay
// active and the error is remembered for [Dictionary.ContainsSubstring].
func (d *Dictionary) Reload() error {
	rows, err := readRows(d.path)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadErr = err
	if err != nil {
		return err
	}
	d.rows = rows
	return nil
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dictionary: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dictionary: parse %q: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// ContainsSubstring reports whether any surface form occurs in normalized.
// Surfaces are fullwidth-normalised before comparison. When the last reload
// failed and nothing was loaded before, the load error is returned.
func (d *Dictionary) ContainsSubstring(_ context.Context, normalized string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.loadErr != nil && d.rows == nil {
		return false, d.loadErr
	}
	for _, row := range d.rows {
		if len(row) == 0 || row[colSurface] == "" {
			continue
		}
		if strings.Contains(normalized, language.Fullwidth(row[colSurface])) {
			return true, nil
		}
	}
	return false, nil
}

// Entries returns every row that carries a reading, in file order.
func (d *Dictionary) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, 0, len(d.rows))
	for _, row := range d.rows {
		if len(row) < minColumns {
			continue
		}
		out = append(out, Entry{Surface: row[colSurface], Reading: row[colReading]})
	}
	return out
}

// Len returns the number of rows, including rows without a reading.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

// Add registers word with the given katakana reading. The word is stored in
// fullwidth form; an existing row for the same surface is replaced.
func (d *Dictionary) Add(word, reading string) (Entry, error) {
	word = strings.TrimSpace(word)
	reading = strings.TrimSpace(reading)
	if word == "" {
		return Entry{}, ErrEmptyWord
	}
	if !IsKatakana(reading) {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidReading, reading)
	}
	surface := language.Fullwidth(word)
	row := newRow(surface, reading)

	d.mu.Lock()
	defer d.mu.Unlock()

	rows := make([][]string, 0, len(d.rows)+1)
	replaced := false
	for _, r := range d.rows {
		if len(r) > 0 && r[colSurface] == surface {
			if !replaced {
				rows = append(rows, row)
				replaced = true
			}
			continue
		}
		rows = append(rows, r)
	}
	if !replaced {
		rows = append(rows, row)
	}

	if err := writeRows(d.path, rows); err != nil {
		return Entry{}, err
	}
	d.rows = rows
	d.loadErr = nil
	return Entry{Surface: surface, Reading: reading}, nil
}

// newRow builds a proper-noun row with a flat accent.
func newRow(surface, reading string) []string {
	return []string{
		surface, "", "", "8609",
		"名詞", "固有名詞", "一般", "*", "*", "*",
		surface, reading, reading, "0/0", "*",
	}
}

func writeRows(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dict-*.csv")
	if err != nil {
		return fmt.Errorf("dictionary: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("dictionary: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dictionary: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("dictionary: replace %q: %w", path, err)
	}
	return nil
}

// IsKatakana reports whether s is non-empty and consists only of runes in
// the Katakana block (U+30A0 to U+30FF).
func IsKatakana(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x30A0 || r > 0x30FF {
			return false
		}
	}
	return true
}
