package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists ledger records. Append is called with the ledger lock held,
// so implementations need not serialize writers themselves.
type Store interface {
	Append(r Record) error
	Load() ([]Record, error)
	Close() error
}

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// JSONLStore appends one JSON record per line and fsyncs after each write.
type JSONLStore struct {
	path string
	file *os.File
}

// OpenJSONL opens (or creates) a JSONL ledger file for appending.
func OpenJSONL(path string) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &JSONLStore{path: path, file: file}, nil
}

// Path returns the file the store writes to.
func (s *JSONLStore) Path() string { return s.path }

func (s *JSONLStore) Append(r Record) error {
	if s.file == nil {
		return errors.New("audit: store closed")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	data = append(data, '\n')

	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("audit: stat: %w", err)
	}
	if _, err := s.file.Write(data); err != nil {
		return s.rollback(info.Size(), fmt.Errorf("audit: write: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return s.rollback(info.Size(), fmt.Errorf("audit: sync: %w", err))
	}
	return nil
}

// rollback cuts a failed write back to size so a retry of the same record
// does not leave a torn or duplicate line behind.
func (s *JSONLStore) rollback(size int64, cause error) error {
	if err := s.file.Truncate(size); err != nil {
		return fmt.Errorf("%w (truncate to %d: %v)", cause, size, err)
	}
	return cause
}

func (s *JSONLStore) Load() ([]Record, error) {
	return readJSONL(s.path)
}

func (s *JSONLStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// readJSONL parses a ledger file. A missing file is an empty ledger.
func readJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("audit: line %d: invalid JSON: %w", lineNum, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", path, err)
	}
	return records, nil
}
