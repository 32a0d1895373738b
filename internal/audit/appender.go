// Package audit keeps the local submission journal: an append-only JSONL
// file where every entry carries the hash of the one before it.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/jsonutil"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// maxLineBytes bounds one journal line; details maps are small.
const maxLineBytes = 1 << 20

// FileAppender appends journal entries to a JSONL file with a hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileAppender creates a FileAppender. The file is created on first
// append.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, now: time.Now}
}

// Path returns the journal file path.
func (a *FileAppender) Path() string {
	return a.path
}

// Append adds one entry. The file is locked exclusively for the
// read-last-hash, write, fsync sequence so separate processes sharing a
// journal keep a single chain.
func (a *FileAppender) Append(eventType model.JournalEventType, fingerprint, txID, network string, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last entry hash: %w", err)
	}

	entry := &model.JournalEntry{
		Timestamp:     a.now().UTC(),
		EventType:     eventType,
		Fingerprint:   fingerprint,
		TransactionID: txID,
		NetworkTag:    network,
		Details:       details,
		PrevHash:      prevHash,
	}
	entry.RecordHash, err = computeRecordHash(entry)
	if err != nil {
		return fmt.Errorf("compute entry hash: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// LastRecordHash returns the hash of the newest entry, or "" for an empty
// or missing journal.
func (a *FileAppender) LastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	return lastRecordHash(file)
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var last model.HashValue
	scanner := newScanner(file)
	for scanner.Scan() {
		var entry model.JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // VerifyChain reports malformed lines
		}
		last = entry.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan journal: %w", err)
	}
	return last, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return s
}

func computeRecordHash(entry *model.JournalEntry) (model.HashValue, error) {
	unsealed := *entry
	unsealed.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&unsealed)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:])), nil
}
