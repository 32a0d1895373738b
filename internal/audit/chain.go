package audit

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// ChainReport summarizes a verified journal.
type ChainReport struct {
	Entries  int             `json:"entries"`
	LastHash model.HashValue `json:"last_hash,omitempty"`
}

// VerifyChain re-hashes every entry and checks each prev_hash link. A
// missing journal verifies as empty. The first bad line fails with
// errclass.ErrJournalChainBroken naming its 1-based line number.
func VerifyChain(path string) (*ChainReport, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ChainReport{}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	report := &ChainReport{}
	scanner := newScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		var entry model.JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return report, errclass.ErrJournalChainBroken.WithMessagef("line %d: malformed entry: %v", line, err)
		}
		if entry.PrevHash != report.LastHash {
			return report, errclass.ErrJournalChainBroken.WithMessagef(
				"line %d: prev_hash %q does not match previous entry %q", line, entry.PrevHash, report.LastHash)
		}
		want, err := computeRecordHash(&entry)
		if err != nil {
			return report, fmt.Errorf("line %d: %w", line, err)
		}
		if want != entry.RecordHash {
			return report, errclass.ErrJournalChainBroken.WithMessagef("line %d: record_hash mismatch", line)
		}
		report.Entries++
		report.LastHash = entry.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("scan journal: %w", err)
	}
	return report, nil
}
