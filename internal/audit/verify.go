package audit

import "fmt"

// VerifyResult holds the outcome of chain verification.
type VerifyResult struct {
	Valid       bool   `json:"valid"`
	Records     int    `json:"records"`
	Error       string `json:"error,omitempty"`
	ErrorRecord int    `json:"error_record,omitempty"` // 1-based position of the first bad record
}

// Verify recomputes every hash and checks the chain linkage and id sequence.
func (l *Ledger) Verify() VerifyResult {
	return verifyRecords(l.snapshot(), l.digest)
}

// VerifyIntegrity reports whether the whole trail verifies.
func (l *Ledger) VerifyIntegrity() bool {
	return l.Verify().Valid
}

// VerifyFile verifies a JSONL ledger on disk without opening it for writing.
func VerifyFile(path string, d Digest) VerifyResult {
	records, err := readJSONL(path)
	if err != nil {
		return VerifyResult{Error: err.Error()}
	}
	return verifyRecords(records, d)
}

// VerifyStore verifies every record a store holds.
func VerifyStore(s Store, d Digest) VerifyResult {
	records, err := s.Load()
	if err != nil {
		return VerifyResult{Error: err.Error()}
	}
	return verifyRecords(records, d)
}

func verifyRecords(records []Record, d Digest) VerifyResult {
	expectedPrev := d.Genesis()
	for i, r := range records {
		pos := i + 1
		fail := func(format string, args ...any) VerifyResult {
			return VerifyResult{
				Records:     i,
				Error:       fmt.Sprintf(format, args...),
				ErrorRecord: pos,
			}
		}

		if r.PrevHash != expectedPrev {
			if i == 0 {
				return fail("first record prev_hash is %q, expected genesis %q", r.PrevHash, expectedPrev)
			}
			return fail("prev_hash mismatch: expected %s, got %s", expectedPrev, r.PrevHash)
		}
		if r.DecisionID != uint64(pos) {
			return fail("decision_id %d out of sequence, expected %d", r.DecisionID, pos)
		}
		if sum := d.Sum(r.canonical()); sum != r.Hash {
			return fail("hash mismatch: stored %s, computed %s", r.Hash, sum)
		}
		expectedPrev = r.Hash
	}
	return VerifyResult{Valid: true, Records: len(records)}
}
