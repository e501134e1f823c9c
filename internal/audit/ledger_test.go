package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/aille/internal/model"
)

var baseTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func testDecision(t *testing.T, status model.DecisionStatus, value float64, at time.Time) model.Decision {
	t.Helper()
	return model.Decision{
		FinalValue:         value,
		Status:             status,
		Confidence:         0.8,
		ModelsAgreed:       3,
		FallbackUsed:       status.IsRejection() || status == model.StatusFallbackActivated,
		Timestamp:          at,
		ContributingModels: []int{0, 1, 2},
		Reasoning:          "consensus: 3 of 3 models agreed",
	}
}

func appendN(t *testing.T, l *Ledger, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		d := testDecision(t, model.StatusValid, 0.01*float64(i), baseTime.Add(time.Duration(i)*time.Second))
		if _, err := l.Append(d, Metadata{Symbol: "AAPL", StrategyID: "momo", UserID: "u1"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

type failingStore struct{ appends int }

func (s *failingStore) Append(Record) error {
	s.appends++
	return errors.New("disk full")
}
func (s *failingStore) Load() ([]Record, error) { return nil, nil }
func (s *failingStore) Close() error            { return nil }

// flakyStore fails the nth write once and passes everything else through.
type flakyStore struct {
	Store
	failOn int
	writes int
}

func (s *flakyStore) Append(r Record) error {
	s.writes++
	if s.writes == s.failOn {
		return errors.New("disk full")
	}
	return s.Store.Append(r)
}

func TestAppendChainsRecords(t *testing.T) {
	l, err := Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	appendN(t, l, 5)

	recs := l.Records()
	if len(recs) != 5 {
		t.Fatalf("expected 5 records, got %d", len(recs))
	}
	if recs[0].PrevHash != GenesisHash {
		t.Errorf("expected genesis prev_hash, got %s", recs[0].PrevHash)
	}
	for i, r := range recs {
		if r.DecisionID != uint64(i+1) {
			t.Errorf("record %d: expected id %d, got %d", i, i+1, r.DecisionID)
		}
		if len(r.Hash) != 16 {
			t.Errorf("record %d: expected 16 hex hash, got %q", i, r.Hash)
		}
		if i > 0 && r.PrevHash != recs[i-1].Hash {
			t.Errorf("record %d: prev_hash does not link to record %d", i, i-1)
		}
		if r.Symbol != "AAPL" || r.StrategyID != "momo" || r.UserID != "u1" {
			t.Errorf("record %d: metadata not carried: %+v", i, r)
		}
	}
	if l.LastHash() != recs[4].Hash {
		t.Errorf("expected last hash %s, got %s", recs[4].Hash, l.LastHash())
	}
	if !l.VerifyIntegrity() {
		t.Errorf("expected valid chain, got %+v", l.Verify())
	}
}

func TestEmptyLedgerVerifies(t *testing.T) {
	l, _ := Open(nil)
	res := l.Verify()
	if !res.Valid || res.Records != 0 {
		t.Fatalf("expected empty valid result, got %+v", res)
	}
	if l.LastHash() != GenesisHash {
		t.Errorf("expected genesis last hash, got %s", l.LastHash())
	}
}

func TestAppendStampsZeroTimestamp(t *testing.T) {
	l, _ := Open(nil)
	rec, err := l.Append(model.Decision{Status: model.StatusErrorNoModels, Reasoning: "no model inputs"}, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Timestamp.IsZero() {
		t.Error("expected timestamp to be stamped")
	}
	if rec.ContributingModels == nil {
		t.Error("expected non-nil contributing models")
	}
}

func TestVerifyDetectsTamperedValue(t *testing.T) {
	l, _ := Open(nil)
	appendN(t, l, 4)

	l.trail[2].FinalValue = 0.99

	res := l.Verify()
	if res.Valid {
		t.Fatal("expected tampered final_value to fail verification")
	}
	if res.ErrorRecord != 3 {
		t.Errorf("expected error at record 3, got %d", res.ErrorRecord)
	}
	if !strings.Contains(res.Error, "hash mismatch") {
		t.Errorf("expected hash mismatch, got %q", res.Error)
	}
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	l, _ := Open(nil)
	appendN(t, l, 4)

	l.trail = append(l.trail[:1], l.trail[2:]...)

	res := l.Verify()
	if res.Valid {
		t.Fatal("expected deletion to fail verification")
	}
	if res.ErrorRecord != 2 {
		t.Errorf("expected error at record 2, got %d", res.ErrorRecord)
	}
}

func TestVerifyDetectsReorder(t *testing.T) {
	l, _ := Open(nil)
	appendN(t, l, 3)

	l.trail[1], l.trail[2] = l.trail[2], l.trail[1]

	if l.VerifyIntegrity() {
		t.Fatal("expected reorder to fail verification")
	}
}

func TestRecordsReturnsCopy(t *testing.T) {
	l, _ := Open(nil)
	appendN(t, l, 2)

	recs := l.Records()
	recs[0].FinalValue = 42
	recs[0].ContributingModels[0] = 99

	if !l.VerifyIntegrity() {
		t.Error("mutating a snapshot must not affect the ledger")
	}
}

func TestConcurrentAppends(t *testing.T) {
	l, _ := Open(nil)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				l.Append(model.Decision{Status: model.StatusValid, Timestamp: baseTime, FinalValue: float64(g)}, Metadata{})
			}
		}(g)
	}
	wg.Wait()

	if l.Len() != 200 {
		t.Fatalf("expected 200 records, got %d", l.Len())
	}
	res := l.Verify()
	if !res.Valid {
		t.Fatalf("expected valid chain after concurrent appends, got %+v", res)
	}
}

func TestReopenJSONLResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	store, err := OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err := Open(store)
	if err != nil {
		t.Fatal(err)
	}
	appendN(t, l, 3)
	tail := l.LastHash()
	l.Close()

	store, err = OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err = Open(store)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if l.Len() != 3 {
		t.Fatalf("expected 3 resumed records, got %d", l.Len())
	}
	if l.LastHash() != tail {
		t.Errorf("expected resumed tail %s, got %s", tail, l.LastHash())
	}
	rec, err := l.Append(testDecision(t, model.StatusValid, 0.02, baseTime.Add(time.Minute)), Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if rec.DecisionID != 4 || rec.PrevHash != tail {
		t.Errorf("expected id 4 chained to %s, got id %d prev %s", tail, rec.DecisionID, rec.PrevHash)
	}

	res := VerifyFile(path, XXHash)
	if !res.Valid || res.Records != 4 {
		t.Errorf("expected 4 valid records on disk, got %+v", res)
	}
}

func TestOpenRefusesBrokenChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	store, _ := OpenJSONL(path)
	l, _ := Open(store)
	appendN(t, l, 3)
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"status":"VALID"`, `"status":"REJECTED_NO_CONSENSUS"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600)

	store, _ = OpenJSONL(path)
	defer store.Close()
	if _, err := Open(store); err == nil {
		t.Fatal("expected Open to refuse a tampered ledger")
	}
}

func TestPersistFailureKeepsRecord(t *testing.T) {
	store := &failingStore{}
	l, err := Open(store)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := l.Append(testDecision(t, model.StatusValid, 0.03, baseTime), Metadata{})
	if err == nil {
		t.Fatal("expected persist error")
	}
	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PersistError, got %T", err)
	}
	if pe.DecisionID != 1 || rec.DecisionID != 1 {
		t.Errorf("expected record 1, got error id %d record id %d", pe.DecisionID, rec.DecisionID)
	}
	if rec.Hash == "" {
		t.Error("expected record to be hashed despite persist failure")
	}
	if !l.Diverged() || l.PersistFailures() != 1 {
		t.Errorf("expected diverged with 1 failure, got %v/%d", l.Diverged(), l.PersistFailures())
	}
	if l.Len() != 1 || !l.VerifyIntegrity() {
		t.Error("expected record retained in a valid in-memory chain")
	}
}

func TestTransientPersistFailureCatchesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	jsonl, err := OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err := Open(&flakyStore{Store: jsonl, failOn: 2})
	if err != nil {
		t.Fatal(err)
	}

	meta := Metadata{Symbol: "AAPL"}
	if _, err := l.Append(testDecision(t, model.StatusValid, 0.01, baseTime), meta); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	_, err = l.Append(testDecision(t, model.StatusValid, 0.02, baseTime.Add(time.Second)), meta)
	var pe *PersistError
	if !errors.As(err, &pe) || pe.DecisionID != 2 {
		t.Fatalf("expected PersistError for record 2, got %v", err)
	}
	if !l.Diverged() || l.Pending() != 1 {
		t.Fatalf("expected one pending record, got diverged=%v pending=%d", l.Diverged(), l.Pending())
	}

	if _, err := l.Append(testDecision(t, model.StatusValid, 0.03, baseTime.Add(2*time.Second)), meta); err != nil {
		t.Fatalf("append 3: %v", err)
	}
	if l.Diverged() || l.Pending() != 0 {
		t.Errorf("expected backlog drained, got diverged=%v pending=%d", l.Diverged(), l.Pending())
	}
	if l.PersistFailures() != 1 {
		t.Errorf("expected 1 persist failure, got %d", l.PersistFailures())
	}
	l.Close()

	if res := VerifyFile(path, XXHash); !res.Valid || res.Records != 3 {
		t.Fatalf("expected 3 verified records on disk, got %+v", res)
	}

	jsonl, err = OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(jsonl)
	if err != nil {
		t.Fatalf("reopen after transient failure: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.Append(testDecision(t, model.StatusValid, 0.04, baseTime.Add(3*time.Second)), meta)
	if err != nil || rec.DecisionID != 4 {
		t.Errorf("expected record 4 after reopen, got %d, %v", rec.DecisionID, err)
	}
}

func TestFlushAndCloseDrainBacklog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	jsonl, err := OpenJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	store := &flakyStore{Store: jsonl, failOn: 1}
	l, err := Open(store)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.Append(testDecision(t, model.StatusValid, 0.01, baseTime), Metadata{}); err == nil {
		t.Fatal("expected persist error")
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if l.Diverged() {
		t.Error("expected Flush to clear divergence")
	}

	store.failOn = store.writes + 1
	if _, err := l.Append(testDecision(t, model.StatusValid, 0.02, baseTime.Add(time.Second)), Metadata{}); err == nil {
		t.Fatal("expected persist error")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := readJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].DecisionID != 2 {
		t.Fatalf("expected both records on disk after close, got %d", len(recs))
	}
}

func TestCloseReportsUnflushedBacklog(t *testing.T) {
	l, _ := Open(&failingStore{})
	l.Append(testDecision(t, model.StatusValid, 0.01, baseTime), Metadata{})

	var pe *PersistError
	if err := l.Close(); !errors.As(err, &pe) || pe.DecisionID != 1 {
		t.Fatalf("expected PersistError for record 1 on close, got %v", err)
	}
}

func TestAppendAfterClose(t *testing.T) {
	l, _ := Open(nil)
	l.Close()

	if _, err := l.Append(model.Decision{Status: model.StatusValid}, Metadata{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if l.Close() != nil {
		t.Error("expected second Close to be a no-op")
	}
}

func TestSHA256DigestChain(t *testing.T) {
	l, _ := Open(nil, WithDigest(SHA256))
	appendN(t, l, 3)

	recs := l.Records()
	if recs[0].PrevHash != SHA256.Genesis() {
		t.Errorf("expected sha256 genesis, got %s", recs[0].PrevHash)
	}
	if !strings.HasPrefix(recs[0].Hash, "sha256:") || len(recs[0].Hash) != 71 {
		t.Errorf("expected sha256:<64 hex>, got %s", recs[0].Hash)
	}
	if !l.VerifyIntegrity() {
		t.Error("expected valid sha256 chain")
	}
	if verifyRecords(recs, XXHash).Valid {
		t.Error("expected chain to fail under a different digest")
	}
}
