package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/aille/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err := Open(store)
	if err != nil {
		t.Fatal(err)
	}
	appendN(t, l, 4)
	fb := testDecision(t, model.StatusRejectedNoConsensus, -0.1, baseTime.Add(time.Hour))
	fb.ContributingModels = nil
	if _, err := l.Append(fb, Metadata{Symbol: "MSFT"}); err != nil {
		t.Fatal(err)
	}
	want := l.Records()
	l.Close()

	store, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Hash != want[i].Hash || got[i].PrevHash != want[i].PrevHash {
			t.Errorf("record %d: hash fields differ", i)
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("record %d: expected ts %v, got %v", i, want[i].Timestamp, got[i].Timestamp)
		}
		if got[i].FinalValue != want[i].FinalValue || got[i].Status != want[i].Status {
			t.Errorf("record %d: expected %v/%s, got %v/%s", i, want[i].FinalValue, want[i].Status, got[i].FinalValue, got[i].Status)
		}
		if got[i].FallbackUsed != want[i].FallbackUsed {
			t.Errorf("record %d: fallback_used not preserved", i)
		}
	}

	if res := VerifyStore(store, XXHash); !res.Valid || res.Records != 5 {
		t.Errorf("expected 5 valid records, got %+v", res)
	}
}

func TestSQLiteReopenResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, _ := OpenSQLite(path)
	l, _ := Open(store, WithDigest(SHA256))
	appendN(t, l, 2)
	tail := l.LastHash()
	l.Close()

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err = Open(store, WithDigest(SHA256))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	rec, err := l.Append(testDecision(t, model.StatusValid, 0.04, baseTime.Add(time.Minute)), Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if rec.DecisionID != 3 || rec.PrevHash != tail {
		t.Errorf("expected id 3 chained to %s, got %d/%s", tail, rec.DecisionID, rec.PrevHash)
	}
	if res := VerifyStore(store, SHA256); !res.Valid || res.Records != 3 {
		t.Errorf("expected 3 valid records, got %+v", res)
	}
}
