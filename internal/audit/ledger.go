package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/aille/internal/model"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("audit: ledger closed")

// PersistError reports a record that was chained in memory but could not be
// written to the backing store. The record waits in the ledger's backlog and
// is written, in order, before any later record reaches the store.
type PersistError struct {
	DecisionID uint64
	Err        error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("audit: persist record %d: %v", e.DecisionID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Ledger is an append-only, hash-chained trail of decisions. Each record's
// prev_hash is the hash of the record before it, so any edit, deletion or
// reordering breaks verification.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	digest   Digest
	log      zerolog.Logger
	trail    []Record
	nextID   uint64
	lastHash string
	pending  []Record
	failures int
	closed   bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDigest selects the chain hash. The default is XXHash.
func WithDigest(d Digest) Option {
	return func(l *Ledger) {
		if d != nil {
			l.digest = d
		}
	}
}

// WithLogger attaches a logger for persistence failures and appends.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) {
		l.log = log.With().Str("component", "audit").Logger()
	}
}

// Open creates a ledger over store. A nil store keeps records in memory only.
// Existing records are loaded and verified; the ledger resumes their id
// sequence and chain tail, and refuses to extend a chain that fails
// verification.
func Open(store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		digest: XXHash,
		log:    zerolog.Nop(),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastHash = l.digest.Genesis()

	if store == nil {
		return l, nil
	}
	existing, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("audit: load existing records: %w", err)
	}
	if len(existing) == 0 {
		return l, nil
	}
	if res := verifyRecords(existing, l.digest); !res.Valid {
		return nil, fmt.Errorf("audit: existing ledger fails verification at record %d: %s", res.ErrorRecord, res.Error)
	}
	tail := existing[len(existing)-1]
	l.trail = existing
	l.nextID = tail.DecisionID + 1
	l.lastHash = tail.Hash
	l.log.Info().Int("records", len(existing)).Uint64("next_id", l.nextID).Msg("resumed ledger")
	return l, nil
}

// Append chains d onto the ledger and writes it to the store. On a store
// failure the record is still returned and kept in memory alongside a
// *PersistError.
func (l *Ledger) Append(d model.Decision, meta Metadata) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Record{}, ErrClosed
	}

	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := Record{
		Timestamp:          ts,
		DecisionID:         l.nextID,
		Status:             d.Status,
		FinalValue:         d.FinalValue,
		Confidence:         d.Confidence,
		ModelsAgreed:       d.ModelsAgreed,
		FallbackUsed:       d.FallbackUsed,
		Reasoning:          d.Reasoning,
		ContributingModels: append([]int{}, d.ContributingModels...),
		Symbol:             meta.Symbol,
		StrategyID:         meta.StrategyID,
		UserID:             meta.UserID,
		PrevHash:           l.lastHash,
	}
	rec.Hash = l.digest.Sum(rec.canonical())

	l.trail = append(l.trail, rec)
	l.nextID++
	l.lastHash = rec.Hash

	if l.store != nil {
		l.pending = append(l.pending, rec)
		if err := l.drain(); err != nil {
			l.failures++
			l.log.Error().Err(err).
				Uint64("decision_id", rec.DecisionID).
				Int("pending", len(l.pending)).
				Int("persist_failures", l.failures).
				Msg("audit record kept in memory only")
			return rec.clone(), &PersistError{DecisionID: rec.DecisionID, Err: err}
		}
	}

	l.log.Debug().
		Uint64("decision_id", rec.DecisionID).
		Str("status", string(rec.Status)).
		Str("hash", rec.Hash).
		Msg("audit record appended")
	return rec.clone(), nil
}

// Records returns a copy of the trail in append order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneRecords(l.trail)
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trail)
}

// LastHash returns the hash the next record will chain to.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Digest returns the ledger's chain hash.
func (l *Ledger) Digest() Digest { return l.digest }

// drain writes the backlog in order and stops at the first failure, so the
// store never holds a record whose predecessor is missing.
func (l *Ledger) drain() error {
	for len(l.pending) > 0 {
		if err := l.store.Append(l.pending[0]); err != nil {
			return err
		}
		l.pending = l.pending[1:]
	}
	l.pending = nil
	return nil
}

// Flush retries records that have not reached the store yet.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil || len(l.pending) == 0 {
		return nil
	}
	if l.closed {
		return ErrClosed
	}
	if err := l.drain(); err != nil {
		return &PersistError{DecisionID: l.pending[0].DecisionID, Err: err}
	}
	l.log.Info().Uint64("next_id", l.nextID).Msg("audit backlog flushed")
	return nil
}

// Diverged reports whether records are held in memory that the store does
// not have yet. It clears once the backlog has been written.
func (l *Ledger) Diverged() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0
}

// Pending returns the number of records waiting to reach the store.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// PersistFailures returns the number of appends whose record did not reach
// the store at the time of the append.
func (l *Ledger) PersistFailures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// Close makes a last attempt at the backlog and closes the store. Later
// appends fail with ErrClosed; reads and verification keep working on the
// in-memory trail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.store == nil {
		return nil
	}
	var flushErr error
	if err := l.drain(); err != nil {
		l.log.Error().Err(err).Int("pending", len(l.pending)).Msg("audit backlog lost on close")
		flushErr = &PersistError{DecisionID: l.pending[0].DecisionID, Err: err}
	}
	return errors.Join(flushErr, l.store.Close())
}

// snapshot copies the record headers under the lock so verification and
// reports run without blocking appends.
func (l *Ledger) snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.trail))
	copy(out, l.trail)
	return out
}
