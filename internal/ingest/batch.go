// Package ingest decodes signal batches arriving over the CLI or HTTP. Every
// batch is checked against an embedded JSON Schema before it is decoded, so
// malformed input is rejected here and never reaches the engine.
package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/model"
)

//go:embed batch.schema.json
var batchSchema []byte

const schemaURL = "https://aille.local/schema/batch.json"

// Batch is one decision cycle's input plus the caller context recorded in
// the audit ledger.
type Batch struct {
	Signals    []model.ModelSignal `json:"signals"`
	Symbol     string              `json:"symbol,omitempty"`
	StrategyID string              `json:"strategy_id,omitempty"`
	UserID     string              `json:"user_id,omitempty"`
}

// Metadata returns the ledger metadata for the batch.
func (b Batch) Metadata() audit.Metadata {
	return audit.Metadata{Symbol: b.Symbol, StrategyID: b.StrategyID, UserID: b.UserID}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(batchSchema)); err != nil {
			compileErr = fmt.Errorf("ingest: add schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("ingest: compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// DecodeBatch validates raw against the batch schema and decodes it.
// Signals without timestamp_ns are stamped with the current time.
func DecodeBatch(raw []byte) (Batch, error) {
	return decodeAt(raw, time.Now())
}

func decodeAt(raw []byte, now time.Time) (Batch, error) {
	s, err := schema()
	if err != nil {
		return Batch{}, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Batch{}, fmt.Errorf("ingest: invalid JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return Batch{}, fmt.Errorf("ingest: schema validation: %w", err)
	}

	var b Batch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return Batch{}, fmt.Errorf("ingest: decode batch: %w", err)
	}
	for i := range b.Signals {
		if b.Signals[i].Timestamp.IsZero() {
			b.Signals[i].Timestamp = now
		}
	}
	if b.Signals == nil {
		b.Signals = []model.ModelSignal{}
	}
	return b, nil
}

// ReadBatches decodes consecutive JSON batches from r. It accepts JSONL as
// well as a single, possibly indented, document.
func ReadBatches(r io.Reader) ([]Batch, error) {
	dec := json.NewDecoder(r)
	var out []Batch
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("ingest: batch %d: %w", n, err)
		}
		b, err := DecodeBatch(raw)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", n, err)
		}
		out = append(out, b)
	}
}

// Encode renders b as a single JSONL line.
func Encode(b Batch) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal batch: %w", err)
	}
	return append(data, '\n'), nil
}
