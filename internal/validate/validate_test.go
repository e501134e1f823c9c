package validate

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Mode      string  `yaml:"mode" default:"fast" validate:"oneof=fast slow"`
	Ratio     float64 `yaml:"ratio" default:"0.5" validate:"gte=0,lte=1"`
	Floor     float64 `yaml:"floor" validate:"ltefield=Ratio"`
	Name      string  `yaml:"name" validate:"required"`
	WorkerMax int     `default:"4" validate:"gt=0"`
}

func TestDefaults(t *testing.T) {
	var s sample
	if err := Defaults(&s); err != nil {
		t.Fatal(err)
	}
	if s.Mode != "fast" || s.Ratio != 0.5 || s.WorkerMax != 4 {
		t.Errorf("defaults not applied: %+v", s)
	}

	s = sample{Mode: "slow"}
	if err := Defaults(&s); err != nil {
		t.Fatal(err)
	}
	if s.Mode != "slow" {
		t.Errorf("defaults overwrote a set field: %q", s.Mode)
	}
}

func TestStructValid(t *testing.T) {
	s := sample{Mode: "slow", Ratio: 0.7, Floor: 0.2, Name: "x", WorkerMax: 1}
	if err := Struct(s); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestStructMessages(t *testing.T) {
	tests := []struct {
		name string
		s    sample
		want string
	}{
		{"oneof", sample{Mode: "turbo", Name: "x", WorkerMax: 1}, "mode must be one of: fast, slow"},
		{"lte", sample{Mode: "fast", Ratio: 1.5, Name: "x", WorkerMax: 1}, "ratio must be less than or equal to 1"},
		{"gte", sample{Mode: "fast", Ratio: -1, Floor: -2, Name: "x", WorkerMax: 1}, "ratio must be greater than or equal to 0"},
		{"ltefield", sample{Mode: "fast", Ratio: 0.2, Floor: 0.3, Name: "x", WorkerMax: 1}, "floor must be <= ratio"},
		{"required", sample{Mode: "fast", WorkerMax: 1}, "name is required"},
		{"snake fallback", sample{Mode: "fast", Name: "x"}, "worker_max must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.s)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestStructCollectsAllProblems(t *testing.T) {
	err := Struct(sample{Mode: "turbo", Ratio: 2})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(verr.Problems) != 4 {
		t.Errorf("expected 4 problems, got %v", verr.Problems)
	}
}

func TestSnake(t *testing.T) {
	for in, want := range map[string]string{
		"MinConfidenceThreshold": "min_confidence_threshold",
		"Path":                   "path",
		"x":                      "x",
	} {
		if got := snake(in); got != want {
			t.Errorf("snake(%q) = %q, want %q", in, got, want)
		}
	}
}
