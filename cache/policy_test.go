package cache

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.EngineVersion != "1" {
		t.Errorf("EngineVersion = %q, want 1", p.EngineVersion)
	}
	if p.ComputeTimeout != 30*time.Second {
		t.Errorf("ComputeTimeout = %v, want 30s", p.ComputeTimeout)
	}
}

func TestPolicy_Fresh(t *testing.T) {
	doc := func(v string) (*ScenarioDocument, *RiskResultDocument) {
		return &ScenarioDocument{EngineVersion: v}, &RiskResultDocument{EngineVersion: v}
	}
	tests := []struct {
		name     string
		policy   string
		scenario string
		risk     string
		want     bool
	}{
		{"all match", "1", "1", "1", true},
		{"risk behind", "1", "1", "0", false},
		{"scenario behind", "1", "0", "1", false},
		{"both ahead of engine", "1", "2", "2", false},
		{"empty policy version", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := doc(tt.scenario)
			_, r := doc(tt.risk)
			if got := (Policy{EngineVersion: tt.policy}).Fresh(s, r); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}

	if (Policy{EngineVersion: "1"}).Fresh(nil, &RiskResultDocument{EngineVersion: "1"}) {
		t.Error("Fresh() with nil scenario = true")
	}
}

func TestDocuments_Validate(t *testing.T) {
	good := NewRiskResultDocument("abc", sampleResult(), "1", testNow)
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	nan := good
	nan.Shock = math.NaN()
	if err := nan.Validate(); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("NaN shock: Validate() error = %v, want ErrInvalidDocument", err)
	}

	expl := ExplanationDocument{
		ID:              "abc:72:summary",
		ScenarioID:      "abc",
		SectorID:        "72",
		ExplanationType: "explanation",
		Content:         "text",
		EngineVersion:   "1",
	}
	if err := expl.Validate(); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("mismatched id: Validate() error = %v, want ErrInvalidDocument", err)
	}

	colon := ExplanationDocument{
		ID:              "abc:72:summary:short",
		ScenarioID:      "abc",
		SectorID:        "72",
		ExplanationType: "summary:short",
		Content:         "text",
		EngineVersion:   "1",
	}
	if err := colon.Validate(); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("separator in type: Validate() error = %v, want ErrInvalidDocument", err)
	}

	if err := (&ScenarioDocument{ScenarioID: "abc", EngineVersion: "1"}).Validate(); err == nil {
		t.Error("scenario without model_mode validated")
	}
}

func TestRiskResultDocument_Sector(t *testing.T) {
	doc := NewRiskResultDocument("abc", sampleResult(), "1", testNow)

	if got := doc.Sector("72").SectorName; got != "Iron and steel" {
		t.Errorf("Sector(72).SectorName = %q", got)
	}
	if got := doc.Sector("10"); got != (SectorSummary{SectorID: "10"}) {
		t.Errorf("Sector(10) = %+v, want bare summary", got)
	}
}

func TestScenarioDocument_TariffIsJSONNumber(t *testing.T) {
	s, err := NewScenario("12.50", []string{"US"}, nil, "")
	if err != nil {
		t.Fatalf("NewScenario() error = %v", err)
	}
	raw, err := json.Marshal(NewScenarioDocument("abc", s, "1", testNow))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(raw), `"tariff_percent":12.5,`) {
		t.Errorf("tariff_percent not a bare number: %s", raw)
	}

	for _, in := range []string{`{"tariff_percent":12.5}`, `{"tariff_percent":"12.5"}`} {
		var doc ScenarioDocument
		if err := json.Unmarshal([]byte(in), &doc); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", in, err)
		}
		if got := doc.TariffPercent.String(); got != "12.5" {
			t.Errorf("Unmarshal(%s) tariff = %s, want 12.5", in, got)
		}
	}
}
