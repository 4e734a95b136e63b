package cache

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidDocument is wrapped by every document Validate failure.
var ErrInvalidDocument = errors.New("cache: invalid document")

func invalid(kind, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, kind, reason)
}

// Percent is a decimal that encodes as a bare JSON number. It decodes from
// either a number or a quoted decimal string.
type Percent struct {
	decimal.Decimal
}

// MarshalJSON writes the exact decimal digits without quotes.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// ScenarioDocument is stored in the scenarios collection under its
// fingerprint.
type ScenarioDocument struct {
	ScenarioID     string    `json:"scenario_id"`
	TariffPercent  Percent   `json:"tariff_percent"`
	TargetPartners []string  `json:"target_partners"`
	SectorFilter   []string  `json:"sector_filter"`
	ModelMode      string    `json:"model_mode"`
	EngineVersion  string    `json:"engine_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewScenarioDocument stamps s with its id and the engine version.
func NewScenarioDocument(id string, s Scenario, engineVersion string, now time.Time) ScenarioDocument {
	partners := s.TargetPartners
	if partners == nil {
		partners = []string{}
	}
	return ScenarioDocument{
		ScenarioID:     id,
		TariffPercent:  Percent{s.TariffPercent},
		TargetPartners: partners,
		SectorFilter:   s.SectorFilter,
		ModelMode:      s.ModelMode,
		EngineVersion:  engineVersion,
		CreatedAt:      now.UTC(),
	}
}

// Validate reports whether the document can be trusted as cache content.
func (d *ScenarioDocument) Validate() error {
	switch {
	case d.ScenarioID == "":
		return invalid("scenario", "scenario_id is empty")
	case d.EngineVersion == "":
		return invalid("scenario", "engine_version is empty")
	case d.ModelMode == "":
		return invalid("scenario", "model_mode is empty")
	}
	return nil
}

// RiskMetrics are the headline numbers of a risk computation.
type RiskMetrics struct {
	BaselineRisk        float64 `json:"baseline_risk"`
	ScenarioRisk        float64 `json:"scenario_risk"`
	Delta               float64 `json:"delta"`
	Exposure            float64 `json:"exposure"`
	Concentration       float64 `json:"concentration"`
	Shock               float64 `json:"shock"`
	AffectedExportValue float64 `json:"affected_export_value"`
}

func (m RiskMetrics) validate() error {
	for name, v := range map[string]float64{
		"baseline_risk":         m.BaselineRisk,
		"scenario_risk":         m.ScenarioRisk,
		"delta":                 m.Delta,
		"exposure":              m.Exposure,
		"concentration":         m.Concentration,
		"shock":                 m.Shock,
		"affected_export_value": m.AffectedExportValue,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	return nil
}

// Driver is one named contribution to the scenario risk.
type Driver struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// SectorSummary is the per-sector view of a computed scenario.
type SectorSummary struct {
	SectorID            string  `json:"sector_id"`
	SectorName          string  `json:"sector_name,omitempty"`
	ScenarioRisk        float64 `json:"scenario_risk,omitempty"`
	Delta               float64 `json:"delta,omitempty"`
	AffectedExportValue float64 `json:"affected_export_value,omitempty"`
}

// LeaderboardEntry is one row of a sector ranking.
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	SectorID   string  `json:"sector_id"`
	SectorName string  `json:"sector_name,omitempty"`
	Score      float64 `json:"score"`
}

// RiskResult is what a RiskEngine or MLModel returns.
type RiskResult struct {
	RiskMetrics
	Drivers []Driver        `json:"drivers"`
	Sectors []SectorSummary `json:"sectors,omitempty"`
}

func (r *RiskResult) validate() error {
	if err := r.RiskMetrics.validate(); err != nil {
		return err
	}
	for i, d := range r.Drivers {
		if d.Name == "" {
			return fmt.Errorf("driver %d has no name", i)
		}
		if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
			return fmt.Errorf("driver %q is not finite", d.Name)
		}
	}
	return nil
}

// RiskResultDocument is stored in the risk_results collection under the
// scenario fingerprint.
type RiskResultDocument struct {
	ScenarioID    string `json:"scenario_id"`
	EngineVersion string `json:"engine_version"`
	RiskMetrics
	Drivers    []Driver        `json:"drivers"`
	Sectors    []SectorSummary `json:"sectors,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
}

// NewRiskResultDocument stamps a computed result for storage.
func NewRiskResultDocument(id string, r *RiskResult, engineVersion string, now time.Time) RiskResultDocument {
	drivers := r.Drivers
	if drivers == nil {
		drivers = []Driver{}
	}
	return RiskResultDocument{
		ScenarioID:    id,
		EngineVersion: engineVersion,
		RiskMetrics:   r.RiskMetrics,
		Drivers:       drivers,
		Sectors:       r.Sectors,
		ComputedAt:    now.UTC(),
	}
}

// Validate reports whether the document can be trusted as cache content.
func (d *RiskResultDocument) Validate() error {
	if d.ScenarioID == "" {
		return invalid("risk result", "scenario_id is empty")
	}
	if d.EngineVersion == "" {
		return invalid("risk result", "engine_version is empty")
	}
	r := RiskResult{RiskMetrics: d.RiskMetrics, Drivers: d.Drivers}
	if err := r.validate(); err != nil {
		return invalid("risk result", err.Error())
	}
	return nil
}

// Sector returns the summary for sectorID, or a bare summary carrying only
// the id when the result has none.
func (d *RiskResultDocument) Sector(sectorID string) SectorSummary {
	for _, s := range d.Sectors {
		if s.SectorID == sectorID {
			return s
		}
	}
	return SectorSummary{SectorID: sectorID}
}

// ExplanationDocument is a stored natural-language explanation. It has no
// timestamp so that identical upserts leave identical state.
type ExplanationDocument struct {
	ID              string         `json:"id"`
	ScenarioID      string         `json:"scenario_id"`
	SectorID        string         `json:"sector_id"`
	ExplanationType string         `json:"explanation_type"`
	Content         string         `json:"content"`
	GroundedMetrics map[string]any `json:"grounded_metrics"`
	Model           string         `json:"model"`
	Safety          any            `json:"safety"`
	EngineVersion   string         `json:"engine_version"`
}

// ExplanationID is the store id of an explanation:
// scenario_id:sector_id:explanation_type. sectorID and explanationType
// must pass ValidateKeyPart for the id to be unique.
func ExplanationID(scenarioID, sectorID, explanationType string) string {
	return strings.Join([]string{scenarioID, sectorID, explanationType}, KeySeparator)
}

// keyedBy reports whether the document was stored for exactly this key.
func (d *ExplanationDocument) keyedBy(scenarioID, sectorID, explanationType string) bool {
	return d.ScenarioID == scenarioID && d.SectorID == sectorID && d.ExplanationType == explanationType
}

// Validate reports whether the document is well formed.
func (d *ExplanationDocument) Validate() error {
	switch {
	case d.ScenarioID == "" || d.SectorID == "" || d.ExplanationType == "":
		return invalid("explanation", "key fields are empty")
	case strings.Contains(d.SectorID, KeySeparator) || strings.Contains(d.ExplanationType, KeySeparator):
		return invalid("explanation", "key fields contain the id separator")
	case d.ID != ExplanationID(d.ScenarioID, d.SectorID, d.ExplanationType):
		return invalid("explanation", "id does not match key fields")
	case d.Content == "":
		return invalid("explanation", "content is empty")
	case d.EngineVersion == "":
		return invalid("explanation", "engine_version is empty")
	}
	return nil
}
