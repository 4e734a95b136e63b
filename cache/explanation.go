package cache

import (
	"context"

	"github.com/jonwraymond/scenariocache/observe"
)

// ExplanationRequest holds the inputs of UpsertExplanation.
type ExplanationRequest struct {
	ScenarioID      string
	SectorID        string
	ExplanationType string
	Content         string
	GroundedMetrics map[string]any
	Model           string
	Safety          any
}

func (r ExplanationRequest) missing() []string {
	var out []string
	add := func(name string, absent bool) {
		if absent {
			out = append(out, name)
		}
	}
	add("scenario_id", r.ScenarioID == "")
	add("sector_id", r.SectorID == "")
	add("type", r.ExplanationType == "")
	add("content", r.Content == "")
	add("grounded_metrics", r.GroundedMetrics == nil)
	add("model", r.Model == "")
	add("safety", r.Safety == nil)
	return out
}

// UpsertExplanation stores an explanation under
// scenario_id:sector_id:explanation_type, replacing any previous one.
// The document carries the running engine version. Identical calls store
// identical documents.
func (c *Coordinator) UpsertExplanation(ctx context.Context, req ExplanationRequest) (*ExplanationDocument, error) {
	if missing := req.missing(); len(missing) > 0 {
		return nil, &InputError{Missing: missing}
	}

	if err := firstInputErr(
		ValidateKeyPart("sector_id", req.SectorID),
		ValidateKeyPart("type", req.ExplanationType),
	); err != nil {
		return nil, err
	}

	id := ExplanationID(req.ScenarioID, req.SectorID, req.ExplanationType)
	if err := ValidateKey(id); err != nil {
		return nil, &InputError{Field: "scenario_id", Reason: err.Error()}
	}

	doc := ExplanationDocument{
		ID:              id,
		ScenarioID:      req.ScenarioID,
		SectorID:        req.SectorID,
		ExplanationType: req.ExplanationType,
		Content:         req.Content,
		GroundedMetrics: req.GroundedMetrics,
		Model:           req.Model,
		Safety:          req.Safety,
		EngineVersion:   c.policy.EngineVersion,
	}

	err := c.obs.Instrument(ctx, observe.OpMeta{Component: component, Name: "upsert_explanation", Target: req.ExplanationType}, func(ctx context.Context) error {
		return c.store.Upsert(ctx, CollectionExplanations, id, &doc, nil)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
