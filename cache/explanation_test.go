package cache

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/scenariocache/docstore"
)

func explanationRequest() ExplanationRequest {
	return ExplanationRequest{
		ScenarioID:      "abc",
		SectorID:        "72",
		ExplanationType: "explanation",
		Content:         "Iron and steel exports are concentrated in two partners.",
		GroundedMetrics: map[string]any{"scenario_risk": 48.2, "drivers": []any{"Exposure"}},
		Model:           "gpt-4o-mini",
		Safety:          map[string]any{"flagged": false},
	}
}

func TestUpsertExplanation_StoresUnderCompositeID(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	c := newTestCoordinator(newStore(mem), nil, WithPolicy(Policy{EngineVersion: "7"}))

	doc, err := c.UpsertExplanation(context.Background(), explanationRequest())
	require.NoError(t, err)

	assert.Equal(t, "abc:72:explanation", doc.ID)
	assert.Equal(t, "7", doc.EngineVersion)

	stored, ok := mem.Document(CollectionExplanations, "abc:72:explanation")
	require.True(t, ok)
	assert.Equal(t, "7", stored["engine_version"])
	assert.Equal(t, "explanation", stored["explanation_type"])
	assert.Equal(t, map[string]any{"flagged": false}, stored["safety"])
}

func TestUpsertExplanation_Idempotent(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	c := newTestCoordinator(newStore(mem), nil)
	ctx := context.Background()

	first, err := c.UpsertExplanation(ctx, explanationRequest())
	require.NoError(t, err)
	before, _ := mem.Document(CollectionExplanations, first.ID)

	second, err := c.UpsertExplanation(ctx, explanationRequest())
	require.NoError(t, err)
	after, _ := mem.Document(CollectionExplanations, second.ID)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, mem.Len(CollectionExplanations))
}

func TestUpsertExplanation_Replaces(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	c := newTestCoordinator(newStore(mem), nil)
	ctx := context.Background()

	_, err := c.UpsertExplanation(ctx, explanationRequest())
	require.NoError(t, err)

	req := explanationRequest()
	req.Content = "revised"
	_, err = c.UpsertExplanation(ctx, req)
	require.NoError(t, err)

	stored, _ := mem.Document(CollectionExplanations, "abc:72:explanation")
	assert.Equal(t, "revised", stored["content"])
	assert.Equal(t, 1, mem.Len(CollectionExplanations))
}

func TestUpsertExplanation_MissingFields(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	c := newTestCoordinator(newStore(mem), nil)

	req := explanationRequest()
	req.ExplanationType = ""
	req.GroundedMetrics = nil
	req.Safety = nil

	_, err := c.UpsertExplanation(context.Background(), req)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, []string{"type", "grounded_metrics", "safety"}, inputErr.Missing)
	assert.Equal(t, "missing fields: type, grounded_metrics, safety", err.Error())
	assert.Empty(t, mem.Requests())
}

func TestUpsertExplanation_RejectsOversizedID(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	c := newTestCoordinator(newStore(mem), nil)

	req := explanationRequest()
	req.ScenarioID = strings.Repeat("a", MaxKeyLength)

	_, err := c.UpsertExplanation(context.Background(), req)

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, mem.Requests())
}

func TestUpsertExplanation_RejectsSeparatorInKeyParts(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*ExplanationRequest)
		field string
	}{
		{"sector", func(r *ExplanationRequest) { r.SectorID = "72:summary" }, "sector_id"},
		{"type", func(r *ExplanationRequest) { r.ExplanationType = "summary:short" }, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := docstore.NewMemoryTransport()
			c := newTestCoordinator(newStore(mem), nil)
			req := explanationRequest()
			tt.edit(&req)

			_, err := c.UpsertExplanation(context.Background(), req)

			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
			assert.Empty(t, mem.Requests())
		})
	}
}

func TestUpsertExplanation_ScenarioIDMayContainSeparator(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	c := newTestCoordinator(newStore(mem), nil)
	req := explanationRequest()
	req.ScenarioID = "team:abc"

	doc, err := c.UpsertExplanation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "team:abc:72:explanation", doc.ID)
	require.NoError(t, doc.Validate())
}

func TestUpsertExplanation_StoreFailure(t *testing.T) {
	mem := docstore.NewMemoryTransport()
	mem.FailNext(http.StatusUnprocessableEntity, 1)
	c := newTestCoordinator(newStore(mem), nil)

	_, err := c.UpsertExplanation(context.Background(), explanationRequest())

	assert.Equal(t, docstore.KindRequest, docstore.KindOf(err))
	assert.Equal(t, http.StatusUnprocessableEntity, docstore.StatusCodeOf(err))
	assert.Len(t, mem.Requests(), 1)
}
