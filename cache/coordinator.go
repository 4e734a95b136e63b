package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/scenariocache/observe"
	"github.com/jonwraymond/scenariocache/resilience"
)

// DefaultExplanationType is used when a request names no explanation type.
const DefaultExplanationType = "explanation"

const component = "cache"

// Coordinator serves chat contexts from the document store, computing and
// writing back results on a miss.
//
// Contract:
//   - Concurrency: safe for concurrent use; it holds no per-scenario state.
//   - Errors: input problems are *InputError and are reported before any
//     store call; store errors are returned unchanged; compute failures
//     wrap ErrComputeFailed.
type Coordinator struct {
	store       DocumentStore
	engine      RiskEngine
	model       MLModel
	leaderboard Leaderboard
	keyer       Keyer
	policy      Policy
	timeout     *resilience.Timeout
	obs         *observe.Middleware
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMLModel sets the model used for non-deterministic model modes.
func WithMLModel(m MLModel) Option {
	return func(c *Coordinator) { c.model = m }
}

// WithLeaderboard sets the source of leaderboard snippets.
func WithLeaderboard(l Leaderboard) Option {
	return func(c *Coordinator) { c.leaderboard = l }
}

// WithKeyer overrides the scenario keyer.
func WithKeyer(k Keyer) Option {
	return func(c *Coordinator) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithMiddleware instruments coordinator operations.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(c *Coordinator) {
		if mw != nil {
			c.obs = mw
		}
	}
}

// WithClock overrides time.Now for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a coordinator over store and engine.
// engine may be nil for read-only use; a miss then fails with ErrNoEngine.
func NewCoordinator(store DocumentStore, engine RiskEngine, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		engine: engine,
		keyer:  NewDefaultKeyer(),
		policy: DefaultPolicy(),
		obs:    observe.NewNopMiddleware(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.ComputeTimeout > 0 {
		c.timeout = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: c.policy.ComputeTimeout})
	}
	return c
}

// Policy returns the coordinator's policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Key returns the store id of s.
func (c *Coordinator) Key(s Scenario) string {
	return c.keyer.Key(s)
}

// ContextRequest holds the inputs of GetOrComputeChatContext.
type ContextRequest struct {
	TariffPercent  any
	TargetPartners []string
	// SectorID selects the sector reported in the context. It does not
	// take part in the fingerprint; SectorFilter does.
	SectorID        string
	ModelMode       string
	ExplanationType string
	SectorFilter    []string
}

// ChatContext is the payload handed to the chat front end.
type ChatContext struct {
	Scenario           ScenarioDocument   `json:"scenario"`
	Sector             SectorSummary      `json:"sector"`
	Risk               RiskMetrics        `json:"risk"`
	Drivers            []Driver           `json:"drivers"`
	LeaderboardSnippet []LeaderboardEntry `json:"leaderboard_snippet"`
	Cached             bool               `json:"cached"`
	// ExistingExplanation is the stored explanation content, or nil.
	ExistingExplanation *string `json:"existing_explanation"`
}

// GetCachedResult returns the stored risk result for scenarioHash when it
// is fresh. A missing, partial, invalid or stale entry reports false.
//
// modelMode is already part of scenarioHash; it is accepted so callers can
// pass the request as they received it.
func (c *Coordinator) GetCachedResult(ctx context.Context, scenarioHash, modelMode string) (*RiskResultDocument, bool, error) {
	if err := ValidateKey(scenarioHash); err != nil {
		return nil, false, &InputError{Field: "scenario_id", Reason: err.Error()}
	}

	var risk *RiskResultDocument
	err := c.obs.Instrument(ctx, observe.OpMeta{Component: component, Name: "get_cached_result", Target: modelMode}, func(ctx context.Context) error {
		_, r, err := c.lookup(ctx, scenarioHash)
		risk = r
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return risk, risk != nil, nil
}

// GetOrComputeChatContext returns the chat context for a scenario, serving
// it from the store when fresh and computing it otherwise.
func (c *Coordinator) GetOrComputeChatContext(ctx context.Context, req ContextRequest) (*ChatContext, error) {
	var missing []string
	if req.TariffPercent == nil {
		missing = append(missing, "tariff_percent")
	}
	if req.TargetPartners == nil {
		missing = append(missing, "target_partners")
	}
	if req.SectorID == "" {
		missing = append(missing, "sector_id")
	}
	if len(missing) > 0 {
		return nil, &InputError{Missing: missing}
	}
	if req.ExplanationType == "" {
		req.ExplanationType = DefaultExplanationType
	}

	scenario, err := NewScenario(req.TariffPercent, req.TargetPartners, req.SectorFilter, req.ModelMode)
	if err != nil {
		return nil, err
	}
	if err := firstInputErr(
		ValidateKeyPart("sector_id", req.SectorID),
		ValidateKeyPart("explanation_type", req.ExplanationType),
	); err != nil {
		return nil, err
	}
	hash := c.keyer.Key(scenario)
	if err := ValidateKey(ExplanationID(hash, req.SectorID, req.ExplanationType)); err != nil {
		return nil, &InputError{Field: "sector_id", Reason: err.Error()}
	}

	var out *ChatContext
	err = c.obs.Instrument(ctx, observe.OpMeta{Component: component, Name: "get_or_compute_chat_context", Target: scenario.ModelMode}, func(ctx context.Context) error {
		var err error
		out, err = c.chatContext(ctx, hash, scenario, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) chatContext(ctx context.Context, hash string, scenario Scenario, req ContextRequest) (*ChatContext, error) {
	sdoc, rdoc, err := c.lookup(ctx, hash)
	if err != nil {
		return nil, err
	}

	cached := rdoc != nil
	var explanation *string
	if cached {
		explanation, err = c.existingExplanation(ctx, hash, req.SectorID, req.ExplanationType)
		if err != nil {
			return nil, err
		}
	} else {
		sdoc, rdoc, err = c.computeAndStore(ctx, hash, scenario)
		if err != nil {
			return nil, err
		}
	}

	return &ChatContext{
		Scenario:            *sdoc,
		Sector:              rdoc.Sector(req.SectorID),
		Risk:                rdoc.RiskMetrics,
		Drivers:             rdoc.Drivers,
		LeaderboardSnippet:  c.snippet(ctx, hash, req.SectorID),
		Cached:              cached,
		ExistingExplanation: explanation,
	}, nil
}

// lookup reads both documents for hash. rdoc is nil unless the pair is fresh.
func (c *Coordinator) lookup(ctx context.Context, hash string) (*ScenarioDocument, *RiskResultDocument, error) {
	sdoc, err := fetch[ScenarioDocument](ctx, c, CollectionScenarios, hash)
	if err != nil {
		return nil, nil, err
	}
	if sdoc != nil && sdoc.ScenarioID != hash {
		c.obs.Logger().Warn(ctx, "ignoring scenario stored under another id",
			observe.F("scenario_id", hash),
			observe.F("stored_scenario_id", sdoc.ScenarioID),
		)
		sdoc = nil
	}
	if sdoc == nil {
		c.obs.Lookup(ctx, hash, observe.OutcomeMiss)
		return nil, nil, nil
	}

	rdoc, err := fetch[RiskResultDocument](ctx, c, CollectionRiskResults, hash)
	if err != nil {
		return nil, nil, err
	}
	if rdoc != nil && rdoc.ScenarioID != hash {
		c.obs.Logger().Warn(ctx, "ignoring risk result stored under another scenario",
			observe.F("scenario_id", hash),
			observe.F("stored_scenario_id", rdoc.ScenarioID),
		)
		rdoc = nil
	}
	if rdoc == nil {
		c.obs.Lookup(ctx, hash, observe.OutcomeMiss)
		return sdoc, nil, nil
	}

	if !c.policy.Fresh(sdoc, rdoc) {
		c.obs.Lookup(ctx, hash, observe.OutcomeStale)
		return sdoc, nil, nil
	}
	c.obs.Lookup(ctx, hash, observe.OutcomeHit)
	return sdoc, rdoc, nil
}

// fetch reads one document. Absent, undecodable and invalid documents all
// come back as nil with no error.
func fetch[T any, P interface {
	*T
	Validate() error
}](ctx context.Context, c *Coordinator, collection, id string) (P, error) {
	var raw json.RawMessage
	found, err := c.store.Get(ctx, collection, id, &raw)
	if err != nil || !found {
		return nil, err
	}

	doc := P(new(T))
	if err := json.Unmarshal(raw, doc); err == nil {
		err = doc.Validate()
	}
	if err != nil {
		c.obs.Logger().Warn(ctx, "ignoring invalid stored document",
			observe.F("collection", collection),
			observe.F("id", id),
			observe.F("error", err.Error()),
		)
		return nil, nil
	}
	return doc, nil
}

func (c *Coordinator) existingExplanation(ctx context.Context, hash, sectorID, explanationType string) (*string, error) {
	id := ExplanationID(hash, sectorID, explanationType)
	doc, err := fetch[ExplanationDocument](ctx, c, CollectionExplanations, id)
	if err != nil || doc == nil {
		return nil, err
	}
	if !doc.keyedBy(hash, sectorID, explanationType) {
		c.obs.Logger().Warn(ctx, "ignoring explanation stored under another key",
			observe.F("id", id),
			observe.F("stored_sector_id", doc.SectorID),
			observe.F("stored_explanation_type", doc.ExplanationType),
		)
		return nil, nil
	}
	return &doc.Content, nil
}

// computeAndStore computes a fresh result and writes the scenario and then
// the risk document. A failure between the two writes leaves a scenario
// without a result, which reads as a miss.
func (c *Coordinator) computeAndStore(ctx context.Context, hash string, s Scenario) (*ScenarioDocument, *RiskResultDocument, error) {
	result, err := c.compute(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	sdoc := NewScenarioDocument(hash, s, c.policy.EngineVersion, now)
	rdoc := NewRiskResultDocument(hash, result, c.policy.EngineVersion, now)

	if err := c.store.Upsert(ctx, CollectionScenarios, hash, &sdoc, nil); err != nil {
		return nil, nil, err
	}
	if err := c.store.Upsert(ctx, CollectionRiskResults, hash, &rdoc, nil); err != nil {
		return nil, nil, err
	}
	return &sdoc, &rdoc, nil
}

func (c *Coordinator) compute(ctx context.Context, s Scenario) (*RiskResult, error) {
	if c.engine == nil {
		return nil, ErrNoEngine
	}
	adjust := s.ModelMode != ModeDeterministic
	if adjust && c.model == nil {
		return nil, fmt.Errorf("%w: model_mode %q", ErrModelUnavailable, s.ModelMode)
	}

	var result *RiskResult
	run := func(ctx context.Context) error {
		r, err := c.engine.Compute(ctx, s)
		if err != nil {
			return err
		}
		if adjust {
			if r, err = c.model.Adjust(ctx, s, r); err != nil {
				return err
			}
		}
		if r == nil {
			return errors.New("empty result")
		}
		if err := r.validate(); err != nil {
			return err
		}
		result = r
		return nil
	}

	var err error
	if c.timeout != nil {
		err = c.timeout.Execute(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputeFailed, err)
	}
	return result, nil
}

func (c *Coordinator) snippet(ctx context.Context, hash, sectorID string) []LeaderboardEntry {
	if c.leaderboard == nil {
		return []LeaderboardEntry{}
	}
	entries, err := c.leaderboard.Snippet(ctx, hash, sectorID)
	if err != nil {
		c.obs.Logger().Warn(ctx, "leaderboard unavailable",
			observe.F("scenario_id", hash),
			observe.F("error", err.Error()),
		)
		return []LeaderboardEntry{}
	}
	if entries == nil {
		return []LeaderboardEntry{}
	}
	return entries
}
