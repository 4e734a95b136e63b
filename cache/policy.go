package cache

import "time"

// Policy configures freshness and compute behavior.
type Policy struct {
	// EngineVersion stamps every document written and is the only version a
	// cached result is trusted under.
	EngineVersion string

	// ComputeTimeout bounds a single risk computation on a miss.
	// If zero, the computation is bounded only by the caller's context.
	ComputeTimeout time.Duration
}

// DefaultPolicy returns the default policy.
// EngineVersion: "1", ComputeTimeout: 30 seconds
func DefaultPolicy() Policy {
	return Policy{
		EngineVersion:  "1",
		ComputeTimeout: 30 * time.Second,
	}
}

// Fresh reports whether a stored risk result may be served. Both documents
// must be present and stamped with the policy's engine version.
func (p Policy) Fresh(scenario *ScenarioDocument, risk *RiskResultDocument) bool {
	if scenario == nil || risk == nil || p.EngineVersion == "" {
		return false
	}
	return scenario.EngineVersion == p.EngineVersion &&
		risk.EngineVersion == p.EngineVersion
}
