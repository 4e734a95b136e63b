// Package cache coordinates cached risk results for tariff scenarios.
//
// A scenario is reduced to a fingerprint (Fingerprint) that is identical for
// semantically equal inputs. The Coordinator uses that fingerprint as the
// document id in the remote store, trusts a stored result only when its
// engine version matches the running engine, recomputes on a miss and
// writes the fresh result back.
package cache
