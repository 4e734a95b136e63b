// Package health reports whether the service and its dependencies are up.
//
// A Checker reports one component's Status. The Aggregator runs every
// registered checker concurrently under one deadline and folds the results
// into an overall status:
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewPingChecker("store", storeClient, time.Second))
//	agg.Register("store_breaker", health.NewBreakerChecker("store_breaker", storeClient.State))
//
// Mount serves the results on a chi router:
//
//	GET /healthz  liveness, always 200
//	GET /readyz   200 unless a check is unhealthy
//	GET /health   JSON detail of every check
package health
