// Package secret resolves credentials referenced from configuration.
//
// A configured value is first expanded strictly against the environment
// (${VAR} must exist, $$ is a literal dollar) and then any secret
// references in it are replaced by their provider's value:
//
//	secretref:env:TARIFF_STORE_KEY
//	secretref:file:/run/secrets/engine-token
//	Bearer secretref:file:/run/secrets/engine-token
//
// The env and file providers are built in; others can be registered on a
// Resolver.
package secret
