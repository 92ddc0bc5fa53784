// Package storage provides the byte-oriented key-value stores used as the
// disk tier of the response cache.
//
// Three drivers are available: SQLite (the default, a single local file),
// Redis (shared between gateway instances) and an in-process map used by
// tests and ephemeral deployments. All of them satisfy Persistence.
package storage
