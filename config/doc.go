// Package config loads the gateway configuration from a YAML file,
// environment variables and an optional .env file. It covers the HTTP
// server, logging, the cache tiers and their TTLs per content class, health
// and circuit breaker policy, orchestration limits, the backend list and the
// static fallbacks per capability. Every policy number has a default and can
// be overridden.
package config
