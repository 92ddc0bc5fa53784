// Package request defines the orchestrator's request and response model.
//
// Every request is reduced to a fingerprint: a deterministic hash of its
// normalized semantic parameters (capability, content class, topic, age
// bracket, locale and feature flags). Semantically identical requests always
// share a fingerprint, which is what lets the cache and the coalescer treat
// them as one.
package request
