// Package backend describes the interchangeable generative-AI providers the
// orchestrator can call.
//
// A Backend pairs an immutable Descriptor (id, capabilities, priority, cost
// weight) with an Adapter that performs the actual provider call. The core
// treats every provider uniformly through this pair; provider wire formats
// live entirely inside adapters.
package backend
