// Package triage is the decision core of docket. It defines the Engine
// (classify, gather tool context, route, assemble), the Classifier with its
// model path and keyword-rule fallback, the deterministic RoutingPolicy, and
// the verdict model.
package triage
