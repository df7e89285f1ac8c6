// Package event defines the immutable event envelope and the closed set of
// payloads the tenancy aggregates emit.
//
// Payload is sealed: only types in this package implement it, so every
// switch or dispatch table over event kinds can be checked against Kinds.
package event
