// Package storage defines the persistence interfaces used by the routing
// engine and the connectivity runner, plus sentinel errors shared by the
// adapters.
//
// Adapters live in subpackages: memory (default, process lifetime),
// sqlite (single node, file backed), and postgres (shared across
// replicas, embedded migrations).
package storage
