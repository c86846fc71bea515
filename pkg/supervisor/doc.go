// Package supervisor manages the lifecycle of the locally spawned inference
// gateway: it starts the process, watches its output for readiness
// evidence, health-polls the HTTP surface, classifies stderr, and keeps the
// list of models the gateway can currently serve.
//
// All phase transitions happen on a single goroutine driven by a ticker,
// the readiness-marker channel, and the process-exit channel. Readers use
// Snapshot and Ready.
package supervisor
