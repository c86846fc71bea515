// Package connectivity probes every (provider, model) combination in the
// catalog and keeps the latest result for each.
//
// A full run walks the catalog in fixed-size batches. Within a batch the
// probes run concurrently and the runner waits for all of them before
// pausing and moving on. A run can be aborted at any point; probes that
// finish after the abort are discarded.
package connectivity
