// Package observability records and aggregates taskdeck events: an
// append-only JSONL event log written on every task and steering mutation,
// a metrics calculator over that log, and an alert engine that inspects the
// live store for stuck work and silent agent processes.
package observability
