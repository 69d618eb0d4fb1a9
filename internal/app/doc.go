// Package app assembles the ingestion pipeline and keeps it running.
//
// A Pipeline owns one session's worth of state: the inbound queue, the
// ingestion loop, the group router and the outbound dispatcher, driven by a
// Scheduler of recurring tasks. The Supervisor connects the transport,
// runs a pipeline until the connection fails or goes stale, then resets
// session state and reconnects with backoff.
package app
