// Package ingest drains raw event payloads from the inbound queue, decodes
// them into domain events, and paces the work against the host's available
// headroom.
//
// The Loop is the single consumer of the Queue. The transport's receive side
// is the only producer. Throttle state is adjusted from the scheduler's host
// tick and read by the Loop between batches.
package ingest
