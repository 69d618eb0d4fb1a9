package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/crowdpulse/internal/app"
)

// PipelineCollector exposes the pipeline snapshot. It takes one snapshot
// per scrape.
type PipelineCollector struct {
	snapshot func() app.Snapshot

	running       *prometheus.Desc
	sessions      *prometheus.Desc
	events        *prometheus.Desc
	eventsPerSec  *prometheus.Desc
	queueLength   *prometheus.Desc
	queueDropped  *prometheus.Desc
	batchSize     *prometheus.Desc
	snoozeSeconds *prometheus.Desc
	tickRate      *prometheus.Desc
	users         *prometheus.Desc
	outQueued     *prometheus.Desc
	outInFlight   *prometheus.Desc
	outMessages   *prometheus.Desc
}

var _ prometheus.Collector = (*PipelineCollector)(nil)

func NewPipelineCollector(snapshot func() app.Snapshot) *PipelineCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}

	return &PipelineCollector{
		snapshot:      snapshot,
		running:       desc("pipeline", "running", "Whether a pipeline session is running."),
		sessions:      desc("pipeline", "sessions_total", "Number of pipeline sessions started."),
		events:        desc("ingest", "events_total", "Inbound payloads by outcome.", "outcome"),
		eventsPerSec:  desc("ingest", "events_per_second", "Processed events per second."),
		queueLength:   desc("ingest", "queue_length", "Payloads waiting in the inbound queue."),
		queueDropped:  desc("ingest", "queue_dropped_total", "Payloads dropped because the inbound queue was full."),
		batchSize:     desc("ingest", "batch_size", "Events processed per drain cycle."),
		snoozeSeconds: desc("ingest", "snooze_seconds", "Pause between drain cycles."),
		tickRate:      desc("ingest", "tick_rate", "Smoothed host tick rate in ticks per second."),
		users:         desc("users", "tracked", "Users held in memory, by cache.", "cache"),
		outQueued:     desc("outbound", "queued", "Messages waiting to be sent, by priority class.", "class"),
		outInFlight:   desc("outbound", "in_flight", "Messages currently being sent."),
		outMessages:   desc("outbound", "messages_total", "Outbound messages by outcome.", "outcome"),
	}
}

func (c *PipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.running, c.sessions, c.events, c.eventsPerSec, c.queueLength, c.queueDropped,
		c.batchSize, c.snoozeSeconds, c.tickRate, c.users, c.outQueued, c.outInFlight, c.outMessages,
	} {
		ch <- d
	}
}

func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	running := 0.0
	if s.Running {
		running = 1
	}
	gauge(c.running, running)
	counter(c.sessions, s.Sessions)

	counter(c.events, s.Ingest.Hearts, "heart")
	counter(c.events, s.Ingest.Chats, "chat")
	counter(c.events, s.Ingest.Joins, "join")
	counter(c.events, s.Ingest.Ignored, "ignored")
	counter(c.events, s.Ingest.DecodeErrors, "decode_error")
	counter(c.events, s.Ingest.ServerErrors, "server_error")
	gauge(c.eventsPerSec, s.Ingest.EventsPerSecond)

	gauge(c.queueLength, float64(s.Queue.Length))
	counter(c.queueDropped, s.Queue.Dropped)
	gauge(c.batchSize, s.Throttle.BatchSize)
	gauge(c.snoozeSeconds, float64(s.Throttle.SnoozeMS)/1000)
	gauge(c.tickRate, s.TickRate)

	gauge(c.users, float64(s.CachedUsers), "directory")
	gauge(c.users, float64(s.ActiveUsers), "active")

	gauge(c.outQueued, float64(s.Outbound.QueuedPriority), "priority")
	gauge(c.outQueued, float64(s.Outbound.QueuedRegular), "regular")
	gauge(c.outInFlight, float64(s.Outbound.InFlight))
	counter(c.outMessages, s.Outbound.Delivered, "delivered")
	counter(c.outMessages, s.Outbound.Processed-s.Outbound.Delivered, "failed")
	counter(c.outMessages, s.Outbound.Dropped, "dropped")
	counter(c.outMessages, s.Outbound.Rejected, "rejected")
}
