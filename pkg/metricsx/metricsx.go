// Package metricsx extends github.com/VictoriaMetrics/metrics with the
// label-style counters the bridge uses to track packet flow.
package metricsx

import (
	"io"
	"strings"
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

func splitName(name string) (base, arg string) {
	if n := len(name); n != 0 {
		base = name
		for i, r := range base {
			if r == '{' {
				if j := len(base) - 1; j > i && base[j] == '}' {
					base, arg = base[:i], base[i+1:j]
					break
				}
			}
		}
	}
	return
}

func formatName(base, arg string, args ...string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('{')
	if arg != "" {
		b.WriteString(arg)
	}
	for i := 1; i < len(args); i += 2 {
		if arg != "" || i > 1 {
			b.WriteByte(',')
		}
		b.WriteString(args[i-1])
		b.WriteString("=\"")
		b.WriteString(args[i])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// PacketCounters tracks packets handled by the interception pipeline,
// broken down by leg and outcome. Safe for concurrent use.
type PacketCounters struct {
	set *metrics.Set

	mu      sync.Mutex
	packets map[string]*metrics.Counter
	bytes   map[string]*metrics.Counter
}

// NewPacketCounters creates a PacketCounters backed by its own metrics
// set so it can be registered independently of the default registry.
func NewPacketCounters() *PacketCounters {
	return &PacketCounters{
		set:     metrics.NewSet(),
		packets: make(map[string]*metrics.Counter),
		bytes:   make(map[string]*metrics.Counter),
	}
}

// Observe increments the counter for one (direction, outcome) pair, e.g.
// direction="client", outcome="forward".
func (c *PacketCounters) Observe(direction, outcome string) {
	base, arg := splitName("bridge_packets_total")
	name := formatName(base, arg, "direction", direction, "outcome", outcome)

	c.mu.Lock()
	ctr, ok := c.packets[name]
	if !ok {
		ctr = c.set.NewCounter(name)
		c.packets[name] = ctr
	}
	c.mu.Unlock()

	ctr.Inc()
}

// ObserveBytes adds n to the byte counter for one direction.
func (c *PacketCounters) ObserveBytes(direction string, n int) {
	base, arg := splitName("bridge_packet_bytes_total")
	name := formatName(base, arg, "direction", direction)

	c.mu.Lock()
	ctr, ok := c.bytes[name]
	if !ok {
		ctr = c.set.NewCounter(name)
		c.bytes[name] = ctr
	}
	c.mu.Unlock()

	ctr.Add(n)
}

// WritePrometheus writes all counters in Prometheus exposition format.
func (c *PacketCounters) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}
