// Package history keeps the bounded lag buffers the forecaster needs between
// cycles. A History is owned by a single loop and is not safe for concurrent use.
package history

import "sort"

// Lag fields tracked by the default history.
const (
	DCPower    = "dc_power"
	Irradiance = "irradiance"
	ModuleTemp = "module_temp"
)

// Buffer is a fixed-capacity FIFO of past values for one field, oldest first.
type Buffer struct {
	values []float64
	cap    int
	fill   float64
}

// NewBuffer returns a buffer of the given capacity pre-filled with fill.
// Capacities below 1 are raised to 1.
func NewBuffer(capacity int, fill float64) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	values := make([]float64, capacity)
	for i := range values {
		values[i] = fill
	}
	return &Buffer{values: values, cap: capacity, fill: fill}
}

// Push appends v and evicts the oldest value. Buffers are always full.
func (b *Buffer) Push(v float64) {
	if len(b.values) == 0 {
		return
	}
	copy(b.values, b.values[1:])
	b.values[len(b.values)-1] = v
}

// Latest returns the value offset steps back from the newest one: 0 is the
// newest, 1 the one pushed before it. Out of range offsets return the fill value.
func (b *Buffer) Latest(offset int) float64 {
	i := len(b.values) - 1 - offset
	if offset < 0 || i < 0 {
		return b.fill
	}
	return b.values[i]
}

// Values returns a copy of the buffer, oldest first.
func (b *Buffer) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// Len returns the number of stored values.
func (b *Buffer) Len() int { return len(b.values) }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.cap }

// History is a named set of lag buffers.
type History struct {
	buffers map[string]*Buffer
	fill    float64
}

// New creates a history with one buffer per entry in capacities.
func New(capacities map[string]int, fill float64) *History {
	h := &History{buffers: make(map[string]*Buffer, len(capacities)), fill: fill}
	for field, c := range capacities {
		h.buffers[field] = NewBuffer(c, fill)
	}
	return h
}

// DefaultCapacities are the lag depths the model was trained with.
func DefaultCapacities() map[string]int {
	return map[string]int{
		DCPower:    3,
		Irradiance: 1,
		ModuleTemp: 1,
	}
}

// Default returns a zero-filled history with DefaultCapacities.
func Default() *History {
	return New(DefaultCapacities(), 0)
}

// Push appends v to field's buffer. Unknown fields are ignored.
func (h *History) Push(field string, v float64) {
	if b, ok := h.buffers[field]; ok {
		b.Push(v)
	}
}

// Latest returns field's value offset steps back from the newest.
// Unknown fields return the fill value.
func (h *History) Latest(field string, offset int) float64 {
	b, ok := h.buffers[field]
	if !ok {
		return h.fill
	}
	return b.Latest(offset)
}

// Buffer returns the named buffer, or nil.
func (h *History) Buffer(field string) *Buffer {
	return h.buffers[field]
}

// Fields returns the tracked field names, sorted.
func (h *History) Fields() []string {
	fields := make([]string, 0, len(h.buffers))
	for f := range h.buffers {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Snapshot returns a copy of every buffer's values.
func (h *History) Snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(h.buffers))
	for f, b := range h.buffers {
		out[f] = b.Values()
	}
	return out
}

// Clone returns an independent copy of h.
func (h *History) Clone() *History {
	c := &History{buffers: make(map[string]*Buffer, len(h.buffers)), fill: h.fill}
	for f, b := range h.buffers {
		c.buffers[f] = &Buffer{values: b.Values(), cap: b.cap, fill: b.fill}
	}
	return c
}
