package optimizer

import (
	"math"
)

// Experience is one (state, reward) sample.
type Experience struct {
	State  []float64 `json:"state"`
	Reward float64   `json:"reward"`
}

// MemorySummary aggregates the rewards currently held in memory.
type MemorySummary struct {
	Count      int     `json:"count"`
	MeanReward float64 `json:"mean_reward"`
	Volatility float64 `json:"volatility"`
}

// AdaptiveMemory is a FIFO experience buffer whose capacity tracks recent
// reward volatility: volatile phases widen the buffer up to MaxCapacity,
// quiet phases shrink it toward BaseCapacity. Shrinking trims oldest samples
// first; a decay stride periodically thins older entries.
type AdaptiveMemory struct {
	BaseCapacity int
	MaxCapacity  int
	MinCapacity  int
	Decay        float64

	capacity int
	buffer   []Experience
}

// NewAdaptiveMemory creates a memory with the default capacity envelope.
func NewAdaptiveMemory() *AdaptiveMemory {
	m := &AdaptiveMemory{
		BaseCapacity: 256,
		MaxCapacity:  1024,
		MinCapacity:  64,
		Decay:        0.98,
	}
	m.capacity = m.BaseCapacity
	return m
}

// Len returns the number of stored samples.
func (m *AdaptiveMemory) Len() int {
	return len(m.buffer)
}

// Capacity returns the current capacity.
func (m *AdaptiveMemory) Capacity() int {
	return m.capacity
}

// Append stores one sample and re-applies the capacity bound.
func (m *AdaptiveMemory) Append(state []float64, reward float64) {
	copied := make([]float64, len(state))
	copy(copied, state)
	m.buffer = append(m.buffer, Experience{State: copied, Reward: reward})
	m.truncate()
}

// Summary computes count, mean reward and reward volatility over the buffer.
func (m *AdaptiveMemory) Summary() MemorySummary {
	if len(m.buffer) == 0 {
		return MemorySummary{}
	}
	count := len(m.buffer)
	sum := 0.0
	for _, sample := range m.buffer {
		sum += sample.Reward
	}
	meanReward := sum / float64(count)
	variance := 0.0
	for _, sample := range m.buffer {
		diff := sample.Reward - meanReward
		variance += diff * diff
	}
	variance /= float64(count)
	return MemorySummary{
		Count:      count,
		MeanReward: meanReward,
		Volatility: math.Sqrt(variance),
	}
}

// AdaptCapacity rescales capacity toward base*(1+min(volatility,2)), clamped
// to [MinCapacity, MaxCapacity], trimming oldest samples when it shrinks.
func (m *AdaptiveMemory) AdaptCapacity(volatility float64) {
	target := int(float64(m.BaseCapacity) * (1 + math.Min(volatility, 2.0)))
	if target < m.MinCapacity {
		target = m.MinCapacity
	}
	if target > m.MaxCapacity {
		target = m.MaxCapacity
	}
	if target != m.capacity {
		m.capacity = target
		m.truncate()
	}
}

// Snapshot returns a deep copy of the buffer for persistence.
func (m *AdaptiveMemory) Snapshot() []Experience {
	out := make([]Experience, len(m.buffer))
	for i, sample := range m.buffer {
		state := make([]float64, len(sample.State))
		copy(state, sample.State)
		out[i] = Experience{State: state, Reward: sample.Reward}
	}
	return out
}

// LoadSnapshot replaces the buffer with persisted samples, re-applying the
// capacity bound.
func (m *AdaptiveMemory) LoadSnapshot(samples []Experience) {
	m.buffer = m.buffer[:0]
	for _, sample := range samples {
		state := make([]float64, len(sample.State))
		copy(state, sample.State)
		m.buffer = append(m.buffer, Experience{State: state, Reward: sample.Reward})
	}
	m.truncate()
}

func (m *AdaptiveMemory) truncate() {
	if over := len(m.buffer) - m.capacity; over > 0 {
		m.buffer = m.buffer[over:]
	}
	if len(m.buffer) < m.MinCapacity {
		return
	}
	if m.Decay >= 1.0 {
		return
	}
	// Thin older entries at the decay stride, always keeping the newest.
	stride := int(1.0 / math.Max(m.Decay, 0.1))
	if stride <= 1 {
		return
	}
	kept := m.buffer[:0]
	last := len(m.buffer) - 1
	for idx, sample := range m.buffer {
		if idx == last || idx%stride == 0 {
			kept = append(kept, sample)
		}
	}
	m.buffer = kept
}
