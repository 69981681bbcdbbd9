package distribution

import "github.com/zsiec/mosaic/internal/mixer"

// SubscriberStats captures per-subscriber delivery metrics.
type SubscriberStats struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Sent      int64  `json:"sent"`
	Dropped   int64  `json:"dropped"`
	BytesSent int64  `json:"bytesSent"`
	LastPTSMS int64  `json:"lastPtsMs,omitempty"`
}

// RelayStats summarises everything the relay has delivered.
type RelayStats struct {
	Frames      int64             `json:"frames"`
	QoSEvents   int64             `json:"qosEvents"`
	EOS         bool              `json:"eos"`
	LastQoS     *mixer.QoSEvent   `json:"lastQos,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

// Dropped sums frames dropped across all subscribers.
func (s RelayStats) Dropped() int64 {
	var n int64
	for _, sub := range s.Subscribers {
		n += sub.Dropped
	}
	return n
}
