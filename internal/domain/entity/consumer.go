package entity

import "time"

// DeliverPolicy selects where a new consumer starts.
type DeliverPolicy int

const (
	DeliverAll DeliverPolicy = iota
	DeliverByStartTime
)

func (p DeliverPolicy) String() string {
	switch p {
	case DeliverAll:
		return "all"
	case DeliverByStartTime:
		return "by_start_time"
	}
	return "unknown"
}

// AllSubjects is the universal subject wildcard.
const AllSubjects = ">"

// ConsumerSpec is the configuration of one ephemeral, push-style consumer.
// These consumers never acknowledge and always replay instantly, so neither
// is configurable here.
type ConsumerSpec struct {
	Stream        string
	FilterSubject string
	Description   string
	DeliverPolicy DeliverPolicy
	StartTime     time.Time
}
