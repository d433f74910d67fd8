// Package bus provides the typed publish/subscribe channels that decouple
// the record state machine from contest scoring and live consumers. The
// judging core depends only on the Bus interface; the transport is an
// in-process channel on a single node and a broker (redis / AMQP) when
// running multi-node.
package bus

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/status"
)

// Event channel names
const (
	ChannelRecordChange     = "record/change"
	ChannelContestRecompute = "contest/recompute"
)

// RecordChange is published after every applied record update
type RecordChange struct {
	RecordID primitive.ObjectID `json:"rid"`
	DomainID string             `json:"domainId"`
	UID      int64              `json:"uid"`
	PID      int64              `json:"pid"`
	// ContestID is set when the record belongs to a contest
	ContestID *primitive.ObjectID `json:"tid,omitempty"`
	Status    status.Status       `json:"status"`
	Score     float64             `json:"score"`
	// Done marks the terminal update of a judging attempt
	Done bool `json:"done"`
}

// ContestRecompute requests a wholesale journal recompute of one contest
type ContestRecompute struct {
	DomainID  string             `json:"domainId"`
	ContestID primitive.ObjectID `json:"tid"`
}

// Bus carries judging events between components
type Bus interface {
	PublishRecordChange(ctx context.Context, ev *RecordChange) error
	SubscribeRecordChange() (<-chan *RecordChange, func())

	PublishContestRecompute(ctx context.Context, ev *ContestRecompute) error
	SubscribeContestRecompute() (<-chan *ContestRecompute, func())
}
