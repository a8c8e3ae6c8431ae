package ports

import (
	"context"

	"github.com/ayaproj/aya/pkg/aya"
)

// Broker publishes commands and reads retained state/presence.
type Broker interface {
	ReplyTopic() string
	PublishCommand(ctx context.Context, nodeID string, cmd aya.CommandEnvelope) (aya.ReplyEnvelope, error)
	ListPresence(ctx context.Context) ([]aya.Presence, error)
	GetPlayerState(ctx context.Context, nodeID string) (aya.PlayerState, error)
	WatchPlayer(ctx context.Context, nodeID string) (<-chan aya.PlayerState, <-chan aya.Event, <-chan error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}
