package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"

	"voiceagent-platform/internal/calls"
)

// ErrRingTimeout is returned when no caller joins the room within the ring
// window.
var ErrRingTimeout = errors.New("voice: caller did not join in time")

// RoomConfig carries everything needed to join a call's room.
type RoomConfig struct {
	URL       string
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
}

// Room wraps the SDK room connection and distills its callback stream into
// the two things the runner waits on: the caller joining and the call
// ending. Participants whose identity carries the agent prefix are our own
// kind and never count as callers.
type Room struct {
	room *lksdk.Room
	log  *slog.Logger

	mu             sync.Mutex
	callerIdentity string
	callerJoinedAt *time.Time
	callerLeftAt   *time.Time

	callerJoined chan struct{}
	ended        chan struct{}
	joinOnce     sync.Once
	endOnce      sync.Once
}

func newRoom() *Room {
	return &Room{
		log:          slog.Default(),
		callerJoined: make(chan struct{}),
		ended:        make(chan struct{}),
	}
}

// Connect joins the room and starts observing participants. Callers already
// present at connect time (SIP bridges race the agent in) are picked up from
// the initial participant list.
func Connect(cfg RoomConfig) (*Room, error) {
	r := newRoom()

	cb := &lksdk.RoomCallback{
		OnParticipantConnected: func(p *lksdk.RemoteParticipant) {
			r.handleJoin(p.Identity())
		},
		OnParticipantDisconnected: func(p *lksdk.RemoteParticipant) {
			r.handleLeave(p.Identity())
		},
		OnDisconnected: func() {
			r.markEnded()
		},
	}

	room, err := lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            cfg.RoomName,
		ParticipantIdentity: cfg.Identity,
		ParticipantName:     cfg.Identity,
	}, cb)
	if err != nil {
		return nil, err
	}
	r.room = room

	for _, p := range room.GetRemoteParticipants() {
		r.handleJoin(p.Identity())
	}
	return r, nil
}

func (r *Room) handleJoin(identity string) {
	if strings.HasPrefix(identity, calls.AgentIdentityPrefix) {
		return
	}
	now := time.Now().UTC()
	r.mu.Lock()
	if r.callerJoinedAt == nil {
		r.callerJoinedAt = &now
		r.callerIdentity = identity
	}
	r.mu.Unlock()
	r.joinOnce.Do(func() { close(r.callerJoined) })
}

func (r *Room) handleLeave(identity string) {
	if strings.HasPrefix(identity, calls.AgentIdentityPrefix) {
		return
	}
	now := time.Now().UTC()
	r.mu.Lock()
	tracked := r.callerIdentity == "" || r.callerIdentity == identity
	if tracked && r.callerLeftAt == nil {
		r.callerLeftAt = &now
	}
	r.mu.Unlock()
	if tracked {
		r.markEnded()
	}
}

func (r *Room) markEnded() {
	r.endOnce.Do(func() { close(r.ended) })
}

// WaitForCaller blocks until a caller joins, the ring window elapses, or ctx
// is done.
func (r *Room) WaitForCaller(ctx context.Context, ringTimeout time.Duration) error {
	t := time.NewTimer(ringTimeout)
	defer t.Stop()
	select {
	case <-r.callerJoined:
		return nil
	case <-r.ended:
		return ErrRingTimeout
	case <-t.C:
		return ErrRingTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForEnd blocks until the caller leaves or the room connection drops.
func (r *Room) WaitForEnd(ctx context.Context) error {
	select {
	case <-r.ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CallerTimestamps returns the observed caller join/leave times; either may
// be nil if never observed.
func (r *Room) CallerTimestamps() (joinedAt, leftAt *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyTime(r.callerJoinedAt), copyTime(r.callerLeftAt)
}

func (r *Room) CallerIdentity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callerIdentity
}

func (r *Room) Disconnect() {
	if r.room != nil {
		r.room.Disconnect()
	}
	r.markEnded()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
