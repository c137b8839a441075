package model

import (
	"sync"
	"time"
)

// Participant is one live connection's membership in a room.
// ID is the ephemeral connection id assigned by the gateway; it is not
// stable across reconnects. Identity is the external stable user reference
// and may be empty for anonymous display-name-only participants.
type Participant struct {
	ID          string `json:"id"`
	Identity    string `json:"identity,omitempty"`
	DisplayName string `json:"displayName"`
	HasVideo    bool   `json:"hasVideo"`
	HasAudio    bool   `json:"hasAudio"`
}

// PlaybackState is the shared play/pause/position clock for rooms with a
// synchronized player. UpdatedAt lets a receiver discard a stale update
// delivered after a newer one it already applied.
type PlaybackState struct {
	Position  float64   `json:"positionSeconds"`
	IsPlaying bool      `json:"isPlaying"`
	UpdatedAt time.Time `json:"lastUpdatedAt"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	SenderName string    `json:"senderDisplayName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// RoomSnapshot is a read-only view of room state, handed to a joiner in
// room-joined and to the status API.
type RoomSnapshot struct {
	Code         string         `json:"roomCode"`
	HostIdentity string         `json:"hostIdentity,omitempty"`
	MediaRef     string         `json:"mediaRef,omitempty"`
	Participants []Participant  `json:"participants"`
	ChatLog      []ChatMessage  `json:"chatLog"`
	Playback     *PlaybackState `json:"playback,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Wire is the outbound half of a connection: the gateway's writer pump
// drains TX, and Kill tells the gateway to close the underlying transport
// after draining whatever is already queued (used when a connection is
// superseded by a newer one carrying the same identity).
type Wire struct {
	TX   chan Envelope
	kill chan struct{}
	once *sync.Once
}

func NewWire(buffer int) Wire {
	return Wire{
		TX:   make(chan Envelope, buffer),
		kill: make(chan struct{}),
		once: &sync.Once{},
	}
}

// Kill is idempotent.
func (w Wire) Kill() {
	w.once.Do(func() { close(w.kill) })
}

func (w Wire) Killed() <-chan struct{} {
	return w.kill
}
