package model

import "encoding/json"

// Message kinds accepted from clients.
const (
	KindJoinRoom       = "join-room"
	KindLeaveRoom      = "leave-room"
	KindSendChat       = "send-chat"
	KindSetPlayback    = "set-playback"
	KindSeek           = "seek"
	KindSetMediaStatus = "set-media-status"
	KindTyping         = "typing"
	KindStopTyping     = "stop-typing"

	// Signaling kinds are both inbound and outbound: the coordinator
	// forwards them verbatim with From re-assigned.
	KindSignalOffer     = "signal-offer"
	KindSignalAnswer    = "signal-answer"
	KindSignalCandidate = "signal-candidate"
)

// Message kinds emitted by the coordinator.
const (
	KindRoomJoined         = "room-joined"
	KindJoinError          = "join-error"
	KindSuperseded         = "superseded"
	KindParticipantJoined  = "participant-joined"
	KindParticipantLeft    = "participant-left"
	KindParticipantUpdated = "participant-updated"
	KindChatMessage        = "chat-message"
	KindPlaybackChanged    = "playback-changed"
)

// Envelope is the single wire message. Kind selects which fields are
// meaningful; unused fields are omitted on the wire. From is always
// re-assigned by the gateway from the websocket session, never trusted
// from the client.
type Envelope struct {
	Kind string `json:"kind"`
	Room string `json:"roomCode,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// join-room
	DisplayName string `json:"displayName,omitempty"`
	Identity    string `json:"identity,omitempty"`
	MediaRef    string `json:"mediaRef,omitempty"`

	// send-chat
	Body string `json:"body,omitempty"`

	// set-playback / seek
	IsPlaying bool    `json:"isPlaying,omitempty"`
	Position  float64 `json:"positionSeconds,omitempty"`

	// set-media-status
	HasVideo bool `json:"hasVideo,omitempty"`
	HasAudio bool `json:"hasAudio,omitempty"`

	// signal-*: opaque negotiation blob, passed through unparsed
	Payload json.RawMessage `json:"payload,omitempty"`

	// outbound
	Participants []Participant  `json:"participants,omitempty"`
	Participant  *Participant   `json:"participant,omitempty"`
	ChatLog      []ChatMessage  `json:"chatLog,omitempty"`
	Chat         *ChatMessage   `json:"chat,omitempty"`
	Playback     *PlaybackState `json:"playback,omitempty"`
	Error        string         `json:"error,omitempty"`
}
