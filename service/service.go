package service

import (
	"sync"
	"time"

	"github.com/adwski/watchparty/model"
	"github.com/adwski/watchparty/registry"
	"github.com/rs/zerolog"
)

type (
	// Registry is the control plane: all room state mutations go through it.
	Registry interface {
		Join(p registry.JoinParams) registry.JoinResult
		Leave(roomCode, connID string) (registry.LeaveResult, error)
		AppendChat(roomCode, connID, body string) (model.ChatMessage, error)
		SetPlayback(roomCode, connID string, isPlaying bool, position float64) (model.PlaybackState, error)
		Seek(roomCode, connID string, position float64) (model.PlaybackState, error)
		SetMediaStatus(roomCode, connID string, hasVideo, hasAudio bool) (model.Participant, error)
	}

	// Relay is the delivery plane, used directly for the stateless kinds
	// (typing indicators and call signaling) that touch no room state.
	Relay interface {
		Broadcast(roomCode, exclude string, env model.Envelope)
		Send(roomCode, connID string, env model.Envelope) bool
	}

	// Bridge receives fire-and-forget persistence events.
	Bridge interface {
		RoomCreated(roomCode, hostIdentity, mediaRef string)
		ParticipantJoined(roomCode, connID, identity, displayName string)
		ParticipantLeft(connID string)
		ChatMessage(roomCode, senderName, body string, sentAt time.Time)
	}

	// Service dispatches inbound envelopes from the gateway to the registry
	// and the relay, and mirrors discrete events to the persistence bridge.
	// It tracks which room each live connection is in; a connection is in at
	// most one room at a time.
	Service struct {
		logger   zerolog.Logger
		reg      Registry
		relay    Relay
		bridge   Bridge
		mx       *sync.Mutex
		sessions map[string]*session
	}

	Config struct {
		Registry Registry
		Relay    Relay
		Bridge   Bridge
		Logger   *zerolog.Logger
	}

	session struct {
		roomCode    string
		displayName string
	}
)

func New(cfg Config) *Service {
	return &Service{
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
		reg:      cfg.Registry,
		relay:    cfg.Relay,
		bridge:   cfg.Bridge,
		mx:       &sync.Mutex{},
		sessions: make(map[string]*session),
	}
}

// Handle processes one inbound envelope. From is re-assigned from the
// connection, never trusted from the payload; this is what makes sender
// exclusion on broadcasts structural instead of guess-based.
func (svc *Service) Handle(connID string, wire model.Wire, env model.Envelope) {
	env.From = connID

	switch env.Kind {
	case model.KindJoinRoom:
		svc.join(connID, wire, env)
	case model.KindLeaveRoom:
		svc.leave(connID, env.Room)
	case model.KindSendChat:
		svc.chat(connID, env)
	case model.KindSetPlayback:
		svc.setPlayback(connID, env)
	case model.KindSeek:
		svc.seek(connID, env)
	case model.KindSetMediaStatus:
		svc.setMediaStatus(connID, env)
	case model.KindTyping, model.KindStopTyping:
		svc.typing(connID, env)
	case model.KindSignalOffer, model.KindSignalAnswer, model.KindSignalCandidate:
		svc.signal(connID, env)
	default:
		svc.logger.Debug().
			Str("connID", connID).
			Str("kind", env.Kind).
			Msg("unknown message kind, dropped")
	}
}

// Disconnect runs the same leave path an explicit leave-room takes, so the
// registry never reports a dead connection as live.
func (svc *Service) Disconnect(connID string) {
	svc.mx.Lock()
	sess := svc.sessions[connID]
	delete(svc.sessions, connID)
	svc.mx.Unlock()
	if sess == nil {
		return
	}
	svc.finishLeave(sess.roomCode, connID)
}

func (svc *Service) join(connID string, wire model.Wire, env model.Envelope) {
	svc.mx.Lock()
	sess := svc.sessions[connID]
	svc.mx.Unlock()

	if sess != nil && sess.roomCode != env.Room {
		// one room per connection; reply directly, the connection is not
		// wired into the target room's fan-out
		select {
		case wire.TX <- model.Envelope{
			Kind:  model.KindJoinError,
			Room:  env.Room,
			Error: "connection is already in another room",
		}:
		default:
		}
		svc.logger.Debug().
			Str("connID", connID).
			Str("roomCode", env.Room).
			Str("currentRoom", sess.roomCode).
			Msg("join rejected, connection already in a room")
		return
	}

	res := svc.reg.Join(registry.JoinParams{
		RoomCode:    env.Room,
		ConnID:      connID,
		Identity:    env.Identity,
		DisplayName: env.DisplayName,
		MediaRef:    env.MediaRef,
		Wire:        wire,
	})

	svc.mx.Lock()
	svc.sessions[connID] = &session{roomCode: env.Room, displayName: res.Participant.DisplayName}
	svc.mx.Unlock()

	if res.Rejoined {
		return
	}
	if res.EvictedConnID != "" {
		svc.bridge.ParticipantLeft(res.EvictedConnID)
	}
	if res.Created {
		svc.bridge.RoomCreated(env.Room, env.Identity, env.MediaRef)
	}
	svc.bridge.ParticipantJoined(env.Room, connID, env.Identity, res.Participant.DisplayName)

	svc.logger.Debug().
		Str("connID", connID).
		Str("roomCode", env.Room).
		Bool("created", res.Created).
		Msg("participant joined room")
}

func (svc *Service) leave(connID, roomCode string) {
	svc.mx.Lock()
	sess := svc.sessions[connID]
	if sess != nil && sess.roomCode == roomCode {
		delete(svc.sessions, connID)
	}
	svc.mx.Unlock()

	if sess == nil || sess.roomCode != roomCode {
		svc.logger.Debug().
			Str("connID", connID).
			Str("roomCode", roomCode).
			Msg("leave for a room the connection is not in, dropped")
		return
	}
	svc.finishLeave(roomCode, connID)
}

func (svc *Service) finishLeave(roomCode, connID string) {
	res, err := svc.reg.Leave(roomCode, connID)
	if err != nil {
		// expected race: the participant was evicted or the room destroyed
		svc.logger.Debug().Err(err).
			Str("connID", connID).
			Str("roomCode", roomCode).
			Msg("nothing to leave")
		return
	}
	svc.bridge.ParticipantLeft(connID)
	svc.logger.Debug().
		Str("connID", connID).
		Str("roomCode", roomCode).
		Bool("destroyed", res.Destroyed).
		Msg("participant left room")
}

func (svc *Service) chat(connID string, env model.Envelope) {
	roomCode, ok := svc.roomOf(connID, env.Room)
	if !ok {
		return
	}
	msg, err := svc.reg.AppendChat(roomCode, connID, env.Body)
	if err != nil {
		svc.logger.Debug().Err(err).Str("connID", connID).Msg("chat dropped")
		return
	}
	svc.bridge.ChatMessage(roomCode, msg.SenderName, msg.Body, msg.SentAt)
}

func (svc *Service) setPlayback(connID string, env model.Envelope) {
	roomCode, ok := svc.roomOf(connID, env.Room)
	if !ok {
		return
	}
	if _, err := svc.reg.SetPlayback(roomCode, connID, env.IsPlaying, env.Position); err != nil {
		svc.logger.Debug().Err(err).Str("connID", connID).Msg("set-playback dropped")
	}
}

func (svc *Service) seek(connID string, env model.Envelope) {
	roomCode, ok := svc.roomOf(connID, env.Room)
	if !ok {
		return
	}
	if _, err := svc.reg.Seek(roomCode, connID, env.Position); err != nil {
		svc.logger.Debug().Err(err).Str("connID", connID).Msg("seek dropped")
	}
}

func (svc *Service) setMediaStatus(connID string, env model.Envelope) {
	roomCode, ok := svc.roomOf(connID, env.Room)
	if !ok {
		return
	}
	if _, err := svc.reg.SetMediaStatus(roomCode, connID, env.HasVideo, env.HasAudio); err != nil {
		svc.logger.Debug().Err(err).Str("connID", connID).Msg("set-media-status dropped")
	}
}

// typing indicators are ephemeral: no room state, no persistence, just a
// fan-out to everyone but the typist.
func (svc *Service) typing(connID string, env model.Envelope) {
	svc.mx.Lock()
	sess := svc.sessions[connID]
	svc.mx.Unlock()
	if sess == nil || sess.roomCode != env.Room {
		return
	}
	svc.relay.Broadcast(sess.roomCode, connID, model.Envelope{
		Kind:        env.Kind,
		Room:        sess.roomCode,
		From:        connID,
		DisplayName: sess.displayName,
	})
}

// signal forwards a negotiation envelope to exactly one peer. The payload
// is opaque and never parsed. A target outside the sender's room is simply
// not in that room's forwarding table, so the envelope dies here; the
// target having just disconnected is the same non-exceptional race.
func (svc *Service) signal(connID string, env model.Envelope) {
	svc.mx.Lock()
	sess := svc.sessions[connID]
	svc.mx.Unlock()
	if sess == nil {
		svc.logger.Debug().
			Str("connID", connID).
			Str("kind", env.Kind).
			Msg("signaling from a connection with no room, dropped")
		return
	}
	svc.relay.Send(sess.roomCode, env.To, model.Envelope{
		Kind:    env.Kind,
		Room:    sess.roomCode,
		From:    connID,
		To:      env.To,
		Payload: env.Payload,
	})
}

// roomOf validates that the connection is in the room it claims to address.
// A mismatch is a policy violation: dropped, logged, no client-visible error.
func (svc *Service) roomOf(connID, claimed string) (string, bool) {
	svc.mx.Lock()
	sess := svc.sessions[connID]
	svc.mx.Unlock()
	if sess == nil || sess.roomCode != claimed {
		svc.logger.Debug().
			Str("connID", connID).
			Str("roomCode", claimed).
			Msg("message for a room the connection is not in, dropped")
		return "", false
	}
	return sess.roomCode, true
}
