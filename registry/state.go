package registry

import (
	"time"

	"github.com/adwski/watchparty/model"
)

// SetPlayback applies a play-pause transition and broadcasts the new state
// to every other participant. The sender caused the change locally and
// never receives an echo of its own command. Reapplying an identical state
// leaves the room untouched, timestamp included.
func (r *Registry) SetPlayback(roomCode, connID string, isPlaying bool, position float64) (model.PlaybackState, error) {
	rm, err := r.room(roomCode)
	if err != nil {
		return model.PlaybackState{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.byConn[connID]; !ok || rm.destroyed {
		return model.PlaybackState{}, ErrNotAMember
	}

	cur := rm.playback
	if cur == nil || cur.IsPlaying != isPlaying || cur.Position != position {
		rm.playback = &model.PlaybackState{
			Position:  position,
			IsPlaying: isPlaying,
			UpdatedAt: time.Now().UTC(),
		}
	}
	st := *rm.playback
	r.fanout.Broadcast(roomCode, connID, model.Envelope{
		Kind:     model.KindPlaybackChanged,
		Room:     roomCode,
		From:     connID,
		Playback: &st,
	})
	return st, nil
}

// Seek moves the position and keeps the play/pause state as is.
func (r *Registry) Seek(roomCode, connID string, position float64) (model.PlaybackState, error) {
	rm, err := r.room(roomCode)
	if err != nil {
		return model.PlaybackState{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.byConn[connID]; !ok || rm.destroyed {
		return model.PlaybackState{}, ErrNotAMember
	}

	cur := rm.playback
	switch {
	case cur == nil:
		rm.playback = &model.PlaybackState{
			Position:  position,
			UpdatedAt: time.Now().UTC(),
		}
	case cur.Position != position:
		rm.playback = &model.PlaybackState{
			Position:  position,
			IsPlaying: cur.IsPlaying,
			UpdatedAt: time.Now().UTC(),
		}
	}
	st := *rm.playback
	r.fanout.Broadcast(roomCode, connID, model.Envelope{
		Kind:     model.KindPlaybackChanged,
		Room:     roomCode,
		From:     connID,
		Playback: &st,
	})
	return st, nil
}

// AppendChat appends a message in receipt order and broadcasts it to the
// whole room, sender included, so every client renders the server-assigned
// order instead of locally echoing its own message. The in-memory log keeps
// only the most recent tail; older history lives in the durable store.
func (r *Registry) AppendChat(roomCode, connID, body string) (model.ChatMessage, error) {
	rm, err := r.room(roomCode)
	if err != nil {
		return model.ChatMessage{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	m, ok := rm.byConn[connID]
	if !ok || rm.destroyed {
		return model.ChatMessage{}, ErrNotAMember
	}

	msg := model.ChatMessage{
		ID:         newChatID(),
		SenderName: m.DisplayName,
		Body:       body,
		SentAt:     time.Now().UTC(),
	}
	rm.chatLog = append(rm.chatLog, msg)
	if len(rm.chatLog) > r.chatTail {
		rm.chatLog = rm.chatLog[len(rm.chatLog)-r.chatTail:]
	}
	r.fanout.Broadcast(roomCode, "", model.Envelope{
		Kind: model.KindChatMessage,
		Room: roomCode,
		From: connID,
		Chat: &msg,
	})
	return msg, nil
}

// SetMediaStatus records a participant's self-reported call device state
// and tells everyone else.
func (r *Registry) SetMediaStatus(roomCode, connID string, hasVideo, hasAudio bool) (model.Participant, error) {
	rm, err := r.room(roomCode)
	if err != nil {
		return model.Participant{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	m, ok := rm.byConn[connID]
	if !ok || rm.destroyed {
		return model.Participant{}, ErrNotAMember
	}

	m.HasVideo = hasVideo
	m.HasAudio = hasAudio
	r.fanout.Broadcast(roomCode, connID, model.Envelope{
		Kind:         model.KindParticipantUpdated,
		Room:         roomCode,
		Participants: rm.rosterLocked(),
		Participant:  &m.Participant,
	})
	return m.Participant, nil
}
