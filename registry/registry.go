package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/adwski/watchparty/model"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
	ErrNotAMember   = errors.New("participant is not a member of this room")
)

// Fanout is the delivery plane the registry pushes state changes through.
// Implemented by the switch.
type Fanout interface {
	Connect(roomCode, connID string, wire model.Wire)
	Disconnect(roomCode, connID string)
	Broadcast(roomCode, exclude string, env model.Envelope)
	Send(roomCode, connID string, env model.Envelope) bool
}

type member struct {
	model.Participant
	wire model.Wire
}

// room state is guarded by its own mutex so operations on different rooms
// never block each other. Fan-out calls happen while the room is locked:
// that is what gives chat its single total order per room, and it is safe
// because the switch never awaits delivery.
type room struct {
	mu        sync.Mutex
	code      string
	host      string
	mediaRef  string
	playback  *model.PlaybackState
	members   []*member // join order
	byConn    map[string]*member
	chatLog   []model.ChatMessage
	createdAt time.Time
	destroyed bool
}

// Registry owns the authoritative in-memory state of every active room.
// A room exists here iff it has at least one participant: the first join
// creates it, the last leave destroys it, and nothing survives destruction.
type Registry struct {
	logger   zerolog.Logger
	fanout   Fanout
	mx       *sync.Mutex
	rooms    map[string]*room
	chatTail int
}

type Config struct {
	Fanout   Fanout
	Logger   *zerolog.Logger
	ChatTail int
}

const defaultChatTail = 300

func New(cfg Config) *Registry {
	tail := cfg.ChatTail
	if tail <= 0 {
		tail = defaultChatTail
	}
	return &Registry{
		logger:   cfg.Logger.With().Str("component", "registry").Logger(),
		fanout:   cfg.Fanout,
		mx:       &sync.Mutex{},
		rooms:    make(map[string]*room),
		chatTail: tail,
	}
}

type JoinParams struct {
	RoomCode    string
	ConnID      string
	Identity    string
	DisplayName string
	MediaRef    string
	Wire        model.Wire
}

type JoinResult struct {
	Participant   model.Participant
	Snapshot      model.RoomSnapshot
	Created       bool   // this join created the room
	Rejoined      bool   // duplicate join on an already-member connection
	EvictedConnID string // stale connection with the same identity, already removed
}

// Join admits a connection into a room, creating the room when it does not
// exist. If another live connection in the room carries the same non-empty
// identity, it is sent a superseded notice, killed and removed before the
// new connection is admitted. A duplicate join on an already-member
// connection is idempotent.
func (r *Registry) Join(p JoinParams) JoinResult {
	for {
		r.mx.Lock()
		rm, ok := r.rooms[p.RoomCode]
		if !ok {
			m := newMember(p)
			rm = &room{
				code:      p.RoomCode,
				host:      p.Identity,
				mediaRef:  p.MediaRef,
				members:   []*member{m},
				byConn:    map[string]*member{p.ConnID: m},
				createdAt: time.Now().UTC(),
			}
			r.rooms[p.RoomCode] = rm
			r.fanout.Connect(p.RoomCode, p.ConnID, p.Wire)
			res := JoinResult{
				Participant: m.Participant,
				Snapshot:    rm.snapshotLocked(),
				Created:     true,
			}
			r.sendJoined(res)
			r.mx.Unlock()
			r.logger.Debug().
				Str("roomCode", p.RoomCode).
				Str("connID", p.ConnID).
				Msg("room created")
			return res
		}
		r.mx.Unlock()

		rm.mu.Lock()
		if rm.destroyed {
			// lost the race against the last leave, start over
			rm.mu.Unlock()
			continue
		}
		if m, already := rm.byConn[p.ConnID]; already {
			res := JoinResult{
				Participant: m.Participant,
				Snapshot:    rm.snapshotLocked(),
				Rejoined:    true,
			}
			r.sendJoined(res)
			rm.mu.Unlock()
			return res
		}

		evicted := r.evictStaleLocked(rm, p.Identity)

		m := newMember(p)
		rm.members = append(rm.members, m)
		rm.byConn[p.ConnID] = m
		r.fanout.Connect(p.RoomCode, p.ConnID, p.Wire)
		res := JoinResult{
			Participant:   m.Participant,
			Snapshot:      rm.snapshotLocked(),
			EvictedConnID: evicted,
		}
		r.sendJoined(res)
		r.fanout.Broadcast(p.RoomCode, p.ConnID, model.Envelope{
			Kind:         model.KindParticipantJoined,
			Room:         p.RoomCode,
			Participants: rm.rosterLocked(),
			Participant:  &m.Participant,
		})
		rm.mu.Unlock()

		r.logger.Debug().
			Str("roomCode", p.RoomCode).
			Str("connID", p.ConnID).
			Str("evicted", evicted).
			Msg("participant joined")
		return res
	}
}

// evictStaleLocked enforces at-most-one live connection per identity per
// room. Anonymous participants (empty identity) are never deduplicated.
func (r *Registry) evictStaleLocked(rm *room, identity string) string {
	if identity == "" {
		return ""
	}
	for i, m := range rm.members {
		if m.Identity != identity {
			continue
		}
		r.fanout.Send(rm.code, m.ID, model.Envelope{
			Kind: model.KindSuperseded,
			Room: rm.code,
		})
		r.fanout.Disconnect(rm.code, m.ID)
		m.wire.Kill()
		rm.members = append(rm.members[:i], rm.members[i+1:]...)
		delete(rm.byConn, m.ID)
		return m.ID
	}
	return ""
}

// sendJoined delivers the room-joined reply to the joiner while the room is
// still locked, so the snapshot cannot be overtaken by a broadcast produced
// right after the join.
func (r *Registry) sendJoined(res JoinResult) {
	snap := res.Snapshot
	r.fanout.Send(snap.Code, res.Participant.ID, model.Envelope{
		Kind:         model.KindRoomJoined,
		Room:         snap.Code,
		MediaRef:     snap.MediaRef,
		Participants: snap.Participants,
		ChatLog:      snap.ChatLog,
		Playback:     snap.Playback,
		Participant:  &res.Participant,
	})
}

type LeaveResult struct {
	Participant model.Participant
	Destroyed   bool // the leaving participant was the last one
}

// Leave removes a connection from a room, destroying the room when it
// empties. Disconnect handling runs through this same path.
func (r *Registry) Leave(roomCode, connID string) (LeaveResult, error) {
	rm, err := r.room(roomCode)
	if err != nil {
		return LeaveResult{}, err
	}

	rm.mu.Lock()
	m, ok := rm.byConn[connID]
	if !ok {
		rm.mu.Unlock()
		return LeaveResult{}, ErrNotAMember
	}
	for i, mm := range rm.members {
		if mm.ID == connID {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			break
		}
	}
	delete(rm.byConn, connID)
	r.fanout.Disconnect(roomCode, connID)

	res := LeaveResult{Participant: m.Participant}
	if len(rm.members) == 0 {
		rm.destroyed = true
		res.Destroyed = true
	} else {
		r.fanout.Broadcast(roomCode, connID, model.Envelope{
			Kind:         model.KindParticipantLeft,
			Room:         roomCode,
			Participants: rm.rosterLocked(),
			Participant:  &m.Participant,
		})
	}
	rm.mu.Unlock()

	if res.Destroyed {
		r.mx.Lock()
		if r.rooms[roomCode] == rm {
			delete(r.rooms, roomCode)
		}
		r.mx.Unlock()
		r.logger.Debug().Str("roomCode", roomCode).Msg("room destroyed")
	}
	return res, nil
}

// Get returns a snapshot of a live room.
func (r *Registry) Get(roomCode string) (model.RoomSnapshot, error) {
	rm, err := r.room(roomCode)
	if err != nil {
		return model.RoomSnapshot{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.destroyed {
		return model.RoomSnapshot{}, ErrRoomNotFound
	}
	return rm.snapshotLocked(), nil
}

func (r *Registry) room(roomCode string) (*room, error) {
	r.mx.Lock()
	rm, ok := r.rooms[roomCode]
	r.mx.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

func newMember(p JoinParams) *member {
	return &member{
		Participant: model.Participant{
			ID:          p.ConnID,
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
		},
		wire: p.Wire,
	}
}

func newChatID() string {
	return ulid.Make().String()
}

func (rm *room) rosterLocked() []model.Participant {
	roster := make([]model.Participant, 0, len(rm.members))
	for _, m := range rm.members {
		roster = append(roster, m.Participant)
	}
	return roster
}

func (rm *room) snapshotLocked() model.RoomSnapshot {
	snap := model.RoomSnapshot{
		Code:         rm.code,
		HostIdentity: rm.host,
		MediaRef:     rm.mediaRef,
		Participants: rm.rosterLocked(),
		ChatLog:      append(make([]model.ChatMessage, 0, len(rm.chatLog)), rm.chatLog...),
		CreatedAt:    rm.createdAt,
	}
	if rm.playback != nil {
		pb := *rm.playback
		snap.Playback = &pb
	}
	return snap
}
