package persist

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Recorder is the durable-store collaborator. The coordinator only emits
// events toward it; it never reads live state back.
type Recorder interface {
	RecordRoomCreated(ctx context.Context, roomCode, hostIdentity, mediaRef string) error
	RecordParticipantJoined(ctx context.Context, roomCode, identity, displayName string) (int64, error)
	RecordParticipantLeft(ctx context.Context, recordID int64) error
	AppendChatMessage(ctx context.Context, roomCode, senderName, body string, sentAt time.Time) error
}

const (
	defaultQueueSize    = 512
	defaultWriteTimeout = 3 * time.Second
)

type eventKind int

const (
	evRoomCreated eventKind = iota
	evJoined
	evLeft
	evChat
)

type event struct {
	kind     eventKind
	roomCode string
	connID   string
	identity string
	name     string
	mediaRef string
	body     string
	at       time.Time
}

// Bridge mirrors room lifecycle and chat events to the Recorder without
// ever blocking the hot path: enqueueing never waits, and a full queue
// drops the event with an error log. A single worker drains the queue, so
// a join is always recorded before the matching leave.
//
// Join-visit record ids are kept in a worker-local map keyed by connection
// id; a leave whose join was never persisted is skipped (non-fatal).
type Bridge struct {
	logger  zerolog.Logger
	rec     Recorder
	queue   chan event
	timeout time.Duration
	records map[string]int64
}

type Config struct {
	Recorder     Recorder
	Logger       *zerolog.Logger
	QueueSize    int
	WriteTimeout time.Duration
}

func NewBridge(cfg Config) *Bridge {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Bridge{
		logger:  cfg.Logger.With().Str("component", "persistence-bridge").Logger(),
		rec:     cfg.Recorder,
		queue:   make(chan event, size),
		timeout: timeout,
		records: make(map[string]int64),
	}
}

func (b *Bridge) RoomCreated(roomCode, hostIdentity, mediaRef string) {
	b.enqueue(event{kind: evRoomCreated, roomCode: roomCode, identity: hostIdentity, mediaRef: mediaRef})
}

func (b *Bridge) ParticipantJoined(roomCode, connID, identity, displayName string) {
	b.enqueue(event{kind: evJoined, roomCode: roomCode, connID: connID, identity: identity, name: displayName})
}

func (b *Bridge) ParticipantLeft(connID string) {
	b.enqueue(event{kind: evLeft, connID: connID})
}

func (b *Bridge) ChatMessage(roomCode, senderName, body string, sentAt time.Time) {
	b.enqueue(event{kind: evChat, roomCode: roomCode, name: senderName, body: body, at: sentAt})
}

func (b *Bridge) enqueue(ev event) {
	select {
	case b.queue <- ev:
	default:
		b.logger.Error().
			Str("roomCode", ev.roomCode).
			Int("kind", int(ev.kind)).
			Msg("persistence queue is full, event dropped")
	}
}

// Run drains the queue until ctx is canceled, then flushes whatever is
// already queued.
func (b *Bridge) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		b.logger.Debug().Msg("bridge stopped")
		wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.queue:
					b.record(ev)
				default:
					return
				}
			}
		case ev := <-b.queue:
			b.record(ev)
		}
	}
}

// record is best effort: failures are logged and swallowed, never surfaced
// to the operations that produced the events.
func (b *Bridge) record(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var err error
	switch ev.kind {
	case evRoomCreated:
		err = b.rec.RecordRoomCreated(ctx, ev.roomCode, ev.identity, ev.mediaRef)
	case evJoined:
		var id int64
		id, err = b.rec.RecordParticipantJoined(ctx, ev.roomCode, ev.identity, ev.name)
		if err == nil {
			b.records[ev.connID] = id
		}
	case evLeft:
		id, ok := b.records[ev.connID]
		delete(b.records, ev.connID)
		if !ok {
			b.logger.Debug().
				Str("connID", ev.connID).
				Msg("no visit record for leaving participant, skipping")
			return
		}
		err = b.rec.RecordParticipantLeft(ctx, id)
	case evChat:
		err = b.rec.AppendChatMessage(ctx, ev.roomCode, ev.name, ev.body, ev.at)
	}
	if err != nil {
		b.logger.Error().Err(err).
			Str("roomCode", ev.roomCode).
			Int("kind", int(ev.kind)).
			Msg("failed to persist event")
	}
}
