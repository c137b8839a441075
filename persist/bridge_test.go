package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recorderCall struct {
	op       string
	roomCode string
	recordID int64
}

type fakeRecorder struct {
	calls    []recorderCall
	nextID   int64
	failJoin bool
	failAll  bool
}

var errStore = errors.New("store is down")

func (r *fakeRecorder) RecordRoomCreated(_ context.Context, roomCode, _, _ string) error {
	r.calls = append(r.calls, recorderCall{op: "room-created", roomCode: roomCode})
	if r.failAll {
		return errStore
	}
	return nil
}

func (r *fakeRecorder) RecordParticipantJoined(_ context.Context, roomCode, _, _ string) (int64, error) {
	r.calls = append(r.calls, recorderCall{op: "joined", roomCode: roomCode})
	if r.failAll || r.failJoin {
		return 0, errStore
	}
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRecorder) RecordParticipantLeft(_ context.Context, recordID int64) error {
	r.calls = append(r.calls, recorderCall{op: "left", recordID: recordID})
	if r.failAll {
		return errStore
	}
	return nil
}

func (r *fakeRecorder) AppendChatMessage(_ context.Context, roomCode, _, _ string, _ time.Time) error {
	r.calls = append(r.calls, recorderCall{op: "chat", roomCode: roomCode})
	if r.failAll {
		return errStore
	}
	return nil
}

func newTestBridge(rec Recorder, queueSize int) *Bridge {
	logger := zerolog.Nop()
	return NewBridge(Config{
		Recorder:  rec,
		Logger:    &logger,
		QueueSize: queueSize,
	})
}

// runFlush drains everything already queued: Run takes the flush path
// immediately when the context is canceled up front.
func runFlush(b *Bridge) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go b.Run(ctx, wg)
	wg.Wait()
}

func TestBridgeMirrorsEventsInOrder(t *testing.T) {
	rec := &fakeRecorder{}
	b := newTestBridge(rec, 16)

	b.RoomCreated("ABCD", "u1", "movie-night")
	b.ParticipantJoined("ABCD", "c1", "u1", "X")
	b.ChatMessage("ABCD", "X", "hi", time.Now())
	b.ParticipantLeft("c1")
	runFlush(b)

	want := []string{"room-created", "joined", "chat", "left"}
	if len(rec.calls) != len(want) {
		t.Fatalf("expected %d recorder calls, got %d", len(want), len(rec.calls))
	}
	for i, op := range want {
		if rec.calls[i].op != op {
			t.Errorf("call %d = %q, want %q", i, rec.calls[i].op, op)
		}
	}
	if rec.calls[3].recordID != 1 {
		t.Errorf("left must carry the visit record id from the join, got %d", rec.calls[3].recordID)
	}
}

func TestLeaveWithoutVisitRecordIsSkipped(t *testing.T) {
	rec := &fakeRecorder{failJoin: true}
	b := newTestBridge(rec, 16)

	b.ParticipantJoined("ABCD", "c1", "u1", "X")
	b.ParticipantLeft("c1")
	b.ParticipantLeft("never-joined")
	runFlush(b)

	for _, c := range rec.calls {
		if c.op == "left" {
			t.Error("left must be skipped when the join was never persisted")
		}
	}
}

func TestRecorderFailuresAreSwallowed(t *testing.T) {
	rec := &fakeRecorder{failAll: true}
	b := newTestBridge(rec, 16)

	b.RoomCreated("ABCD", "u1", "")
	b.ParticipantJoined("ABCD", "c1", "u1", "X")
	b.ChatMessage("ABCD", "X", "hi", time.Now())
	runFlush(b)

	// all events attempted despite every write failing
	if len(rec.calls) != 3 {
		t.Errorf("expected 3 attempted writes, got %d", len(rec.calls))
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	b := newTestBridge(&fakeRecorder{}, 1)

	done := make(chan struct{})
	go func() {
		// no worker is running; only the first event fits
		b.ChatMessage("ABCD", "X", "one", time.Now())
		b.ChatMessage("ABCD", "X", "two", time.Now())
		b.ChatMessage("ABCD", "X", "three", time.Now())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue must never block the caller")
	}
}
