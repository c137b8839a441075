package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adwski/watchparty/model"
	"github.com/adwski/watchparty/registry"
	"github.com/rs/zerolog"
)

type stubRooms struct {
	rooms map[string]model.RoomSnapshot
}

func (s *stubRooms) Get(roomCode string) (model.RoomSnapshot, error) {
	snap, ok := s.rooms[roomCode]
	if !ok {
		return model.RoomSnapshot{}, registry.ErrRoomNotFound
	}
	return snap, nil
}

type stubHistory struct {
	msgs []model.ChatMessage
}

func (s *stubHistory) RecentMessages(_ context.Context, _ string, _ int) ([]model.ChatMessage, error) {
	return s.msgs, nil
}

func newTestServer(rooms RoomService, history ChatHistory) *httptest.Server {
	logger := zerolog.Nop()
	srv := NewServer(Config{
		Logger:      &logger,
		RoomService: rooms,
		ChatHistory: history,
		ListenAddr:  ":0",
	})
	return httptest.NewServer(srv.Handler)
}

func TestRoomStatus(t *testing.T) {
	rooms := &stubRooms{rooms: map[string]model.RoomSnapshot{
		"ABCD": {
			Code:         "ABCD",
			MediaRef:     "movie-night",
			Participants: []model.Participant{{ID: "c1", DisplayName: "X"}},
			ChatLog:      []model.ChatMessage{},
			CreatedAt:    time.Now().UTC(),
		},
	}}
	ts := newTestServer(rooms, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/room/ABCD")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data model.RoomSnapshot `json:"data"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Data.Code != "ABCD" || len(body.Data.Participants) != 1 {
		t.Errorf("unexpected snapshot: %+v", body.Data)
	}
}

func TestRoomStatusNotFound(t *testing.T) {
	ts := newTestServer(&stubRooms{}, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/room/NOPE")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRoomHistoryDisabled(t *testing.T) {
	ts := newTestServer(&stubRooms{}, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/room/ABCD/history")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestRoomHistory(t *testing.T) {
	history := &stubHistory{msgs: []model.ChatMessage{
		{ID: "1", SenderName: "X", Body: "hi", SentAt: time.Now().UTC()},
	}}
	ts := newTestServer(&stubRooms{}, history)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/room/ABCD/history?limit=10")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data []model.ChatMessage `json:"data"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Body != "hi" {
		t.Errorf("unexpected history: %+v", body.Data)
	}
}
