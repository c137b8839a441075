package _switch

import (
	"testing"

	"github.com/adwski/watchparty/model"
	"github.com/rs/zerolog"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

func drain(wire model.Wire) []model.Envelope {
	var out []model.Envelope
	for {
		select {
		case env := <-wire.TX:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	sw := newTestSwitch()

	w1, w2, w3 := model.NewWire(8), model.NewWire(8), model.NewWire(8)
	sw.Connect("room", "c1", w1)
	sw.Connect("room", "c2", w2)
	sw.Connect("room", "c3", w3)

	sw.Broadcast("room", "c1", model.Envelope{Kind: model.KindPlaybackChanged})

	if got := drain(w1); len(got) != 0 {
		t.Errorf("excluded endpoint received %d envelopes", len(got))
	}
	for name, w := range map[string]model.Wire{"c2": w2, "c3": w3} {
		if got := drain(w); len(got) != 1 {
			t.Errorf("%s received %d envelopes, want 1", name, len(got))
		}
	}
}

func TestBroadcastWithoutExcludeReachesEveryone(t *testing.T) {
	sw := newTestSwitch()

	w1, w2 := model.NewWire(8), model.NewWire(8)
	sw.Connect("room", "c1", w1)
	sw.Connect("room", "c2", w2)

	sw.Broadcast("room", "", model.Envelope{Kind: model.KindChatMessage})

	for name, w := range map[string]model.Wire{"c1": w1, "c2": w2} {
		if got := drain(w); len(got) != 1 {
			t.Errorf("%s received %d envelopes, want 1", name, len(got))
		}
	}
}

func TestSendTargetsSingleEndpoint(t *testing.T) {
	sw := newTestSwitch()

	w1, w2 := model.NewWire(8), model.NewWire(8)
	sw.Connect("room", "c1", w1)
	sw.Connect("room", "c2", w2)

	if !sw.Send("room", "c2", model.Envelope{Kind: model.KindSignalOffer}) {
		t.Fatal("send to a live endpoint must succeed")
	}
	if got := drain(w1); len(got) != 0 {
		t.Errorf("non-target endpoint received %d envelopes", len(got))
	}
	if got := drain(w2); len(got) != 1 || got[0].Kind != model.KindSignalOffer {
		t.Errorf("target endpoint got %v", got)
	}
}

func TestSendToUnknownEndpointIsSilentlyDropped(t *testing.T) {
	sw := newTestSwitch()

	w1 := model.NewWire(8)
	sw.Connect("room", "c1", w1)

	if sw.Send("room", "ghost", model.Envelope{Kind: model.KindSignalOffer}) {
		t.Error("send to an unknown endpoint must report no delivery")
	}
	if sw.Send("other-room", "c1", model.Envelope{Kind: model.KindSignalOffer}) {
		t.Error("endpoints are only reachable within their own room")
	}
	if got := drain(w1); len(got) != 0 {
		t.Errorf("dropped send must produce no delivery, got %d", len(got))
	}
}

func TestDisconnectedEndpointIsUnreachable(t *testing.T) {
	sw := newTestSwitch()

	w1, w2 := model.NewWire(8), model.NewWire(8)
	sw.Connect("room", "c1", w1)
	sw.Connect("room", "c2", w2)
	sw.Disconnect("room", "c1")

	sw.Broadcast("room", "", model.Envelope{Kind: model.KindChatMessage})
	if got := drain(w1); len(got) != 0 {
		t.Errorf("disconnected endpoint received %d envelopes", len(got))
	}
	if got := drain(w2); len(got) != 1 {
		t.Errorf("remaining endpoint received %d envelopes, want 1", len(got))
	}
}

func TestFullBufferDoesNotStallOthers(t *testing.T) {
	sw := newTestSwitch()

	dead, live := model.NewWire(1), model.NewWire(8)
	sw.Connect("room", "dead", dead)
	sw.Connect("room", "live", live)

	// fill the dead endpoint's buffer
	sw.Send("room", "dead", model.Envelope{Kind: model.KindChatMessage})

	// must not block and must still reach the live endpoint
	sw.Broadcast("room", "", model.Envelope{Kind: model.KindChatMessage})

	if got := drain(live); len(got) != 1 {
		t.Errorf("live endpoint received %d envelopes, want 1", len(got))
	}
	if got := drain(dead); len(got) != 1 {
		t.Errorf("dead endpoint should hold only the first envelope, got %d", len(got))
	}
}
