package persist

import (
	"context"
	"time"
)

// NopRecorder discards everything. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) RecordRoomCreated(context.Context, string, string, string) error {
	return nil
}

func (NopRecorder) RecordParticipantJoined(context.Context, string, string, string) (int64, error) {
	return 0, nil
}

func (NopRecorder) RecordParticipantLeft(context.Context, int64) error {
	return nil
}

func (NopRecorder) AppendChatMessage(context.Context, string, string, string, time.Time) error {
	return nil
}
