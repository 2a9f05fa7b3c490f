package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	snapshotFormatVersionCurrent = 1
)

// ErrSnapshotCorrupt is returned when a persisted snapshot cannot be decoded
// into a valid [Session].
var ErrSnapshotCorrupt = errors.New("session snapshot corrupt")

type snapshotEnvelope struct {
	Version int             `json:"v"`
	Session json.RawMessage `json:"session"`
}

// Encode serializes s (minus any credential) into the snapshot format.
func Encode(s *Session) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotEnvelope{
		Version: snapshotFormatVersionCurrent,
		Session: body,
	})
}

// Decode parses a snapshot produced by [Encode].
func Decode(data []byte) (*Session, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrSnapshotCorrupt)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if env.Version != snapshotFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrSnapshotCorrupt, env.Version)
	}

	var s Session
	if err := json.Unmarshal(env.Session, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return &s, nil
}

func formatLoginAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseLoginAt(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}
