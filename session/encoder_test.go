package session

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeKeepsDependentOrder(t *testing.T) {
	data, err := Encode(testSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(data), "tok") {
		t.Fatalf("snapshot must not contain a credential: %s", data)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Dependents[0].ID != "c-1" || got.Dependents[1].ID != "c-2" {
		t.Fatalf("dependent order lost: %+v", got.Dependents)
	}
	if !got.IssuedAt.Equal(testSession().IssuedAt) {
		t.Fatalf("issuedAt mismatch: %v", got.IssuedAt)
	}
}

func TestDecodeRejectsCorruptSnapshots(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"not json":        "{{",
		"unknown version": `{"v":99,"session":{"userId":"u","role":"parent"}}`,
		"bad role":        `{"v":1,"session":{"userId":"u","role":"admin"}}`,
		"missing user":    `{"v":1,"session":{"role":"staff"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(raw)); !errors.Is(err, ErrSnapshotCorrupt) {
				t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
			}
		})
	}
}

func TestEncodeRejectsInvalidSession(t *testing.T) {
	if _, err := Encode(&Session{UserID: "u", Role: "admin"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
