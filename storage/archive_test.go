package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

type fakeUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, reader io.Reader) (*UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.key, f.contentType, f.body = key, contentType, body
	return &UploadResult{Key: key, Location: "https://archive.example/" + key}, nil
}

func (f *fakeUploader) GetPublicURL(key string) string { return "https://archive.example/" + key }

func TestArchiveTournamentUploadsSnapshot(t *testing.T) {
	up := &fakeUploader{}
	archiver := NewTournamentArchiver(up, "")
	archiver.now = func() time.Time { return time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC) }

	location, err := archiver.ArchiveTournament(context.Background(), 7, []byte(`{"id":7}`))
	if err != nil {
		t.Fatalf("ArchiveTournament failed: %v", err)
	}
	wantKey := "archives/tournament-7/20260501T183000Z.json"
	if up.key != wantKey {
		t.Errorf("expected key %s, got %s", wantKey, up.key)
	}
	if up.contentType != "application/json" || string(up.body) != `{"id":7}` {
		t.Errorf("unexpected upload %s %q", up.contentType, up.body)
	}
	if location != "https://archive.example/"+wantKey {
		t.Errorf("unexpected location %s", location)
	}
}

func TestArchiveTournamentWrapsUploadError(t *testing.T) {
	boom := errors.New("bucket unavailable")
	archiver := NewTournamentArchiver(&fakeUploader{err: boom}, "snapshots")

	if _, err := archiver.ArchiveTournament(context.Background(), 1, []byte(`{}`)); !errors.Is(err, boom) {
		t.Errorf("expected wrapped upload error, got %v", err)
	}
}

func TestPublicURLJoinsBaseAndKey(t *testing.T) {
	u := &cloudflareR2Uploader{publicBaseURL: "https://cdn.example/files"}
	if got := u.GetPublicURL("/archives/a.json"); got != "https://cdn.example/files/archives/a.json" {
		t.Errorf("unexpected URL %s", got)
	}
	u.publicBaseURL = ""
	if got := u.GetPublicURL("archives/a.json"); got != "" {
		t.Errorf("expected empty URL without a base, got %s", got)
	}
}
