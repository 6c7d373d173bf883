package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// TournamentArchiver uploads JSON snapshots of completed tournaments.
type TournamentArchiver struct {
	uploader ObjectUploader
	prefix   string
	now      func() time.Time
}

func NewTournamentArchiver(uploader ObjectUploader, prefix string) *TournamentArchiver {
	if prefix == "" {
		prefix = "archives"
	}
	return &TournamentArchiver{uploader: uploader, prefix: prefix, now: time.Now}
}

// ArchiveKey is archives/tournament-<id>/<UTC timestamp>.json.
func (a *TournamentArchiver) ArchiveKey(tournamentID int) string {
	return fmt.Sprintf("%s/tournament-%d/%s.json", a.prefix, tournamentID, a.now().UTC().Format("20060102T150405Z"))
}

func (a *TournamentArchiver) ArchiveTournament(ctx context.Context, tournamentID int, snapshot []byte) (string, error) {
	res, err := a.uploader.Upload(ctx, a.ArchiveKey(tournamentID), "application/json", bytes.NewReader(snapshot))
	if err != nil {
		return "", fmt.Errorf("failed to archive tournament %d: %w", tournamentID, err)
	}
	return res.Location, nil
}
