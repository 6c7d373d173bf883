package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventContestActivated EventType = "ContestActivated"
	EventContestCompleted EventType = "ContestCompleted"
	EventTieDetected      EventType = "TieDetected"
	EventPhaseAdvanced    EventType = "PhaseAdvanced"
)

// Event is one observable state change. Events are published only after the
// transaction that caused them has committed.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TournamentID int         `json:"tournament_id"`
	CategoryID   int         `json:"category_id,omitempty"`
	ContestID    int         `json:"contest_id,omitempty"`
	Payload      interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

func newEvent(eventType EventType, tournamentID, categoryID, contestID int, payload interface{}) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TournamentID: tournamentID,
		CategoryID:   categoryID,
		ContestID:    contestID,
		Payload:      payload,
		OccurredAt:   time.Now().UTC(),
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...Event)
}

type noopPublisher struct{}

func NewNoopPublisher() EventPublisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, ...Event) {}

// hubPublisher delivers events to the websocket clients of this instance.
type hubPublisher struct {
	hub *brackets.Hub
}

func NewHubPublisher(hub *brackets.Hub) EventPublisher {
	return &hubPublisher{hub: hub}
}

func (p *hubPublisher) Publish(_ context.Context, events ...Event) {
	for _, ev := range events {
		p.hub.BroadcastToRoom(brackets.RoomForTournament(ev.TournamentID), ev)
	}
}

const EventsChannel = "battle-tournament:events"

// RedisRelay publishes events on a Redis channel and forwards everything it
// receives on that channel to the local Hub, so every instance serves every event.
type RedisRelay struct {
	client *redis.Client
	hub    *brackets.Hub
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, hub *brackets.Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, events ...Event) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.Error("failed to marshal event", slog.String("event_type", string(ev.Type)), slog.Any("error", err))
			continue
		}
		if err := r.client.Publish(ctx, EventsChannel, payload).Err(); err != nil {
			r.logger.Warn("redis publish failed, delivering locally",
				slog.String("event_id", ev.ID), slog.Any("error", err))
			r.hub.BroadcastRaw(brackets.RoomForTournament(ev.TournamentID), payload)
		}
	}
}

// Run forwards channel messages to the local Hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var head struct {
				TournamentID int `json:"tournament_id"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil {
				r.logger.Warn("dropping malformed relay message", slog.Any("error", err))
				continue
			}
			r.hub.BroadcastRaw(brackets.RoomForTournament(head.TournamentID), []byte(msg.Payload))
		}
	}
}

// eventBuffer collects events inside a transaction.
type eventBuffer struct {
	events []Event
}

func (b *eventBuffer) add(ev Event) {
	b.events = append(b.events, ev)
}
