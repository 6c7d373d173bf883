package services

import (
	"log/slog"

	"github.com/Dosada05/battle-tournament/repositories"
)

// Engine groups the services that make up the tournament progression engine.
type Engine struct {
	Registration RegistrationService
	Generator    ContestGenerator
	Outcomes     OutcomeRecorder
	Ties         TieResolver
	Queue        QueueManager
	Phases       PhaseController
	Overview     OverviewService
}

// NewEngine wires every service on one repository set. publisher and archiver may be nil.
func NewEngine(repos *repositories.Repositories, publisher EventPublisher, archiver Archiver, logger *slog.Logger) *Engine {
	if publisher == nil {
		publisher = NewNoopPublisher()
	}
	queue := NewQueueManager(repos, publisher, logger)
	overview := NewOverviewService(repos, queue, logger)
	return &Engine{
		Registration: NewRegistrationService(repos, logger),
		Generator:    NewContestGenerator(repos, logger),
		Outcomes:     NewOutcomeRecorder(repos, publisher, logger),
		Ties:         NewTieResolver(repos, publisher, logger),
		Queue:        queue,
		Phases:       NewPhaseController(repos, overview, archiver, publisher, logger),
		Overview:     overview,
	}
}
