package state

import (
	"context"

	"newswire/internal/components"
	"newswire/internal/config"
	"newswire/internal/core"
	"newswire/internal/storage"
)

// State is everything a command needs once the components are up. Fields
// for stages that were not requested stay nil.
type State struct {
	Config       *config.Config
	Registry     *components.Registry
	Taxonomy     *config.Taxonomy
	Store        storage.StorageInterface
	Fetch        *core.FetchRunner
	Orchestrator *core.Orchestrator
	Summary      *core.SummaryJob
}

func NewState(cfg *config.Config, registry *components.Registry, taxonomy *config.Taxonomy) *State {
	return &State{
		Config:   cfg,
		Registry: registry,
		Taxonomy: taxonomy,
	}
}

// Jobs lists the scheduled stages with their intervals.
func (s *State) Jobs() map[core.Job]string {
	jobs := make(map[core.Job]string)
	if s.Fetch != nil {
		jobs[s.Fetch] = s.Config.Schedule.FetchInterval
	}
	if s.Orchestrator != nil {
		jobs[&core.ClassifyJob{Orchestrator: s.Orchestrator, Raw: s.Store.Raw()}] = s.Config.Schedule.ClassifyInterval
		jobs[&core.ReclassifyJob{Orchestrator: s.Orchestrator}] = s.Config.Schedule.ReclassifyInterval
	}
	if s.Summary != nil {
		jobs[s.Summary] = s.Config.Schedule.SummaryInterval
	}
	return jobs
}

func (s *State) Close(ctx context.Context) error {
	return s.Registry.CloseAll(ctx)
}
