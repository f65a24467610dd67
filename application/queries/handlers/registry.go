package handlers

import (
	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/application/queries"
	"stash-backend/application/queries/bus"
	"stash-backend/application/services"
)

// Deps bundles everything the read-side handlers need.
type Deps struct {
	EntityRepo    ports.EntityRepository
	HistoryRepo   ports.HistoryRepository
	RelRepo       ports.RelationshipRepository
	Reconstructor *services.Reconstructor
	Logger        *zap.Logger
}

// Registration pairs a query with its handler for bus wiring.
type Registration struct {
	Query   bus.Query
	Handler bus.QueryHandler
}

// Registrations returns every query handler, ready to register on a bus.
func Registrations(d Deps) []Registration {
	return []Registration{
		{queries.GetEntityQuery{}, NewGetEntityHandler(d.EntityRepo, d.Logger)},
		{queries.ListEntitiesQuery{}, NewListEntitiesHandler(d.EntityRepo, d.Logger)},
		{queries.CheckStalenessQuery{}, NewCheckStalenessHandler(d.EntityRepo, d.Logger)},
		{queries.ListEntityHistoryQuery{}, NewListEntityHistoryHandler(d.HistoryRepo, d.Logger)},
		{queries.ListUserHistoryQuery{}, NewListUserHistoryHandler(d.HistoryRepo, d.Logger)},
		{queries.DiffVersionQuery{}, NewDiffVersionHandler(d.Reconstructor, d.Logger)},
		{queries.ListRelationshipsQuery{}, NewListRelationshipsHandler(d.RelRepo, d.EntityRepo, d.Logger)},
	}
}
