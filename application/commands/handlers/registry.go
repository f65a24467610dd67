package handlers

import (
	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	"stash-backend/application/services"
	"stash-backend/domain/core/validators"
)

// Deps bundles everything the write-side handlers need.
type Deps struct {
	EntityRepo    ports.EntityRepository
	RelRepo       ports.RelationshipRepository
	UnitOfWork    ports.UnitOfWork
	Validator     *validators.EntityValidator
	Reconstructor *services.Reconstructor
	Publisher     ports.EventPublisher
	Logger        *zap.Logger
}

// Registration pairs a command with its handler for bus wiring.
type Registration struct {
	Command bus.Command
	Handler bus.CommandHandler
}

// Registrations returns every command handler, ready to register on a bus.
func Registrations(d Deps) []Registration {
	return []Registration{
		{commands.CreateEntityCommand{}, NewCreateEntityHandler(d.UnitOfWork, d.Validator, d.Publisher, d.Logger)},
		{commands.UpdateEntityCommand{}, NewUpdateEntityHandler(d.EntityRepo, d.UnitOfWork, d.Validator, d.Publisher, d.Logger)},
		{commands.RestoreEntityCommand{}, NewRestoreEntityHandler(d.EntityRepo, d.UnitOfWork, d.Reconstructor, d.Publisher, d.Logger)},
		{commands.ChangeLifecycleCommand{}, NewChangeLifecycleHandler(d.EntityRepo, d.UnitOfWork, d.Publisher, d.Logger)},
		{commands.LinkEntitiesCommand{}, NewLinkEntitiesHandler(d.EntityRepo, d.RelRepo, d.Publisher, d.Logger)},
		{commands.UnlinkEntitiesCommand{}, NewUnlinkEntitiesHandler(d.RelRepo, d.Publisher, d.Logger)},
	}
}
