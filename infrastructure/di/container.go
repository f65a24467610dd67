package di

import (
	"context"

	"go.uber.org/zap"

	commandbus "stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	querybus "stash-backend/application/queries/bus"
	"stash-backend/application/services"
	"stash-backend/domain/core/validators"
	"stash-backend/infrastructure/config"
	"stash-backend/infrastructure/persistence/dynamodb"
	"stash-backend/pkg/auth"
	"stash-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	ConfigWatcher *config.Watcher
	Logger        *zap.Logger

	EntityRepo  *dynamodb.EntityRepository
	HistoryRepo *dynamodb.HistoryRepository
	RelRepo     *dynamodb.RelationshipRepository
	UnitOfWork  ports.UnitOfWork
	Publisher   ports.EventPublisher

	Validator     *validators.EntityValidator
	Reconstructor *services.Reconstructor

	CommandBus *commandbus.CommandBus
	QueryBus   *querybus.QueryBus

	Cache        *TTLCache
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
	JWTValidator *auth.JWTValidator
	RateLimiter  *auth.UserRateLimiter
	IPLimiter    *auth.IPRateLimiter
}

// NewContainer wires the whole application by hand. The wire.go definition
// generates the same graph; this constructor is what the binaries call.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	dynamoClient := ProvideDynamoDBClient(awsCfg)
	eventBridgeClient := ProvideEventBridgeClient(awsCfg)

	entityRepo := ProvideEntityRepository(dynamoClient, cfg, logger)
	historyRepo := ProvideHistoryRepository(dynamoClient, cfg, logger)
	relRepo := ProvideRelationshipRepository(dynamoClient, cfg, logger)
	tracer := ProvideTracer(cfg)
	uow := ProvideUnitOfWork(dynamoClient, entityRepo, cfg, tracer, logger)
	publisher := ProvideEventPublisher(eventBridgeClient, cfg, logger)

	validator := ProvideEntityValidator(ProvideDomainConfig())
	reconstructor := ProvideReconstructor(entityRepo, historyRepo, logger)

	commandBus, err := ProvideCommandBus(entityRepo, relRepo, uow, validator, reconstructor, publisher, logger)
	if err != nil {
		return nil, err
	}

	cache := ProvideCache()
	queryBus, err := ProvideQueryBus(entityRepo, historyRepo, relRepo, reconstructor, cache, cfg, logger)
	if err != nil {
		cache.Close()
		return nil, err
	}

	jwtValidator, err := ProvideJWTValidator(cfg)
	if err != nil {
		cache.Close()
		return nil, err
	}

	rateLimiter := ProvideRateLimiter(cfg)
	ipLimiter := ProvideIPRateLimiter(cfg)
	watcher, err := ProvideConfigWatcher(ctx, cfg, rateLimiter, ipLimiter, logger)
	if err != nil {
		cache.Close()
		return nil, err
	}

	return &Container{
		Config:        cfg,
		ConfigWatcher: watcher,
		Logger:        logger,
		EntityRepo:    entityRepo,
		HistoryRepo:   historyRepo,
		RelRepo:       relRepo,
		UnitOfWork:    uow,
		Publisher:     publisher,
		Validator:     validator,
		Reconstructor: reconstructor,
		CommandBus:    commandBus,
		QueryBus:      queryBus,
		Cache:         cache,
		Metrics:       ProvideMetrics(),
		Tracer:        tracer,
		JWTValidator:  jwtValidator,
		RateLimiter:   rateLimiter,
		IPLimiter:     ipLimiter,
	}, nil
}

// Close releases background resources.
func (c *Container) Close() {
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
