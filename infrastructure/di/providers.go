package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	commandbus "stash-backend/application/commands/bus"
	commandhandlers "stash-backend/application/commands/handlers"
	"stash-backend/application/ports"
	querybus "stash-backend/application/queries/bus"
	queryhandlers "stash-backend/application/queries/handlers"
	"stash-backend/application/services"
	domainconfig "stash-backend/domain/config"
	"stash-backend/domain/core/validators"
	"stash-backend/infrastructure/config"
	"stash-backend/infrastructure/messaging/eventbridge"
	"stash-backend/infrastructure/persistence/dynamodb"
	"stash-backend/pkg/auth"
	"stash-backend/pkg/observability"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideDomainConfig creates the domain validation limits
func ProvideDomainConfig() *domainconfig.DomainConfig {
	return domainconfig.DefaultDomainConfig()
}

// ProvideEntityValidator creates the entity validator
func ProvideEntityValidator(cfg *domainconfig.DomainConfig) *validators.EntityValidator {
	return validators.NewEntityValidator(cfg)
}

// ProvideEntityRepository creates the entity repository
func ProvideEntityRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.EntityRepository {
	return dynamodb.NewEntityRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideHistoryRepository creates the history repository
func ProvideHistoryRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.HistoryRepository {
	return dynamodb.NewHistoryRepository(client, cfg.DynamoDBTable, cfg.IndexName, logger)
}

// ProvideRelationshipRepository creates the relationship repository
func ProvideRelationshipRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.RelationshipRepository {
	return dynamodb.NewRelationshipRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideUnitOfWork creates the transactional write path, wrapped in a
// circuit breaker and traced.
func ProvideUnitOfWork(
	client *awsdynamodb.Client,
	entityRepo *dynamodb.EntityRepository,
	cfg *config.Config,
	tracer *observability.Tracer,
	logger *zap.Logger,
) ports.UnitOfWork {
	inner := dynamodb.NewUnitOfWork(client, cfg.DynamoDBTable, entityRepo, logger)
	breakered := dynamodb.NewBreakerUnitOfWork(inner, dynamodb.DefaultBreakerConfig("entity-writes"), logger)
	return dynamodb.NewTracedUnitOfWork(breakered, tracer)
}

// ProvideEventPublisher creates the EventBridge publisher
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideReconstructor creates the version reconstruction service
func ProvideReconstructor(entityRepo *dynamodb.EntityRepository, historyRepo *dynamodb.HistoryRepository, logger *zap.Logger) *services.Reconstructor {
	return services.NewReconstructor(entityRepo, historyRepo, logger)
}

// ProvideMetrics registers the prometheus collectors
func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.DefaultRegisterer)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("stash-backend", cfg.EnableTracing)
}

// ProvideJWTValidator creates the bearer token validator. Nil in development
// when no secret is configured; the auth middleware falls back to a header
// identity in that case.
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		return nil, nil
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
	})
}

// ProvideRateLimiter creates the per-user rate limiter
func ProvideRateLimiter(cfg *config.Config) *auth.UserRateLimiter {
	return auth.NewUserRateLimiter(cfg.Tunables.RateLimitPerMinute)
}

// ProvideIPRateLimiter creates the pre-auth per-address limiter. It is more
// generous than the per-user budget because addresses are shared.
func ProvideIPRateLimiter(cfg *config.Config) *auth.IPRateLimiter {
	return auth.NewIPRateLimiter(cfg.Tunables.RateLimitPerMinute * 4)
}

// ProvideCache creates the query result cache
func ProvideCache() *TTLCache {
	return NewTTLCache()
}

// ProvideConfigWatcher creates and starts the tunables hot-reload watcher.
// Reloaded rate limits are pushed into the live limiters.
func ProvideConfigWatcher(
	ctx context.Context,
	cfg *config.Config,
	userLimiter *auth.UserRateLimiter,
	ipLimiter *auth.IPRateLimiter,
	logger *zap.Logger,
) (*config.Watcher, error) {
	watcher := config.NewWatcher(cfg, logger)
	watcher.OnReload(func(t config.Tunables) {
		if t.RateLimitPerMinute > 0 {
			userLimiter.SetRate(t.RateLimitPerMinute)
			ipLimiter.SetRate(t.RateLimitPerMinute * 4)
		}
	})
	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return watcher, nil
}

// ProvideCommandBus creates a command bus with every write operation
// registered.
func ProvideCommandBus(
	entityRepo *dynamodb.EntityRepository,
	relRepo *dynamodb.RelationshipRepository,
	uow ports.UnitOfWork,
	validator *validators.EntityValidator,
	reconstructor *services.Reconstructor,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) (*commandbus.CommandBus, error) {
	bus := commandbus.NewCommandBus()
	pipeline := commandbus.NewPipeline(
		commandbus.LoggingMiddleware(&zapLoggerAdapter{logger}),
	)

	regs := commandhandlers.Registrations(commandhandlers.Deps{
		EntityRepo:    entityRepo,
		RelRepo:       relRepo,
		UnitOfWork:    uow,
		Validator:     validator,
		Reconstructor: reconstructor,
		Publisher:     publisher,
		Logger:        logger,
	})
	for _, reg := range regs {
		if err := bus.Register(reg.Command, pipeline.Execute(reg.Handler)); err != nil {
			return nil, err
		}
	}
	return bus, nil
}

// ProvideQueryBus creates a query bus with every read operation registered.
// List queries that implement CacheKey are served through the cache.
func ProvideQueryBus(
	entityRepo *dynamodb.EntityRepository,
	historyRepo *dynamodb.HistoryRepository,
	relRepo *dynamodb.RelationshipRepository,
	reconstructor *services.Reconstructor,
	cache *TTLCache,
	cfg *config.Config,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	bus := querybus.NewQueryBus()
	caching := querybus.NewCachingMiddleware(cache, int(cfg.Tunables.QueryCacheTTL.Seconds()))

	regs := queryhandlers.Registrations(queryhandlers.Deps{
		EntityRepo:    entityRepo,
		HistoryRepo:   historyRepo,
		RelRepo:       relRepo,
		Reconstructor: reconstructor,
		Logger:        logger,
	})
	for _, reg := range regs {
		if err := bus.Register(reg.Query, caching.Wrap(reg.Handler)); err != nil {
			return nil, err
		}
	}
	return bus, nil
}

// zapLoggerAdapter adapts zap.Logger to the command bus Logger interface
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, toZapFields(keysAndValues)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, toZapFields(keysAndValues)...)
}

func toZapFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, _ := keysAndValues[i].(string)
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
