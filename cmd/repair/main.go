package main

import (
	"context"
	"flag"
	"log"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"stash-backend/infrastructure/config"
	"stash-backend/infrastructure/persistence/schema"
)

// repair sweeps history rows written before audit actions stopped carrying
// version and content, and strips those attributes in place. Run with -dry-run
// first; the sweep only ever removes the two legacy attributes.
func main() {
	dryRun := flag.Bool("dry-run", false, "report legacy rows without modifying them")
	throttle := flag.Duration("throttle", 50*time.Millisecond, "pause between row updates")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	repairer := schema.NewLegacyRepairer(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, logger)
	repairer.DryRun = *dryRun
	repairer.Throttle = *throttle

	report, err := repairer.Run(ctx)
	if err != nil {
		logger.Fatal("Repair sweep failed", zap.Error(err))
	}

	logger.Info("Repair sweep finished",
		zap.Bool("dry_run", *dryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped),
	)
}
