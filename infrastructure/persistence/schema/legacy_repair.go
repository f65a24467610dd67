package schema

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"stash-backend/domain/versioning"
	apperrors "stash-backend/pkg/errors"
)

// LegacyRepairer rewrites history rows written by old builds that stamped a
// version number and a content snapshot onto audit actions (delete, archive
// and their inverses). Read paths already tolerate those rows by normalizing
// in memory; this sweep makes the stored data match so the tolerance can
// eventually be retired.
//
// The sweep is idempotent and safe to re-run: remove-only updates, applied
// one row at a time.
type LegacyRepairer struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger

	// DryRun reports what would change without writing.
	DryRun bool
	// Throttle is the pause between row updates. Zero means no pause.
	Throttle time.Duration
}

// NewLegacyRepairer creates a repairer for the given table.
func NewLegacyRepairer(client *dynamodb.Client, tableName string, logger *zap.Logger) *LegacyRepairer {
	return &LegacyRepairer{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Report summarizes one sweep.
type Report struct {
	Scanned  int
	Repaired int
	Skipped  int
}

// Run scans every history row and strips the spurious attributes from audit
// rows. Content rows are never touched.
func (r *LegacyRepairer) Run(ctx context.Context) (Report, error) {
	filter := expression.Name("EntityKind").Equal(expression.Value("HISTORY")).
		And(expression.Or(
			expression.Name("Version").AttributeExists(),
			expression.Name("Content").AttributeExists(),
		))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return Report{}, apperrors.NewInternalError("failed to build scan expression").WithCause(err)
	}

	var report Report
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return report, apperrors.NewDatabaseError("Scan", err)
		}

		for _, item := range result.Items {
			report.Scanned++
			if !isLegacyAuditRow(item) {
				report.Skipped++
				continue
			}
			if r.DryRun {
				report.Repaired++
				continue
			}
			if err := r.repairRow(ctx, item); err != nil {
				return report, err
			}
			report.Repaired++
			if r.Throttle > 0 {
				time.Sleep(r.Throttle)
			}
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	r.logger.Info("Legacy history repair finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped),
		zap.Bool("dryRun", r.DryRun),
	)
	return report, nil
}

// isLegacyAuditRow reports whether the scanned item is an audit action
// carrying attributes only content actions may have. The scan filter already
// narrowed to rows with the attributes; this check guards the action kind.
func isLegacyAuditRow(item map[string]types.AttributeValue) bool {
	raw, ok := item["Action"].(*types.AttributeValueMemberS)
	if !ok {
		return false
	}
	return versioning.Action(raw.Value).IsAudit()
}

func (r *LegacyRepairer) repairRow(ctx context.Context, item map[string]types.AttributeValue) error {
	pk, okPK := item["PK"].(*types.AttributeValueMemberS)
	sk, okSK := item["SK"].(*types.AttributeValueMemberS)
	if !okPK || !okSK {
		return apperrors.NewInternalError("scanned history row is missing its key")
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk.Value},
			"SK": &types.AttributeValueMemberS{Value: sk.Value},
		},
		UpdateExpression: aws.String("REMOVE #ver, #content"),
		ExpressionAttributeNames: map[string]string{
			"#ver":     "Version",
			"#content": "Content",
		},
	})
	if err != nil {
		return apperrors.NewDatabaseError("UpdateItem", err)
	}

	r.logger.Debug("Repaired legacy audit row",
		zap.String("pk", pk.Value),
		zap.String("sk", sk.Value),
	)
	return nil
}
