package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"stash-backend/application/ports"
	apperrors "stash-backend/pkg/errors"
)

// UnitOfWork implements ports.UnitOfWork on TransactWriteItems. The whole
// correctness story of the log lives here: the entity put and the history
// put ride in one transaction, and the entity put carries the concurrency
// condition, so a stale token cancels both writes together. There is no
// state in which the entity advanced without its history row or vice versa.
type UnitOfWork struct {
	client     *dynamodb.Client
	tableName  string
	entityRepo *EntityRepository
	logger     *zap.Logger
}

// NewUnitOfWork creates a new UnitOfWork
func NewUnitOfWork(client *dynamodb.Client, tableName string, entityRepo *EntityRepository, logger *zap.Logger) *UnitOfWork {
	return &UnitOfWork{
		client:     client,
		tableName:  tableName,
		entityRepo: entityRepo,
		logger:     logger,
	}
}

// CommitEntityWrite commits the entity mutation and its history append
// atomically. On a token mismatch it re-reads the live row and returns a
// conflict carrying the current server state.
func (u *UnitOfWork) CommitEntityWrite(ctx context.Context, write ports.EntityWrite) error {
	entityAV, err := marshalEntity(write.Entity)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal entity").WithCause(err)
	}
	historyAV, err := marshalHistoryEntry(write.Entry)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal history entry").WithCause(err)
	}

	entityPut := &types.Put{
		TableName: aws.String(u.tableName),
		Item:      entityAV,
	}
	switch {
	case write.IsNew:
		entityPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
	case write.ExpectedToken != nil:
		entityPut.ConditionExpression = aws.String("attribute_exists(PK) AND UpdatedAt = :expected")
		entityPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: *write.ExpectedToken},
		}
	default:
		// Overwrites skip the client token check but still condition on the
		// row as read, so two racing overwrites cannot both append the same
		// content version. The losing handler re-reads and retries.
		entityPut.ConditionExpression = aws.String("attribute_exists(PK) AND UpdatedAt = :base")
		entityPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":base": &types.AttributeValueMemberS{Value: write.BaseToken},
		}
	}

	_, err = u.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: entityPut},
			{Put: &types.Put{
				TableName:           aws.String(u.tableName),
				Item:                historyAV,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err == nil {
		u.logger.Debug("Committed entity write",
			zap.String("entityID", write.Entity.ID),
			zap.String("action", string(write.Entry.Action)),
			zap.Int("version", write.Entity.Version),
		)
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) && entityConditionFailed(canceled) {
		return u.conflictFromLiveRow(ctx, write)
	}
	return apperrors.NewDatabaseError("TransactWriteItems", err)
}

// entityConditionFailed reports whether the cancellation was the entity
// put's condition, as opposed to a throttle or an internal error.
func entityConditionFailed(canceled *types.TransactionCanceledException) bool {
	if len(canceled.CancellationReasons) == 0 {
		return false
	}
	reason := canceled.CancellationReasons[0]
	return reason.Code != nil && *reason.Code == "ConditionalCheckFailed"
}

// conflictFromLiveRow re-reads the row the condition rejected and shapes the
// structured response the resolution dialog needs.
func (u *UnitOfWork) conflictFromLiveRow(ctx context.Context, write ports.EntityWrite) error {
	live, err := u.entityRepo.FindByID(ctx, write.Entity.UserID, write.Entity.Ref())
	if err != nil {
		if apperrors.IsNotFound(err) {
			if write.IsNew {
				// create raced a concurrent create and then the row vanished;
				// surface it as a plain conflict with nothing to show
				return apperrors.NewConflictError("entity already exists", nil)
			}
			return apperrors.NewNotFoundError("entity not found")
		}
		return err
	}

	if write.IsNew {
		return apperrors.NewConflictError("entity already exists", map[string]interface{}{
			"updated_at": live.Token(),
			"version":    live.Version,
		})
	}

	u.logger.Info("Rejected stale write",
		zap.String("entityID", live.ID),
		zap.String("liveToken", live.Token()),
	)
	return apperrors.NewConflictError("entity was modified by another session", map[string]interface{}{
		"updated_at": live.Token(),
		"version":    live.Version,
		"title":      live.Title,
	})
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)
