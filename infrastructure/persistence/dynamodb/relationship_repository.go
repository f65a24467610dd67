package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/relationships"
	apperrors "stash-backend/pkg/errors"
	"stash-backend/pkg/utils"
)

// RelationshipRepository implements ports.RelationshipRepository. Edge rows
// are keyed by the canonical unordered pair, so the idempotency rule (one
// edge per pair) falls out of the key itself:
//
//	PK = USER#<userID>   SK = REL#<source.Key()>|<target.Key()>
//
// Lookups by relationship id scan the user's REL# band; per-user edge counts
// are capped well below a single query page.
type RelationshipRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewRelationshipRepository creates a new RelationshipRepository
func NewRelationshipRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *RelationshipRepository {
	return &RelationshipRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// relationshipItem represents the DynamoDB item structure for an edge
type relationshipItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityKind string `dynamodbav:"EntityKind"`

	RelationshipID string `dynamodbav:"RelationshipID"`
	UserID         string `dynamodbav:"UserID"`

	SourceType string `dynamodbav:"SourceType"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetType string `dynamodbav:"TargetType"`
	TargetID   string `dynamodbav:"TargetID"`

	SourceTitle    string `dynamodbav:"SourceTitle,omitempty"`
	SourceURL      string `dynamodbav:"SourceURL,omitempty"`
	SourceName     string `dynamodbav:"SourceName,omitempty"`
	SourceDeleted  bool   `dynamodbav:"SourceDeleted,omitempty"`
	SourceArchived bool   `dynamodbav:"SourceArchived,omitempty"`

	TargetTitle    string `dynamodbav:"TargetTitle,omitempty"`
	TargetURL      string `dynamodbav:"TargetURL,omitempty"`
	TargetName     string `dynamodbav:"TargetName,omitempty"`
	TargetDeleted  bool   `dynamodbav:"TargetDeleted,omitempty"`
	TargetArchived bool   `dynamodbav:"TargetArchived,omitempty"`

	RelationType string `dynamodbav:"RelationType"`
	Description  string `dynamodbav:"Description,omitempty"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
	UpdatedAt    string `dynamodbav:"UpdatedAt"`
}

func relationshipKey(rel *relationships.Relationship) (string, string) {
	return fmt.Sprintf("USER#%s", rel.UserID), "REL#" + rel.PairKey()
}

func marshalRelationship(rel *relationships.Relationship) (map[string]types.AttributeValue, error) {
	pk, sk := relationshipKey(rel)
	item := relationshipItem{
		PK:             pk,
		SK:             sk,
		EntityKind:     "RELATIONSHIP",
		RelationshipID: rel.ID,
		UserID:         rel.UserID,
		SourceType:     string(rel.Source.Type),
		SourceID:       rel.Source.ID,
		TargetType:     string(rel.Target.Type),
		TargetID:       rel.Target.ID,
		SourceTitle:    rel.SourceDisplay.Title,
		SourceURL:      rel.SourceDisplay.URL,
		SourceName:     rel.SourceDisplay.Name,
		SourceDeleted:  rel.SourceDisplay.Deleted,
		SourceArchived: rel.SourceDisplay.Archived,
		TargetTitle:    rel.TargetDisplay.Title,
		TargetURL:      rel.TargetDisplay.URL,
		TargetName:     rel.TargetDisplay.Name,
		TargetDeleted:  rel.TargetDisplay.Deleted,
		TargetArchived: rel.TargetDisplay.Archived,
		RelationType:   rel.RelationType,
		Description:    rel.Description,
		CreatedAt:      rel.CreatedAt.UTC().Format(utils.TokenFormat),
		UpdatedAt:      rel.UpdatedAt.UTC().Format(utils.TokenFormat),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relationship: %w", err)
	}
	return av, nil
}

func unmarshalRelationship(av map[string]types.AttributeValue) (*relationships.Relationship, error) {
	var item relationshipItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}

	source, err := valueobjects.NewEntityRef(item.SourceType, item.SourceID)
	if err != nil {
		return nil, fmt.Errorf("bad source ref in stored relationship: %w", err)
	}
	target, err := valueobjects.NewEntityRef(item.TargetType, item.TargetID)
	if err != nil {
		return nil, fmt.Errorf("bad target ref in stored relationship: %w", err)
	}
	createdAt, err := utils.ParseToken(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at in stored relationship: %w", err)
	}
	updatedAt, err := utils.ParseToken(item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad updated_at in stored relationship: %w", err)
	}

	return &relationships.Relationship{
		ID:     item.RelationshipID,
		UserID: item.UserID,
		Source: source,
		Target: target,
		SourceDisplay: relationships.Display{
			Title:    item.SourceTitle,
			URL:      item.SourceURL,
			Name:     item.SourceName,
			Deleted:  item.SourceDeleted,
			Archived: item.SourceArchived,
		},
		TargetDisplay: relationships.Display{
			Title:    item.TargetTitle,
			URL:      item.TargetURL,
			Name:     item.TargetName,
			Deleted:  item.TargetDeleted,
			Archived: item.TargetArchived,
		},
		RelationType: item.RelationType,
		Description:  item.Description,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Save persists the edge. The conditional put loses to an existing row for
// the same pair, in which case the existing edge is read back and returned.
func (r *RelationshipRepository) Save(ctx context.Context, rel *relationships.Relationship) (*relationships.Relationship, error) {
	av, err := marshalRelationship(rel)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal relationship").WithCause(err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		r.logger.Debug("Created relationship",
			zap.String("relationshipID", rel.ID),
			zap.String("pairKey", rel.PairKey()),
		)
		return rel, nil
	}

	var conditionFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionFailed) {
		return nil, apperrors.NewDatabaseError("PutItem", err)
	}

	pk, sk := relationshipKey(rel)
	existing, err := r.getByKey(ctx, pk, sk)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// FindByID looks up one edge by its relationship id within the user's
// edge band.
func (r *RelationshipRepository) FindByID(ctx context.Context, userID, relationshipID string) (*relationships.Relationship, error) {
	edges, err := r.queryEdges(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, edge := range edges {
		if edge.ID == relationshipID {
			return edge, nil
		}
	}
	return nil, apperrors.NewNotFoundError("relationship not found")
}

// FindForEntity returns every edge that has ref as an endpoint.
func (r *RelationshipRepository) FindForEntity(ctx context.Context, userID string, ref valueobjects.EntityRef) ([]*relationships.Relationship, error) {
	edges, err := r.queryEdges(ctx, userID)
	if err != nil {
		return nil, err
	}
	matched := make([]*relationships.Relationship, 0, len(edges))
	for _, edge := range edges {
		if edge.Touches(ref) {
			matched = append(matched, edge)
		}
	}
	return matched, nil
}

// Delete removes the edge. Deleting an edge that does not exist is NotFound.
func (r *RelationshipRepository) Delete(ctx context.Context, userID, relationshipID string) error {
	edge, err := r.FindByID(ctx, userID, relationshipID)
	if err != nil {
		return err
	}

	pk, sk := relationshipKey(edge)
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return apperrors.NewDatabaseError("DeleteItem", err)
	}

	r.logger.Debug("Deleted relationship",
		zap.String("relationshipID", relationshipID),
		zap.String("userID", userID),
	)
	return nil
}

func (r *RelationshipRepository) getByKey(ctx context.Context, pk, sk string) (*relationships.Relationship, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("GetItem", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("relationship not found")
	}
	return unmarshalRelationship(result.Item)
}

func (r *RelationshipRepository) queryEdges(ctx context.Context, userID string) ([]*relationships.Relationship, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", userID))).
		And(expression.Key("SK").BeginsWith("REL#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query expression").WithCause(err)
	}

	var edges []*relationships.Relationship
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, apperrors.NewDatabaseError("Query", err)
		}
		for _, av := range result.Items {
			edge, err := unmarshalRelationship(av)
			if err != nil {
				r.logger.Warn("Skipping unreadable relationship row", zap.Error(err))
				continue
			}
			edges = append(edges, edge)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return edges, nil
}

var _ ports.RelationshipRepository = (*RelationshipRepository)(nil)
