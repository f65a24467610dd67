package dynamodb

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
	"stash-backend/pkg/utils"
)

// EntityRepository implements ports.EntityRepository on the single-table
// layout. Entity rows live under the owning user's partition:
//
//	PK = USER#<userID>   SK = ENTITY#<type>#<id>
type EntityRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *EntityRepository {
	return &EntityRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// entityItem represents the DynamoDB item structure for an entity
type entityItem struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	EntityKind string   `dynamodbav:"EntityKind"`
	EntityID   string   `dynamodbav:"EntityID"`
	UserID     string   `dynamodbav:"UserID"`
	Type       string   `dynamodbav:"Type"`
	Title      string   `dynamodbav:"Title"`
	Content    string   `dynamodbav:"Content"`
	URL        string   `dynamodbav:"URL,omitempty"`
	Name       string   `dynamodbav:"Name,omitempty"`
	Tags       []string `dynamodbav:"Tags,omitempty"`
	ArchivedAt string   `dynamodbav:"ArchivedAt,omitempty"`
	DeletedAt  string   `dynamodbav:"DeletedAt,omitempty"`
	CreatedAt  string   `dynamodbav:"CreatedAt"`
	UpdatedAt  string   `dynamodbav:"UpdatedAt"`
	Version    int      `dynamodbav:"Version"`
}

func entityKey(userID string, ref valueobjects.EntityRef) (string, string) {
	return fmt.Sprintf("USER#%s", userID), fmt.Sprintf("ENTITY#%s#%s", ref.Type, ref.ID)
}

func marshalEntity(e *entities.Entity) (map[string]types.AttributeValue, error) {
	pk, sk := entityKey(e.UserID, e.Ref())
	item := entityItem{
		PK:         pk,
		SK:         sk,
		EntityKind: "ENTITY",
		EntityID:   e.ID,
		UserID:     e.UserID,
		Type:       string(e.Type),
		Title:      e.Title,
		Content:    e.Content,
		URL:        e.URL,
		Name:       e.Name,
		Tags:       e.Tags,
		CreatedAt:  e.CreatedAt.UTC().Format(utils.TokenFormat),
		UpdatedAt:  e.Token(),
		Version:    e.Version,
	}
	if e.ArchivedAt != nil {
		item.ArchivedAt = e.ArchivedAt.UTC().Format(utils.TokenFormat)
	}
	if e.DeletedAt != nil {
		item.DeletedAt = e.DeletedAt.UTC().Format(utils.TokenFormat)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	return av, nil
}

func unmarshalEntity(av map[string]types.AttributeValue) (*entities.Entity, error) {
	var item entityItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	contentType, err := valueobjects.ParseContentType(item.Type)
	if err != nil {
		return nil, err
	}
	createdAt, err := utils.ParseToken(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad CreatedAt on %s: %w", item.SK, err)
	}
	updatedAt, err := utils.ParseToken(item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad UpdatedAt on %s: %w", item.SK, err)
	}

	e := &entities.Entity{
		ID:        item.EntityID,
		UserID:    item.UserID,
		Type:      contentType,
		Title:     item.Title,
		Content:   item.Content,
		URL:       item.URL,
		Name:      item.Name,
		Tags:      item.Tags,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Version:   item.Version,
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if item.ArchivedAt != "" {
		ts, err := utils.ParseToken(item.ArchivedAt)
		if err != nil {
			return nil, fmt.Errorf("bad ArchivedAt on %s: %w", item.SK, err)
		}
		e.ArchivedAt = &ts
	}
	if item.DeletedAt != "" {
		ts, err := utils.ParseToken(item.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("bad DeletedAt on %s: %w", item.SK, err)
		}
		e.DeletedAt = &ts
	}
	return e, nil
}

// FindByID retrieves an entity, including soft-deleted rows. Staleness
// probes and restore paths need deleted rows; list filtering happens in
// FindByUser.
func (r *EntityRepository) FindByID(ctx context.Context, userID string, ref valueobjects.EntityRef) (*entities.Entity, error) {
	pk, sk := entityKey(userID, ref)
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.NewDatabaseError("GetItem", err)
	}
	if result.Item == nil {
		return nil, errors.NewNotFoundError("entity not found")
	}
	return unmarshalEntity(result.Item)
}

// FindByUser lists a user's entities of one type, newest first. The full
// filtered set is materialized before offset slicing; entity counts per user
// are small enough that this beats cursor bookkeeping for an offset API.
func (r *EntityRepository) FindByUser(ctx context.Context, userID string, filter ports.EntityFilter, page common.PageParams) ([]*entities.Entity, int, error) {
	skPrefix := "ENTITY#"
	if filter.Type != nil {
		skPrefix = fmt.Sprintf("ENTITY#%s#", *filter.Type)
	}
	keyCond := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", userID))).
		And(expression.Key("SK").BeginsWith(skPrefix))

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	var filt expression.ConditionBuilder
	hasFilter := false
	and := func(c expression.ConditionBuilder) {
		if hasFilter {
			filt = filt.And(c)
		} else {
			filt = c
			hasFilter = true
		}
	}
	if !filter.IncludeDeleted {
		and(expression.AttributeNotExists(expression.Name("DeletedAt")))
	}
	if !filter.IncludeArchived {
		and(expression.AttributeNotExists(expression.Name("ArchivedAt")))
	}
	if filter.Tag != "" {
		and(expression.Contains(expression.Name("Tags"), filter.Tag))
	}
	if hasFilter {
		builder = builder.WithFilter(filt)
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, 0, errors.NewInternalError("failed to build query expression").WithCause(err)
	}

	var items []*entities.Entity
	var lastKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, 0, errors.NewDatabaseError("Query", err)
		}
		for _, av := range result.Items {
			e, err := unmarshalEntity(av)
			if err != nil {
				r.logger.Warn("Skipping unreadable entity row", zap.Error(err))
				continue
			}
			items = append(items, e)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	sortEntitiesNewestFirst(items)
	total := len(items)
	return pageSlice(items, page), total, nil
}

func sortEntitiesNewestFirst(items []*entities.Entity) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}

func pageSlice[T any](items []T, page common.PageParams) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
