package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
	"stash-backend/pkg/utils"
)

// HistoryRepository implements ports.HistoryRepository. Log rows partition
// by entity so one Query reads a whole log in time order:
//
//	PK     = HIST#<type>#<id>   SK     = TS#<created_at>#<entry_id>
//	GSI1PK = USER#<userID>      GSI1SK = SK      (activity view)
//
// Rows are append-only: nothing in this package ever updates or deletes one.
type HistoryRepository struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

// NewHistoryRepository creates a new HistoryRepository. indexName is the
// GSI serving the per-user activity view.
func NewHistoryRepository(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

// historyItem represents the DynamoDB item structure for a history entry
type historyItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityKind string `dynamodbav:"EntityKind"`

	EntryID     string   `dynamodbav:"EntryID"`
	ContentType string   `dynamodbav:"ContentType"`
	ContentID   string   `dynamodbav:"ContentID"`
	UserID      string   `dynamodbav:"UserID"`
	Action      string   `dynamodbav:"Action"`
	Version     *int     `dynamodbav:"Version,omitempty"`
	Content     *string  `dynamodbav:"Content,omitempty"`
	Title       string   `dynamodbav:"Title"`
	URL         string   `dynamodbav:"URL,omitempty"`
	Name        string   `dynamodbav:"Name,omitempty"`
	Tags        []string `dynamodbav:"Tags,omitempty"`
	Archived    bool     `dynamodbav:"Archived,omitempty"`
	Deleted     bool     `dynamodbav:"Deleted,omitempty"`

	ChangedFields []string `dynamodbav:"ChangedFields,omitempty"`
	Source        string   `dynamodbav:"Source,omitempty"`
	AuthType      string   `dynamodbav:"AuthType,omitempty"`
	TokenPrefix   string   `dynamodbav:"TokenPrefix,omitempty"`
	CreatedAt     string   `dynamodbav:"CreatedAt"`
}

func historyPartition(ref valueobjects.EntityRef) string {
	return fmt.Sprintf("HIST#%s#%s", ref.Type, ref.ID)
}

func marshalHistoryEntry(e *versioning.HistoryEntry) (map[string]types.AttributeValue, error) {
	sk := fmt.Sprintf("TS#%s#%s", e.CreatedAt.UTC().Format(utils.TokenFormat), e.ID)
	item := historyItem{
		PK:         historyPartition(e.Ref()),
		SK:         sk,
		GSI1PK:     fmt.Sprintf("USER#%s", e.UserID),
		GSI1SK:     sk,
		EntityKind: "HISTORY",

		EntryID:     e.ID,
		ContentType: string(e.ContentType),
		ContentID:   e.ContentID,
		UserID:      e.UserID,
		Action:      string(e.Action),
		Version:     e.Version,
		Content:     e.Content,
		Title:       e.MetadataSnapshot.Title,
		URL:         e.MetadataSnapshot.URL,
		Name:        e.MetadataSnapshot.Name,
		Tags:        e.MetadataSnapshot.Tags,
		Archived:    e.MetadataSnapshot.Archived,
		Deleted:     e.MetadataSnapshot.Deleted,

		ChangedFields: e.ChangedFields,
		Source:        e.Source,
		AuthType:      e.AuthType,
		TokenPrefix:   e.TokenPrefix,
		CreatedAt:     e.CreatedAt.UTC().Format(utils.TokenFormat),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history entry: %w", err)
	}
	return av, nil
}

func unmarshalHistoryEntry(av map[string]types.AttributeValue) (*versioning.HistoryEntry, error) {
	var item historyItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
	}

	contentType, err := valueobjects.ParseContentType(item.ContentType)
	if err != nil {
		return nil, err
	}
	createdAt, err := utils.ParseToken(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad CreatedAt on %s: %w", item.SK, err)
	}

	return &versioning.HistoryEntry{
		ID:          item.EntryID,
		ContentType: contentType,
		ContentID:   item.ContentID,
		UserID:      item.UserID,
		Action:      versioning.Action(item.Action),
		Version:     item.Version,
		Content:     item.Content,
		MetadataSnapshot: versioning.Metadata{
			Title:    item.Title,
			URL:      item.URL,
			Name:     item.Name,
			Tags:     item.Tags,
			Archived: item.Archived,
			Deleted:  item.Deleted,
		},
		ChangedFields: item.ChangedFields,
		Source:        item.Source,
		AuthType:      item.AuthType,
		TokenPrefix:   item.TokenPrefix,
		CreatedAt:     createdAt,
	}, nil
}

// ListForEntity returns one page of an entity's log, newest first. The SK
// sorts by creation time with the entry id as tiebreaker, so descending key
// order is exactly the presentation order.
func (r *HistoryRepository) ListForEntity(ctx context.Context, ref valueobjects.EntityRef, page common.PageParams) ([]*versioning.HistoryEntry, int, error) {
	entries, err := r.queryPartition(ctx, ref, false)
	if err != nil {
		return nil, 0, err
	}
	return pageSlice(entries, page), len(entries), nil
}

// ListAllForEntity returns the complete log, oldest first.
func (r *HistoryRepository) ListAllForEntity(ctx context.Context, ref valueobjects.EntityRef) ([]*versioning.HistoryEntry, error) {
	return r.queryPartition(ctx, ref, true)
}

func (r *HistoryRepository) queryPartition(ctx context.Context, ref valueobjects.EntityRef, ascending bool) ([]*versioning.HistoryEntry, error) {
	var entries []*versioning.HistoryEntry
	var lastKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: historyPartition(ref)},
			},
			ScanIndexForward:  aws.Bool(ascending),
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, errors.NewDatabaseError("Query", err)
		}
		for _, av := range result.Items {
			entry, err := unmarshalHistoryEntry(av)
			if err != nil {
				r.logger.Warn("Skipping unreadable history row", zap.Error(err))
				continue
			}
			entries = append(entries, entry)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}
	return entries, nil
}

// userHistoryQuery builds the activity-view query against the per-user GSI.
func (r *HistoryRepository) userHistoryQuery(userID string, filter ports.HistoryFilter) (*dynamodb.QueryInput, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("USER#%s", userID)))

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
	and(expression.Name("EntityKind").Equal(expression.Value("HISTORY")))
	if len(filter.ContentTypes) > 0 {
		and(inCondition("ContentType", contentTypeValues(filter.ContentTypes)))
	}
	if len(filter.Actions) > 0 {
		and(inCondition("Action", actionValues(filter.Actions)))
	}
	if len(filter.Sources) > 0 {
		and(inCondition("Source", filter.Sources))
	}
	if filter.StartDate != nil {
		and(expression.Name("CreatedAt").GreaterThanEqual(
			expression.Value(filter.StartDate.UTC().Format(utils.TokenFormat))))
	}
	if filter.EndDate != nil {
		and(expression.Name("CreatedAt").LessThanEqual(
			expression.Value(filter.EndDate.UTC().Format(utils.TokenFormat))))
	}
	builder = builder.WithFilter(filt)

	expr, err := builder.Build()
	if err != nil {
		return nil, errors.NewInternalError("failed to build query expression").WithCause(err)
	}

	return &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}, nil
}

// ListForUser returns one page of the caller's activity across all
// entities, newest first, honoring the optional filters.
func (r *HistoryRepository) ListForUser(ctx context.Context, userID string, filter ports.HistoryFilter, page common.PageParams) ([]*versioning.HistoryEntry, int, error) {
	input, err := r.userHistoryQuery(userID, filter)
	if err != nil {
		return nil, 0, err
	}

	var entries []*versioning.HistoryEntry
	var lastKey map[string]types.AttributeValue
	for {
		input.ExclusiveStartKey = lastKey
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, 0, errors.NewDatabaseError("Query", err)
		}
		for _, av := range result.Items {
			entry, err := unmarshalHistoryEntry(av)
			if err != nil {
				r.logger.Warn("Skipping unreadable history row", zap.Error(err))
				continue
			}
			entries = append(entries, entry)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	return pageSlice(entries, page), len(entries), nil
}

func inCondition(name string, values []string) expression.ConditionBuilder {
	operands := make([]expression.OperandBuilder, 0, len(values))
	for _, v := range values {
		operands = append(operands, expression.Value(v))
	}
	if len(operands) == 1 {
		return expression.Name(name).Equal(operands[0])
	}
	return expression.Name(name).In(operands[0], operands[1:]...)
}

func contentTypeValues(types []valueobjects.ContentType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func actionValues(actions []versioning.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
