// Package dynamo is the DynamoDB-backed subject record store.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"occasions/internal/types"
)

const (
	keyAttribute = "subjectId"

	// tableReadyTimeout bounds the wait after CreateTable.
	tableReadyTimeout = 2 * time.Minute
)

// DynamoAPI is the subset of the DynamoDB client used by SubjectStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// subjectItem is the persisted shape of a subject.
type subjectItem struct {
	SubjectID string `dynamodbav:"subjectId"`
	FirstName string `dynamodbav:"firstName"`
	LastName  string `dynamodbav:"lastName"`
	Birthday  string `dynamodbav:"birthday"`
	Location  string `dynamodbav:"location"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt,omitempty"`
}

func toItem(s *types.Subject) subjectItem {
	item := subjectItem{
		SubjectID: s.ID,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Birthday:  s.Birthday.String(),
		Location:  s.TimeZone,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.UpdatedAt != nil {
		item.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return item
}

func (i subjectItem) toSubject() (*types.Subject, error) {
	birthday, err := types.ParseOccasionDate(i.Birthday)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", i.SubjectID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("subject %s: bad createdAt: %w", i.SubjectID, err)
	}
	s := &types.Subject{
		ID:        i.SubjectID,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		Birthday:  birthday,
		TimeZone:  i.Location,
		CreatedAt: createdAt,
	}
	if i.UpdatedAt != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, i.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("subject %s: bad updatedAt: %w", i.SubjectID, err)
		}
		s.UpdatedAt = &updatedAt
	}
	return s, nil
}

// SubjectStore persists subjects in a single DynamoDB table keyed by
// subjectId.
type SubjectStore struct {
	client DynamoAPI
	table  string
	logger *slog.Logger
}

// NewSubjectStore creates a SubjectStore over table.
func NewSubjectStore(client DynamoAPI, table string, logger *slog.Logger) *SubjectStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubjectStore{client: client, table: table, logger: logger}
}

func (s *SubjectStore) key(id string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		keyAttribute: &ddbtypes.AttributeValueMemberS{Value: id},
	}
}

func notFound(id string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundSubject, "subject not found", nil,
		map[string]any{"subject_id": id})
}

func dbError(op string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeInternalDB, "failed to "+op, err)
}

// Create stores a new subject. The id must not exist yet.
func (s *SubjectStore) Create(ctx context.Context, subject *types.Subject) error {
	item, err := attributevalue.MarshalMap(toItem(subject))
	if err != nil {
		return dbError("encode subject", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#k": keyAttribute,
		},
	})
	if err != nil {
		return dbError("create subject", err)
	}
	return nil
}

// Get reads a subject with a strongly consistent read so a firing always
// sees the latest profile.
func (s *SubjectStore) Get(ctx context.Context, id string) (*types.Subject, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dbError("get subject", err)
	}
	if len(out.Item) == 0 {
		return nil, notFound(id)
	}

	var item subjectItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, dbError("decode subject", err)
	}
	subject, err := item.toSubject()
	if err != nil {
		return nil, dbError("decode subject", err)
	}
	return subject, nil
}

// Update replaces an existing subject. A missing id is reported as not
// found rather than silently created.
func (s *SubjectStore) Update(ctx context.Context, subject *types.Subject) error {
	item, err := attributevalue.MarshalMap(toItem(subject))
	if err != nil {
		return dbError("encode subject", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#k": keyAttribute,
		},
	})
	if err != nil {
		var condErr *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return notFound(subject.ID)
		}
		return dbError("update subject", err)
	}
	return nil
}

// Delete removes a subject and reports not found when nothing was deleted.
func (s *SubjectStore) Delete(ctx context.Context, id string) error {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          s.key(id),
		ReturnValues: ddbtypes.ReturnValueAllOld,
	})
	if err != nil {
		return dbError("delete subject", err)
	}
	if len(out.Attributes) == 0 {
		return notFound(id)
	}
	return nil
}

// List calls fn for every stored subject. Scanning stops at the first error
// returned by fn. Items that fail to decode are logged and skipped.
func (s *SubjectStore) List(ctx context.Context, fn func(*types.Subject) error) error {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return dbError("scan subjects", err)
		}
		for _, raw := range page.Items {
			var item subjectItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.WarnContext(ctx, "skipping undecodable subject item", "error", err)
				continue
			}
			subject, err := item.toSubject()
			if err != nil {
				s.logger.WarnContext(ctx, "skipping invalid subject item", "subject_id", item.SubjectID, "error", err)
				continue
			}
			if err := fn(subject); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ping checks that the table is reachable.
func (s *SubjectStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return dbError("describe table", err)
	}
	return nil
}

// EnsureTable creates the table with on-demand billing if it does not exist
// and waits until it is active. Used by local runs against DynamoDB Local.
func (s *SubjectStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		s.logger.InfoContext(ctx, "subjects table already exists", "table", s.table)
		return nil
	}
	var missing *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &missing) {
		return dbError("describe table", err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(keyAttribute), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(keyAttribute), KeyType: ddbtypes.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *ddbtypes.ResourceInUseException
		if !errors.As(err, &inUse) {
			return dbError("create table", err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableReadyTimeout); err != nil {
		return dbError("wait for table", err)
	}

	s.logger.InfoContext(ctx, "subjects table created", "table", s.table)
	return nil
}
