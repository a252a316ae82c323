package dynamo

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"occasions/internal/types"
)

type mockDynamoAPI struct {
	mock.Mock
}

func (m *mockDynamoAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamoAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamoAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamoAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

func (m *mockDynamoAPI) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DescribeTableOutput)
	return out, args.Error(1)
}

func (m *mockDynamoAPI) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.CreateTableOutput)
	return out, args.Error(1)
}

func s(v string) ddbtypes.AttributeValue { return &ddbtypes.AttributeValueMemberS{Value: v} }

func johnItem() map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"subjectId": s("4b1c"),
		"firstName": s("John"),
		"lastName":  s("Doe"),
		"birthday":  s("1990-06-15"),
		"location":  s("America/New_York"),
		"createdAt": s("2025-03-15T12:00:00Z"),
	}
}

func newStore(client *mockDynamoAPI) *SubjectStore {
	return NewSubjectStore(client, "subjects-test", slog.Default())
}

func TestGet_ConsistentRead(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		key, ok := in.Key["subjectId"].(*ddbtypes.AttributeValueMemberS)
		return aws.ToString(in.TableName) == "subjects-test" && aws.ToBool(in.ConsistentRead) && ok && key.Value == "4b1c"
	})).Return(&dynamodb.GetItemOutput{Item: johnItem()}, nil)

	got, err := newStore(client).Get(context.Background(), "4b1c")
	require.NoError(t, err)

	assert.Equal(t, "4b1c", got.ID)
	assert.Equal(t, "John Doe", got.DisplayName())
	assert.Equal(t, types.OccasionDate{Year: 1990, Month: time.June, Day: 15}, got.Birthday)
	assert.Equal(t, "America/New_York", got.TimeZone)
	assert.Equal(t, time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC), got.CreatedAt)
	assert.Nil(t, got.UpdatedAt)
	client.AssertExpectations(t)
}

func TestGet_NotFound(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := newStore(client).Get(context.Background(), "missing")
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundSubject))
}

func TestGet_BackendFailure(t *testing.T) {
	client := &mockDynamoAPI{}
	cause := errors.New("ProvisionedThroughputExceeded")
	client.On("GetItem", mock.Anything, mock.Anything).Return(nil, cause)

	_, err := newStore(client).Get(context.Background(), "4b1c")
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
	assert.ErrorIs(t, err, cause)
}

func TestGet_CorruptItem(t *testing.T) {
	client := &mockDynamoAPI{}
	item := johnItem()
	item["birthday"] = s("15/06/1990")
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: item}, nil)

	_, err := newStore(client).Get(context.Background(), "4b1c")
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestCreate_ConditionalPut(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

	subject := &types.Subject{
		ID:        "4b1c",
		FirstName: "John",
		LastName:  "Doe",
		Birthday:  types.OccasionDate{Year: 1990, Month: time.June, Day: 15},
		TimeZone:  "America/New_York",
		CreatedAt: time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, newStore(client).Create(context.Background(), subject))

	in := client.Calls[0].Arguments.Get(1).(*dynamodb.PutItemInput)
	assert.Equal(t, "attribute_not_exists(#k)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, johnItem(), in.Item)
}

func TestUpdate(t *testing.T) {
	updated := time.Date(2025, time.April, 1, 8, 30, 0, 0, time.UTC)
	subject := &types.Subject{
		ID:        "4b1c",
		FirstName: "Johnny",
		LastName:  "Doe",
		Birthday:  types.OccasionDate{Year: 1990, Month: time.June, Day: 15},
		TimeZone:  "Europe/Paris",
		CreatedAt: time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC),
		UpdatedAt: &updated,
	}

	t.Run("existing", func(t *testing.T) {
		client := &mockDynamoAPI{}
		client.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

		require.NoError(t, newStore(client).Update(context.Background(), subject))

		in := client.Calls[0].Arguments.Get(1).(*dynamodb.PutItemInput)
		assert.Equal(t, "attribute_exists(#k)", aws.ToString(in.ConditionExpression))
		assert.Equal(t, s("2025-04-01T08:30:00Z"), in.Item["updatedAt"])
		assert.Equal(t, s("Europe/Paris"), in.Item["location"])
	})

	t.Run("missing", func(t *testing.T) {
		client := &mockDynamoAPI{}
		client.On("PutItem", mock.Anything, mock.Anything).
			Return(nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("condition failed")})

		err := newStore(client).Update(context.Background(), subject)
		assert.True(t, types.HasCode(err, types.ErrCodeNotFoundSubject))
	})
}

func TestDelete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		client := &mockDynamoAPI{}
		client.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
			return in.ReturnValues == ddbtypes.ReturnValueAllOld
		})).Return(&dynamodb.DeleteItemOutput{Attributes: johnItem()}, nil)

		require.NoError(t, newStore(client).Delete(context.Background(), "4b1c"))
		client.AssertExpectations(t)
	})

	t.Run("missing", func(t *testing.T) {
		client := &mockDynamoAPI{}
		client.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil)

		err := newStore(client).Delete(context.Background(), "gone")
		assert.True(t, types.HasCode(err, types.ErrCodeNotFoundSubject))
	})
}

func TestList_PaginatesAndSkipsInvalid(t *testing.T) {
	client := &mockDynamoAPI{}
	second := johnItem()
	second["subjectId"] = s("9f2e")
	bad := johnItem()
	bad["subjectId"] = s("bad")
	bad["createdAt"] = s("yesterday")

	client.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.ScanOutput{
		Items:            []map[string]ddbtypes.AttributeValue{johnItem(), bad},
		LastEvaluatedKey: map[string]ddbtypes.AttributeValue{"subjectId": s("bad")},
	}, nil).Once()
	client.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.ScanOutput{
		Items: []map[string]ddbtypes.AttributeValue{second},
	}, nil).Once()

	var ids []string
	err := newStore(client).List(context.Background(), func(subject *types.Subject) error {
		ids = append(ids, subject.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4b1c", "9f2e"}, ids)
	client.AssertNumberOfCalls(t, "Scan", 2)
}

func TestList_StopsOnCallbackError(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("Scan", mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{
		Items: []map[string]ddbtypes.AttributeValue{johnItem(), johnItem()},
	}, nil)

	stop := errors.New("stop")
	calls := 0
	err := newStore(client).List(context.Background(), func(*types.Subject) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestEnsureTable_Exists(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(&dynamodb.DescribeTableOutput{
		Table: &ddbtypes.TableDescription{TableStatus: ddbtypes.TableStatusActive},
	}, nil)

	require.NoError(t, newStore(client).EnsureTable(context.Background()))
	client.AssertNotCalled(t, "CreateTable", mock.Anything, mock.Anything)
}

func TestEnsureTable_Creates(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("DescribeTable", mock.Anything, mock.Anything).
		Return(nil, &ddbtypes.ResourceNotFoundException{Message: aws.String("no table")}).Once()
	client.On("CreateTable", mock.Anything, mock.Anything).Return(&dynamodb.CreateTableOutput{}, nil)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(&dynamodb.DescribeTableOutput{
		Table: &ddbtypes.TableDescription{TableStatus: ddbtypes.TableStatusActive},
	}, nil)

	require.NoError(t, newStore(client).EnsureTable(context.Background()))

	in := client.Calls[1].Arguments.Get(1).(*dynamodb.CreateTableInput)
	assert.Equal(t, "subjects-test", aws.ToString(in.TableName))
	assert.Equal(t, ddbtypes.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.KeySchema, 1)
	assert.Equal(t, "subjectId", aws.ToString(in.KeySchema[0].AttributeName))
}

func TestPing(t *testing.T) {
	client := &mockDynamoAPI{}
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	err := newStore(client).Ping(context.Background())
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}
