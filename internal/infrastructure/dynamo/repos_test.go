package dynamo

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-identity-quota/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}
func (m *mockAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

var (
	t0          = time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	errCCF      = &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	errThrottle = errors.New("throttled")
)

func TestQuotaRepo_Increment_ConditionalOnMax(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		maxAV, ok := in.ExpressionAttributeValues[":max"].(*types.AttributeValueMemberN)
		return in.ConditionExpression != nil &&
			*in.ConditionExpression == "attribute_not_exists(#pk) OR #n < :max" &&
			ok && maxAV.Value == "5"
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

	ok, err := NewQuotaRepo(api, "qc").Increment(context.Background(), "u1", 5, t0)
	require.NoError(t, err)
	assert.True(t, ok)
	api.AssertExpectations(t)
}

func TestQuotaRepo_Increment_FailedConditionIsDenied(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errCCF)

	ok, err := NewQuotaRepo(api, "qc").Increment(context.Background(), "u1", 5, t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuotaRepo_Increment_UnlimitedHasNoCondition(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return in.ConditionExpression == nil
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	ok, err := NewQuotaRepo(api, "qc").Increment(context.Background(), "u1", domain.Unlimited, t0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuotaRepo_Increment_StoreFault(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errThrottle)

	_, err := NewQuotaRepo(api, "qc").Increment(context.Background(), "u1", 5, t0)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errThrottle)
}

func TestIdentityRepo_Create_DuplicateIsConflict(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return *in.ConditionExpression == "attribute_not_exists(#e)"
	})).Return(nil, errCCF)

	err := NewIdentityRepo(api, "ids").Create(context.Background(), &domain.Identity{ID: "1", Email: "a@b.com", RegisteredAt: t0})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestIdentityRepo_FindByEmail(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"email":              &types.AttributeValueMemberS{Value: "a@b.com"},
		"id":                 &types.AttributeValueMemberS{Value: "01A"},
		"password_digest":    &types.AttributeValueMemberS{Value: "h"},
		"name":               &types.AttributeValueMemberS{Value: "Al"},
		"verified":           &types.AttributeValueMemberBOOL{Value: true},
		"registered_at":      num(toMillis(t0)),
		"subscription_level": num(2),
	}}, nil)

	got, err := NewIdentityRepo(api, "ids").FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "01A", got.ID)
	assert.Equal(t, "Al", got.DisplayName)
	assert.True(t, got.Verified)
	assert.Equal(t, t0, got.RegisteredAt)
	assert.Equal(t, 2, got.SubscriptionLevel)
}

func TestIdentityRepo_FindByEmail_Missing(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := NewIdentityRepo(api, "ids").FindByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityRepo_MarkVerified_MissingIsNotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.ConditionExpression == "attribute_exists(#pk)" && in.ExpressionAttributeNames["#pk"] == fieldEmail
	})).Return(nil, errCCF)

	err := NewIdentityRepo(api, "ids").MarkVerified(context.Background(), "ghost@b.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOneTimeCodeRepo_Sweep_SkipsReissuedCodes(t *testing.T) {
	api := &mockAPI{}
	api.On("Scan", mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
		{"email": &types.AttributeValueMemberS{Value: "stale@b.com"}},
		{"email": &types.AttributeValueMemberS{Value: "reissued@b.com"}},
	}}, nil).Once()
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return in.Key["email"].(*types.AttributeValueMemberS).Value == "stale@b.com"
	})).Return(&dynamodb.DeleteItemOutput{}, nil).Once()
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return in.Key["email"].(*types.AttributeValueMemberS).Value == "reissued@b.com"
	})).Return(nil, errCCF).Once()

	n, err := NewOneTimeCodeRepo(api, "codes").DeleteCreatedBefore(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	api.AssertExpectations(t)
}

func TestOneTimeCodeRepo_Put_StoresNanoseconds(t *testing.T) {
	at := t0.Add(900 * time.Microsecond)
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		created, ok := in.Item["created_at"].(*types.AttributeValueMemberN)
		return ok && created.Value == strconv.FormatInt(at.UnixNano(), 10)
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	err := NewOneTimeCodeRepo(api, "codes").Put(context.Background(), domain.OneTimeCode{Email: "a@b.com", Code: "123456", CreatedAt: at})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestOneTimeCodeRepo_Get_RestoresNanoseconds(t *testing.T) {
	at := t0.Add(900 * time.Microsecond)
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"email":      &types.AttributeValueMemberS{Value: "a@b.com"},
		"code":       &types.AttributeValueMemberS{Value: "123456"},
		"created_at": num(at.UnixNano()),
	}}, nil)

	got, err := NewOneTimeCodeRepo(api, "codes").Get(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, at, got.CreatedAt)
}

func TestTierRepo_SeedIgnoresExisting(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, errCCF).Times(len(domain.DefaultTiers))

	require.NoError(t, NewTierRepo(api, "tiers").Seed(context.Background(), domain.DefaultTiers))
	api.AssertExpectations(t)
}

func TestTierRepo_ListSortsByLevel(t *testing.T) {
	api := &mockAPI{}
	api.On("Scan", mock.Anything, mock.Anything).Return(&dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
		{"level": num(1), "name": &types.AttributeValueMemberS{Value: "Basic"}, "max_requests": num(100)},
		{"level": num(0), "name": &types.AttributeValueMemberS{Value: "Free"}, "max_requests": num(20)},
	}}, nil).Once()

	tiers, err := NewTierRepo(api, "tiers").List(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, "Free", tiers[0].Name)
	assert.EqualValues(t, 100, tiers[1].MaxRequests)
}
