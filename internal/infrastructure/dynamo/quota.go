package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-identity-quota/internal/domain"
)

type tierItem struct {
	Level       int    `dynamodbav:"level"`
	Name        string `dynamodbav:"name"`
	MaxRequests int64  `dynamodbav:"max_requests"`
}

type TierRepo struct {
	client    API
	tableName string
}

func NewTierRepo(client API, tableName string) *TierRepo {
	return &TierRepo{client: client, tableName: tableName}
}

// Seed writes each tier whose level is not present yet.
func (r *TierRepo) Seed(ctx context.Context, tiers []domain.SubscriptionTier) error {
	for _, t := range tiers {
		item, err := attributevalue.MarshalMap(tierItem(t))
		if err != nil {
			return fmt.Errorf("marshal tier: %w", err)
		}
		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                aws.String(r.tableName),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#l)"),
			ExpressionAttributeNames: map[string]string{"#l": fieldLevel},
		})
		if err != nil && !isConditionFailed(err) {
			return domain.Unavailable("seed tiers", err)
		}
	}
	return nil
}

func (r *TierRepo) Get(ctx context.Context, level int) (*domain.SubscriptionTier, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       numKey(fieldLevel, level),
	})
	if err != nil {
		return nil, domain.Unavailable("get tier", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var it tierItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal tier: %w", err)
	}
	t := domain.SubscriptionTier(it)
	return &t, nil
}

func (r *TierRepo) List(ctx context.Context) ([]domain.SubscriptionTier, error) {
	var out []domain.SubscriptionTier
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, domain.Unavailable("list tiers", err)
		}
		var items []tierItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal tiers: %w", err)
		}
		for _, it := range items {
			out = append(out, domain.SubscriptionTier(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

type counterItem struct {
	IdentityID    string `dynamodbav:"identity_id"`
	RequestsMade  int64  `dynamodbav:"requests_made"`
	LastRequestAt int64  `dynamodbav:"last_request_at"`
}

type QuotaRepo struct {
	client    API
	tableName string
}

func NewQuotaRepo(client API, tableName string) *QuotaRepo {
	return &QuotaRepo{client: client, tableName: tableName}
}

// Increment is one conditional UpdateItem. ADD creates requests_made at 1 for a new counter;
// the condition rejects the write once an existing counter has reached max.
func (r *QuotaRepo) Increment(ctx context.Context, identityID string, max int64, at time.Time) (bool, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey(fieldIdentityID, identityID),
		UpdateExpression: aws.String("SET #at = :at, #exp = :exp ADD #n :one"),
		ExpressionAttributeNames: map[string]string{
			"#at":  fieldLastRequestAt,
			"#exp": fieldExpiresAt,
			"#n":   fieldRequestsMade,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":  num(toMillis(at)),
			":exp": num(ttlAt(at.Add(domain.CounterRetention))),
			":one": num(1),
		},
	}
	if max != domain.Unlimited {
		input.ConditionExpression = aws.String("attribute_not_exists(#pk) OR #n < :max")
		input.ExpressionAttributeNames["#pk"] = fieldIdentityID
		input.ExpressionAttributeValues[":max"] = num(max)
	}
	_, err := r.client.UpdateItem(ctx, input)
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, domain.Unavailable("increment quota", err)
	}
	return true, nil
}

func (r *QuotaRepo) Get(ctx context.Context, identityID string) (*domain.QuotaCounter, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldIdentityID, identityID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.Unavailable("get quota", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var it counterItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal counter: %w", err)
	}
	return &domain.QuotaCounter{
		IdentityID:    it.IdentityID,
		RequestsMade:  it.RequestsMade,
		LastRequestAt: fromMillis(it.LastRequestAt),
	}, nil
}

func (r *QuotaRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return deleteOlderThan(ctx, r.client, r.tableName, fieldIdentityID, fieldLastRequestAt, toMillis(cutoff), "sweep quota")
}
