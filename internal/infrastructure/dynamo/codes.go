package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-identity-quota/internal/domain"
)

type codeItem struct {
	Email     string `dynamodbav:"email"`
	Code      string `dynamodbav:"code"`
	CreatedAt int64  `dynamodbav:"created_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

type OneTimeCodeRepo struct {
	client    API
	tableName string
}

func NewOneTimeCodeRepo(client API, tableName string) *OneTimeCodeRepo {
	return &OneTimeCodeRepo{client: client, tableName: tableName}
}

// Put replaces the code for c.Email unconditionally.
func (r *OneTimeCodeRepo) Put(ctx context.Context, c domain.OneTimeCode) error {
	item, err := attributevalue.MarshalMap(codeItem{
		Email:     c.Email,
		Code:      c.Code,
		CreatedAt: toNanos(c.CreatedAt),
		ExpiresAt: ttlAt(c.CreatedAt.Add(domain.CodeRetention)),
	})
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return domain.Unavailable("put code", err)
	}
	return nil
}

func (r *OneTimeCodeRepo) Get(ctx context.Context, email string) (*domain.OneTimeCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.Unavailable("get code", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var it codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	return &domain.OneTimeCode{Email: it.Email, Code: it.Code, CreatedAt: fromNanos(it.CreatedAt)}, nil
}

// DeleteCreatedBefore scans for stale codes and deletes each one conditionally, so a code
// reissued between the scan and the delete survives.
func (r *OneTimeCodeRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return deleteOlderThan(ctx, r.client, r.tableName, fieldEmail, fieldCreatedAt, toNanos(cutoff), "sweep codes")
}

// deleteOlderThan removes every item of table whose tsField is strictly below cutoff,
// re-checking the predicate at delete time.
func deleteOlderThan(ctx context.Context, client API, table, keyField, tsField string, cutoff int64, op string) (int, error) {
	names := map[string]string{"#k": keyField, "#ts": tsField}
	values := map[string]types.AttributeValue{":c": num(cutoff)}
	p := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String("#ts < :c"),
		ProjectionExpression:      aws.String("#k"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, domain.Unavailable(op, err)
		}
		for _, item := range page.Items {
			_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(table),
				Key:                       map[string]types.AttributeValue{keyField: item[keyField]},
				ConditionExpression:       aws.String("#ts < :c"),
				ExpressionAttributeNames:  map[string]string{"#ts": tsField},
				ExpressionAttributeValues: values,
			})
			if isConditionFailed(err) {
				continue
			}
			if err != nil {
				return n, domain.Unavailable(op, err)
			}
			n++
		}
	}
	return n, nil
}
