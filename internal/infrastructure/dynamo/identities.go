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

type identityItem struct {
	Email             string `dynamodbav:"email"`
	ID                string `dynamodbav:"id"`
	PasswordDigest    string `dynamodbav:"password_digest"`
	Name              string `dynamodbav:"name"`
	Verified          bool   `dynamodbav:"verified"`
	RegisteredAt      int64  `dynamodbav:"registered_at"`
	SubscriptionLevel int    `dynamodbav:"subscription_level"`
}

func (it identityItem) toDomain() domain.Identity {
	return domain.Identity{
		ID:                it.ID,
		Email:             it.Email,
		PasswordDigest:    it.PasswordDigest,
		DisplayName:       it.Name,
		Verified:          it.Verified,
		RegisteredAt:      fromMillis(it.RegisteredAt),
		SubscriptionLevel: it.SubscriptionLevel,
	}
}

// IdentityRepo stores identities keyed by email, with an id-index GSI for id lookups.
type IdentityRepo struct {
	client    API
	tableName string
}

func NewIdentityRepo(client API, tableName string) *IdentityRepo {
	return &IdentityRepo{client: client, tableName: tableName}
}

// Create writes ident unless its email already exists.
func (r *IdentityRepo) Create(ctx context.Context, ident *domain.Identity) error {
	item, err := attributevalue.MarshalMap(identityItem{
		Email:             ident.Email,
		ID:                ident.ID,
		PasswordDigest:    ident.PasswordDigest,
		Name:              ident.DisplayName,
		Verified:          ident.Verified,
		RegisteredAt:      toMillis(ident.RegisteredAt),
		SubscriptionLevel: ident.SubscriptionLevel,
	})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#e)"),
		ExpressionAttributeNames: map[string]string{"#e": fieldEmail},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("email %s: %w", ident.Email, domain.ErrConflict)
	}
	if err != nil {
		return domain.Unavailable("create identity", err)
	}
	return nil
}

func (r *IdentityRepo) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.Unavailable("find identity by email", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var it identityItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	ident := it.toDomain()
	return &ident, nil
}

// FindByID reads through the id-index GSI, which is eventually consistent: an identity created
// moments ago can still report domain.ErrNotFound.
func (r *IdentityRepo) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(idIndex),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: id}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, domain.Unavailable("find identity by id", err)
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	var it identityItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	ident := it.toDomain()
	return &ident, nil
}

func (r *IdentityRepo) MarkVerified(ctx context.Context, email string) error {
	return r.update(ctx, "mark verified", email, map[string]any{fieldVerified: true})
}

func (r *IdentityRepo) UpdatePassword(ctx context.Context, email, digest string) error {
	return r.update(ctx, "update password", email, map[string]any{fieldPasswordDigest: digest})
}

func (r *IdentityRepo) SetSubscriptionLevel(ctx context.Context, id string, level int) error {
	ident, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return r.update(ctx, "set subscription level", ident.Email, map[string]any{fieldSubscriptionLevel: level})
}

// update applies updates to an existing item only; a missing email yields domain.ErrNotFound.
func (r *IdentityRepo) update(ctx context.Context, op, email string, updates map[string]any) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldEmail
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, email),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return domain.Unavailable(op, err)
	}
	return nil
}

func (r *IdentityRepo) Delete(ctx context.Context, email string) (bool, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(r.tableName),
		Key:          strKey(fieldEmail, email),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, domain.Unavailable("delete identity", err)
	}
	return len(out.Attributes) > 0, nil
}

func (r *IdentityRepo) List(ctx context.Context) ([]domain.Identity, error) {
	return r.scan(ctx, "list identities", &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
}

func (r *IdentityRepo) ListUnverified(ctx context.Context) ([]domain.Identity, error) {
	return r.scan(ctx, "list unverified", r.unverifiedScan())
}

// ListRegisteredBetween returns identities registered in [from, to).
func (r *IdentityRepo) ListRegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Identity, error) {
	return r.scan(ctx, "list registered between", &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#r >= :from AND #r < :to"),
		ExpressionAttributeNames: map[string]string{"#r": fieldRegisteredAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": num(toMillis(from)),
			":to":   num(toMillis(to)),
		},
	})
}

// DeleteUnverified removes every identity still unverified at delete time.
func (r *IdentityRepo) DeleteUnverified(ctx context.Context) (int, error) {
	idents, err := r.scan(ctx, "delete unverified", r.unverifiedScan())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ident := range idents {
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       strKey(fieldEmail, ident.Email),
			ConditionExpression:       aws.String("#v = :f"),
			ExpressionAttributeNames:  map[string]string{"#v": fieldVerified},
			ExpressionAttributeValues: map[string]types.AttributeValue{":f": &types.AttributeValueMemberBOOL{Value: false}},
		})
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return n, domain.Unavailable("delete unverified", err)
		}
		n++
	}
	return n, nil
}

func (r *IdentityRepo) unverifiedScan() *dynamodb.ScanInput {
	return &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("#v = :f"),
		ExpressionAttributeNames:  map[string]string{"#v": fieldVerified},
		ExpressionAttributeValues: map[string]types.AttributeValue{":f": &types.AttributeValueMemberBOOL{Value: false}},
	}
}

func (r *IdentityRepo) scan(ctx context.Context, op string, input *dynamodb.ScanInput) ([]domain.Identity, error) {
	var out []domain.Identity
	p := dynamodb.NewScanPaginator(r.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, domain.Unavailable(op, err)
		}
		var items []identityItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal identities: %w", err)
		}
		for _, it := range items {
			out = append(out, it.toDomain())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}
