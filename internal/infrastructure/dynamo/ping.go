package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-identity-quota/internal/domain"
)

type describeAPI interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Pinger reports the backend ready when every table is ACTIVE.
type Pinger struct {
	client describeAPI
	tables []string
}

func NewPinger(client describeAPI, tables ...string) *Pinger {
	return &Pinger{client: client, tables: tables}
}

func (p *Pinger) PingContext(ctx context.Context) error {
	for _, name := range p.tables {
		out, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
		if err != nil {
			return domain.Unavailable("describe table "+name, err)
		}
		if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
			return fmt.Errorf("table %s not active: %w", name, domain.ErrStoreUnavailable)
		}
	}
	return nil
}
