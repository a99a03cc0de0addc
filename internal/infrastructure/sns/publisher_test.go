package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublish struct{ mock.Mock }

func (m *mockPublish) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestSend_PublishesJSONToTopic(t *testing.T) {
	api := &mockPublish{}
	var got *sns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{}, nil)

	p := &Publisher{client: api, topicARN: "arn:aws:sns:us-east-1:000000000000:mail"}
	require.NoError(t, p.Send(context.Background(), "a@b.com", "Your code", "123456"))

	require.NotNil(t, got)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:mail", *got.TopicArn)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(*got.Message), &msg))
	assert.Equal(t, Message{To: "a@b.com", Subject: "Your code", Body: "123456"}, msg)
}

func TestSend_WrapsPublishError(t *testing.T) {
	api := &mockPublish{}
	boom := errors.New("boom")
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, boom)

	p := &Publisher{client: api, topicARN: "arn"}
	assert.ErrorIs(t, p.Send(context.Background(), "a@b.com", "s", "b"), boom)
}
