package sns

import (
	"context"
	"fmt"

	"github.com/appointment-watch/internal/config"
	"github.com/appointment-watch/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// PublishAPI is the SNS call the sender needs.
type PublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicSender publishes notifications to an SNS topic. Subscribers of the topic
// (an email endpoint, a Lambda, a queue) route on the "recipient" attribute.
type TopicSender struct {
	client   PublishAPI
	topicARN string
}

// NewClient creates an SNS client in cfg.SNSRegion.
func NewClient(awsCfg aws.Config, cfg *config.Config) *sns.Client {
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.Region = cfg.SNSRegion
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
}

func NewTopicSender(client PublishAPI, topicARN string) *TopicSender {
	return &TopicSender{client: client, topicARN: topicARN}
}

func (s *TopicSender) Send(ctx context.Context, msg domain.Message) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(msg.Subject),
		Message:  aws.String(msg.HTML),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient": {DataType: aws.String("String"), StringValue: aws.String(msg.To)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
