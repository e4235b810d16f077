package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
)

const EventOrderActivated = "order.activated"

type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// OrderActivated feeds the top-idol ranking.
type OrderActivated struct {
	Event         string     `json:"event"`
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	PackageID     string     `json:"package_id"`
	IdolID        string     `json:"idol_id"`
	PaymentMethod string     `json:"payment_method"`
	Total         int64      `json:"total"`
	Currency      string     `json:"currency"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	now      func() time.Time
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		now:      time.Now,
	}
}

// NewSQSClient loads the default AWS credential chain for the given region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region = strings.TrimSpace(region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

func (p *SQSPublisher) PublishOrderActivated(ctx context.Context, order *entity.Order, idolID string) error {
	event := OrderActivated{
		Event:         EventOrderActivated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		PackageID:     order.PackageID,
		IdolID:        idolID,
		PaymentMethod: string(order.PaymentMethod),
		Total:         order.Total,
		Currency:      order.Currency,
		ExpiresAt:     order.ExpiredAt,
		OccurredAt:    p.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", EventOrderActivated, err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event":   {DataType: aws.String("String"), StringValue: aws.String(EventOrderActivated)},
			"idol_id": {DataType: aws.String("String"), StringValue: aws.String(idolID)},
		},
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

type NoopPublisher struct {
	logger logrus.FieldLogger
}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{logger: factory.NewModuleLogger("analytics")}
}

func (p *NoopPublisher) PublishOrderActivated(_ context.Context, order *entity.Order, idolID string) error {
	p.logger.WithFields(logrus.Fields{"order_id": order.ID, "idol_id": idolID}).Debug("analytics disabled, activation skipped")
	return nil
}
