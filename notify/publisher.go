package notify

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/config"
)

const defaultTopic = "finrecords-events"

// Event is the wire shape of a record-mutation notification for downstream
// consumers (audit, reporting exports). Best effort: the mutation has already
// committed and is never rolled back on publish failure.
type Event struct {
	Kind          string    `json:"kind"`
	CompanyId     string    `json:"companyId"`
	TransactionId string    `json:"transactionId,omitempty"`
	UserId        string    `json:"userId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher struct {
	topic  *pubsub.Topic
	logger *logrus.Logger
}

// NewPublisher connects to Pub/Sub. Returns a no-op publisher when the
// project is not configured, so local setups run without GCP credentials.
func NewPublisher(ctx context.Context, logger *logrus.Logger) *Publisher {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		if logger != nil {
			logger.WithField("module", "notify").Warn("pubsub disabled: " + err.Error())
		}
		return &Publisher{logger: logger}
	}

	topicName := os.Getenv("PUBSUB_TOPIC")
	if topicName == "" {
		topicName = defaultTopic
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, topicName)
	if err != nil {
		config.LogError(logger, "notify", "NewPublisher", "create topic", topicName, err)
		return &Publisher{logger: logger}
	}
	return &Publisher{topic: topic, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p.topic == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		config.LogError(p.logger, "notify", "Publish", event.Kind, event.CompanyId, err)
		return
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":      event.Kind,
			"companyId": event.CompanyId,
		},
	})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			config.LogError(p.logger, "notify", "Publish", event.Kind, event.CompanyId, err)
		}
	}()
}

func (p *Publisher) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
