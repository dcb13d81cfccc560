package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
)

const (
	headerEventType = "event_type"

	// consumerRetryDelay spaces consumer group sessions after an error.
	consumerRetryDelay = time.Second
)

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string         // default "senseval-bus"
	Version       string         // Kafka protocol version, default "2.8.0"
	Logger        *logger.Logger // default discards
}

// KafkaBus publishes events with a sync producer and consumes them through a
// consumer group, one session loop per subscribed topic.
type KafkaBus struct {
	log      *logger.Logger
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	stop      context.CancelFunc
	stopCtx   context.Context
	consumers sync.WaitGroup
}

// NewKafkaBus connects to the brokers in cfg.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	sc, err := saramaConfig(&cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "connecting to kafka", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "creating kafka producer", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "creating kafka consumer group", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		log:      cfg.Logger,
		client:   client,
		producer: producer,
		group:    group,
		handlers: make(map[string][]Handler),
		stop:     cancel,
		stopCtx:  ctx,
	}, nil
}

// saramaConfig validates cfg, fills its defaults and builds the client
// configuration.
func saramaConfig(cfg *KafkaConfig) (*sarama.Config, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeValidation, "kafka brokers cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New(errors.CodeValidation, "kafka consumer group cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "senseval-bus"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid kafka version", err).
			WithDetail("version", cfg.Version)
	}

	sc := sarama.NewConfig()
	sc.Version = version
	sc.ClientID = cfg.ClientID

	// Evaluation results are rare and must not be lost.
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 10 * time.Second
	sc.Net.WriteTimeout = 10 * time.Second
	return sc, nil
}

// Publish sends event to topic, keyed by event ID.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errClosed()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := producerMessage(topic, event)
	if err != nil {
		return err
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "publishing to kafka", err).WithDetail("topic", topic)
	}
	return nil
}

func producerMessage(topic string, event Event) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "encoding event", err)
	}

	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(event.ID),
		Value:   sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{{Key: []byte(headerEventType), Value: []byte(event.Type)}},
	}, nil
}

// Subscribe adds handler for topic. The first subscription to a topic starts
// its consumer loop, which runs until Close.
func (b *KafkaBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed()
	}

	first := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], handler)
	if first {
		b.consumers.Go(func() { b.consume(topic) })
	}
	return nil
}

func (b *KafkaBus) consume(topic string) {
	claim := &topicConsumer{bus: b, topic: topic}
	for {
		// Consume returns when a rebalance ends the session or on error.
		if err := b.group.Consume(b.stopCtx, []string{topic}, claim); err != nil {
			b.log.WithError(err).Warn("Kafka consumer session failed", "topic", topic)
		}

		select {
		case <-b.stopCtx.Done():
			return
		case <-time.After(consumerRetryDelay):
		}
	}
}

// subscribers returns the handlers of topic.
func (b *KafkaBus) subscribers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handlers[topic]
}

// Close stops the consumer loops and releases the connections. Closing twice
// is a no-op.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()

	b.stop()
	b.consumers.Wait()

	if err := stderrors.Join(b.group.Close(), b.producer.Close(), b.client.Close()); err != nil {
		return errors.Wrap(errors.CodeInternal, "closing kafka bus", err)
	}
	return nil
}

// topicConsumer implements sarama.ConsumerGroupHandler for one topic.
type topicConsumer struct {
	bus   *KafkaBus
	topic string
}

func (*topicConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*topicConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim dispatches each message of a partition claim in order and
// marks it consumed.
func (c *topicConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.dispatch(ctx, msg.Value)
			session.MarkMessage(msg, "")
		}
	}
}

// dispatch decodes one message and runs every handler of the topic on it.
// Messages that do not decode are logged and skipped.
func (c *topicConsumer) dispatch(ctx context.Context, value []byte) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		c.bus.log.WithError(err).Warn("Skipping undecodable kafka message", "topic", c.topic)
		return
	}

	for _, h := range c.bus.subscribers(c.topic) {
		if err := h(ctx, event); err != nil {
			c.bus.log.WithError(err).Warn("Event handler failed", "topic", c.topic, "event_id", event.ID)
		}
	}
}

// ParseKafkaBrokers splits a comma-separated broker list, dropping blanks.
func ParseKafkaBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
