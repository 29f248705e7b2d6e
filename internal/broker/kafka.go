package broker

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaClient is a Client backed by an IBM/sarama consumer group per topic
// subscription. Each Subscribe call starts its own consumer group session
// and claim handler feeding the shared channel shape channelIterator
// expects, the same way a Kinesis shard poller does.
type KafkaClient struct {
	brokers []string
	config  *sarama.Config
	logger  *zap.Logger
}

// NewKafkaClient builds a client over brokers. config may be nil, in which
// case sarama.NewConfig() defaults are used. Consumer.Return.Errors is
// enabled on whichever config is used (a caller-supplied one is modified in
// place) so upstream errors surface as ErrIteratorTimeout's sibling error
// path instead of being dropped.
func NewKafkaClient(brokers []string, config *sarama.Config, logger *zap.Logger) *KafkaClient {
	if config == nil {
		config = sarama.NewConfig()
	}
	config.Consumer.Return.Errors = true
	return &KafkaClient{brokers: brokers, config: config, logger: logger.Named("broker.kafka")}
}

func (c *KafkaClient) Subscribe(ctx context.Context, groupID, topic string) (Iterator, error) {
	group, err := sarama.NewConsumerGroup(c.brokers, groupID, c.config)
	if err != nil {
		return nil, fmt.Errorf("broker: new consumer group for %q: %w", groupID, err)
	}

	handler := newKafkaConsumerHandler(256)
	groupCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for groupCtx.Err() == nil {
			if err := group.Consume(groupCtx, []string{topic}, handler); err != nil {
				select {
				case handler.errs <- fmt.Errorf("broker: consume %q: %w", topic, err):
				case <-groupCtx.Done():
					return
				}
				return
			}
		}
	}()

	go func() {
		for err := range group.Errors() {
			select {
			case handler.errs <- err:
			case <-groupCtx.Done():
				return
			}
		}
	}()

	closeFn := func() error {
		cancel()
		err := group.Close()
		<-done
		return err
	}
	return newChannelIterator(handler.messages, handler.errs, groupCtx.Done(), closeFn), nil
}

func (c *KafkaClient) Close() error { return nil }

// kafkaConsumerHandler adapts a sarama.ConsumerGroupHandler into the bounded
// channel shape every backend feeds into a channelIterator.
type kafkaConsumerHandler struct {
	messages chan Message
	errs     chan error
}

func newKafkaConsumerHandler(bufSize int) *kafkaConsumerHandler {
	return &kafkaConsumerHandler{
		messages: make(chan Message, bufSize),
		errs:     make(chan error, 1),
	}
}

func (h *kafkaConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *kafkaConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.messages <- Message{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
				Timestamp: msg.Timestamp,
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
