package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/violation.report/internal/traffic"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaSourceConfig carries broker and topic settings for the Kafka frame
// feed. SASL fields are optional; empty values configure a plaintext broker.
type KafkaSourceConfig struct {
	BootstrapServers string
	GroupID          string
	Topic            string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
}

// KafkaConfigFromEnv reads broker settings from the environment, matching
// the edge deployment's variable names.
func KafkaConfigFromEnv() KafkaSourceConfig {
	return KafkaSourceConfig{
		BootstrapServers: getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"),
		GroupID:          getEnv("KAFKA_GROUP_ID", "violation-report"),
		Topic:            getEnv("KAFKA_TOPIC", "traffic-frame-detections"),
		SecurityProtocol: os.Getenv("KAFKA_SECURITY_PROTOCOL"),
		SASLMechanism:    os.Getenv("KAFKA_SASL_MECHANISM"),
		SASLUsername:     os.Getenv("KAFKA_SASL_USERNAME"),
		SASLPassword:     os.Getenv("KAFKA_SASL_PASSWORD"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// KafkaSource consumes frame envelopes from a Kafka topic. Messages are keyed
// by stream id upstream, so one stream's frames live on one partition and
// arrive in order.
type KafkaSource struct {
	config  KafkaSourceConfig
	handler FrameHandler
}

// NewKafkaSource builds a consumer delivering frames to handler.
func NewKafkaSource(config KafkaSourceConfig, handler FrameHandler) (*KafkaSource, error) {
	if config.BootstrapServers == "" {
		return nil, fmt.Errorf("kafka source requires bootstrap servers")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka source requires a topic")
	}
	return &KafkaSource{config: config, handler: handler}, nil
}

func (s *KafkaSource) consumerConfig() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":  s.config.BootstrapServers,
		"group.id":           s.config.GroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	}
	if s.config.SecurityProtocol != "" {
		cm.SetKey("security.protocol", s.config.SecurityProtocol)
		cm.SetKey("sasl.mechanism", s.config.SASLMechanism)
		cm.SetKey("sasl.username", s.config.SASLUsername)
		cm.SetKey("sasl.password", s.config.SASLPassword)
	}
	return cm
}

// Run consumes until ctx is cancelled. Malformed messages and handler
// rejections are logged and skipped; broker errors terminate the source.
func (s *KafkaSource) Run(ctx context.Context) error {
	consumer, err := kafka.NewConsumer(s.consumerConfig())
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	defer consumer.Close()

	if err := consumer.SubscribeTopics([]string{s.config.Topic}, nil); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Topic, err)
	}
	traffic.Opsf("kafka ingest consuming %s from %s", s.config.Topic, s.config.BootstrapServers)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Bounded poll so cancellation is noticed promptly.
		msg, err := consumer.ReadMessage(100 * time.Millisecond)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			return fmt.Errorf("kafka read failed: %w", err)
		}

		env, err := DecodeFrame(msg.Value)
		if err != nil {
			traffic.Diagf("dropping malformed kafka message at %v: %v", msg.TopicPartition, err)
			continue
		}
		if err := s.handler.Process(env.StreamID, env.FrameRate, env.Frame()); err != nil {
			traffic.Diagf("kafka frame %d on stream %s rejected: %v", env.FrameIndex, env.StreamID, err)
		}
	}
}
