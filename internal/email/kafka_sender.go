package email

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// Event is the payload a downstream mail service consumes.
type Event struct {
	TemplateID    string            `json:"template_id"`
	To            string            `json:"to"`
	Subject       string            `json:"subject"`
	HTML          string            `json:"html"`
	Substitutions map[string]string `json:"substitutions"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Username     string
	Password     string
	WriteTimeout time.Duration
}

type KafkaSender struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaSender(cfg KafkaConfig) *KafkaSender {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.Username != "" {
		writer.Transport = &kafka.Transport{
			SASL: plain.Mechanism{Username: cfg.Username, Password: cfg.Password},
			TLS:  &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	return &KafkaSender{writer: writer, now: time.Now}
}

func (s *KafkaSender) SendTemplated(ctx context.Context, templateID string, to string, substitutions map[string]string) error {
	msg, err := Render(templateID, to, substitutions)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	payload, err := json.Marshal(Event{
		TemplateID:    msg.TemplateID,
		To:            msg.To,
		Subject:       msg.Subject,
		HTML:          msg.HTML,
		Substitutions: substitutions,
		OccurredAt:    now,
	})
	if err != nil {
		return fmt.Errorf("encode email event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(templateID),
		Value: payload,
		Time:  now,
	})
	if err != nil {
		return fmt.Errorf("publish email event: %w", err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
