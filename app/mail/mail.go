package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindConfirmEmail  Kind = "confirm_email"
	KindResetPassword Kind = "reset_password"
)

// Message is the event handed to the mail worker. The worker owns templating and SMTP.
type Message struct {
	Kind     Kind   `json:"kind"`
	To       string `json:"to"`
	Username string `json:"username"`
	Token    string `json:"token"`
	Link     string `json:"link"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Link builds the front-end URL a mail points at, e.g. <base>/confirm-email?token=...
func Link(baseURL string, kind Kind, token string) string {
	path := "/confirm-email"
	if kind == KindResetPassword {
		path = "/reset-password"
	}
	return baseURL + path + "?token=" + url.QueryEscape(token)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaMailer struct {
	writer messageWriter
}

func NewKafkaMailer(brokers []string, topic string) *KafkaMailer {
	return newKafkaMailer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

func newKafkaMailer(writer messageWriter) *KafkaMailer {
	return &KafkaMailer{writer: writer}
}

func (m *KafkaMailer) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail: json.Marshal failed: %w", err)
	}

	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: data,
	}); err != nil {
		return fmt.Errorf("mail: publish failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"kind": msg.Kind,
		"to":   msg.To,
	}).Debug("Mail event published")
	return nil
}

func (m *KafkaMailer) Close() error {
	return m.writer.Close()
}

// LogMailer is used when no brokers are configured. Links are logged so local setups stay usable.
type LogMailer struct {
	logger logrus.FieldLogger
}

func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.WithFields(logrus.Fields{
		"kind":     msg.Kind,
		"to":       msg.To,
		"username": msg.Username,
		"link":     msg.Link,
	}).Info("Mail not sent, no brokers configured")
	return nil
}

func (m *LogMailer) Close() error {
	return nil
}
