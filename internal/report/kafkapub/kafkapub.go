package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/types"
)

const writeTimeout = 10 * time.Second

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MatchMessage is the payload for one matched ticker.
type MatchMessage struct {
	RunID     string        `json:"run_id"`
	Date      string        `json:"date"`
	CacheDate string        `json:"cache_date"`
	Stale     bool          `json:"stale"`
	Match     types.ScanRow `json:"match"`
	Timestamp int64         `json:"timestamp"`
}

// Publisher sends every match of a scan to a topic, keyed by ticker.
type Publisher struct {
	writer MessageWriter
	topic  string
}

var _ interfaces.ScanReporter = (*Publisher)(nil)

func New(writer MessageWriter, topic string) *Publisher {
	return &Publisher{writer: writer, topic: topic}
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func Open(brokers []string, topic string) *Publisher {
	return New(NewWriter(brokers, topic), topic)
}

func (p *Publisher) WriteScan(t time.Time, res types.ScanResult) (string, error) {
	if len(res.Matches) == 0 {
		return "", nil
	}

	msgs := make([]kafka.Message, 0, len(res.Matches))
	for _, m := range res.Matches {
		payload, err := json.Marshal(MatchMessage{
			RunID:     res.RunID,
			Date:      t.Format("2006-01-02"),
			CacheDate: res.CacheDate,
			Stale:     res.Stale,
			Match:     m,
			Timestamp: t.UnixMicro(),
		})
		if err != nil {
			return "", err
		}
		// keyed by ticker so a symbol's matches land on one partition
		msgs = append(msgs, kafka.Message{Key: []byte(m.Ticker), Value: payload})
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return "", fmt.Errorf("publish %d matches to %s: %w", len(msgs), p.topic, err)
	}
	return "kafka://" + p.topic, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
