// Package publish streams classified packet records to Kafka for downstream
// consumers. Publishing is best-effort: a broker outage never stalls or fails
// the capture pipeline.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"netscope.xyz/netscope/internal/config"
	"netscope.xyz/netscope/internal/core"
)

// Publisher sends packet records to a Kafka topic, batched and compressed by
// the underlying writer.
type Publisher struct {
	writer *kafka.Writer
	topic  string

	published atomic.Uint64
	errors    atomic.Uint64
}

// New builds a publisher from configuration. Brokers and topic are required;
// config.Validate enforces that before this is reached.
func New(cfg config.PublishConfig) (*Publisher, error) {
	wc := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        false,
	}

	switch cfg.Compression {
	case "none", "":
		wc.CompressionCodec = nil
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("publish: unknown compression %q", cfg.Compression)
	}

	p := &Publisher{
		writer: kafka.NewWriter(wc),
		topic:  cfg.Topic,
	}
	slog.Info("kafka publisher ready",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"batch_size", cfg.BatchSize,
		"compression", cfg.Compression,
	)
	return p, nil
}

// Publish sends one record. Messages are keyed by flow endpoints so packets
// of the same conversation land on the same partition.
func (p *Publisher) Publish(ctx context.Context, rec core.PacketRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("publish: marshal record: %w", err)
	}

	msg := kafka.Message{
		Key:   flowKey(rec),
		Value: value,
		Time:  rec.Timestamp,
	}
	if rec.SessionID != "" {
		msg.Headers = []kafka.Header{{Key: "session_id", Value: []byte(rec.SessionID)}}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("publish: kafka write: %w", err)
	}
	p.published.Add(1)
	return nil
}

// Published returns the number of records successfully written so far.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Errors returns the number of failed publish attempts so far.
func (p *Publisher) Errors() uint64 { return p.errors.Load() }

// Close flushes pending batches and releases the writer.
func (p *Publisher) Close() error {
	err := p.writer.Close()
	slog.Info("kafka publisher stopped",
		"topic", p.topic,
		"published", p.published.Load(),
		"errors", p.errors.Load(),
	)
	return err
}

func flowKey(rec core.PacketRecord) []byte {
	if rec.HasPorts() {
		return []byte(fmt.Sprintf("%s:%d-%s:%d", rec.SrcIP, rec.SrcPort, rec.DstIP, rec.DstPort))
	}
	return []byte(fmt.Sprintf("%s-%s-%s", rec.SrcIP, rec.DstIP, rec.Protocol))
}
