package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/lox/wdqms/internal/ingest"
)

// ReportWriter publishes ingest unit reports to a Kafka topic.
// It implements ingest.ReportSink.
type ReportWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

func NewReportWriter(brokers []string, topic string, logger *slog.Logger) *ReportWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	return &ReportWriter{writer: w, logger: logger}
}

func (w *ReportWriter) Publish(ctx context.Context, report ingest.UnitReport) error {
	msg, err := serializeReport(report)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish unit report %s: %w", report.Key(), err)
	}
	w.logger.Debug("unit report published", "unit", report.Key(), "topic", w.writer.Topic)
	return nil
}

func (w *ReportWriter) Close() error {
	return w.writer.Close()
}

// serializeReport marshals a report into a message keyed by unit.
func serializeReport(report ingest.UnitReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize unit report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "success", Value: []byte(strconv.FormatBool(report.Success))},
			{Key: "finished_at", Value: []byte(report.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}

var _ ingest.ReportSink = (*ReportWriter)(nil)
