package statuscheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaScheduler publishes jobs to a topic consumed by `worker status`. Jobs
// are keyed by tracking token so polls for one message stay on one partition.
type KafkaScheduler struct {
	w *kafka.Writer
}

func NewKafkaScheduler(cfg config.KafkaConfig) (*KafkaScheduler, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka scheduler: brokers and topic are required")
	}
	return &KafkaScheduler{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}, nil
}

func (s *KafkaScheduler) Schedule(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.w.WriteMessages(ctx, kafka.Message{Key: []byte(job.Token), Value: b}); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

func (s *KafkaScheduler) Close() error { return s.w.Close() }

// KafkaSource reads jobs from the consumer group. Offsets are committed when a
// job is acked; undecodable messages are committed and skipped.
type KafkaSource struct {
	r   *kafka.Reader
	log *zap.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, log *zap.Logger) *KafkaSource {
	return &KafkaSource{r: kafka.NewReader(readerConfig(cfg)), log: log}
}

// readerConfig fills in defaults sized for small JSON jobs.
func readerConfig(cfg config.KafkaConfig) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: time.Duration(cfg.CommitInterval) * time.Millisecond,
		MaxWait:        500 * time.Millisecond,
	}
	if rc.GroupID == "" {
		rc.GroupID = "alerts-status"
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = 1
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = 1 << 20
	}
	if rc.CommitInterval <= 0 {
		rc.CommitInterval = time.Second
	}
	return rc
}

func (s *KafkaSource) Fetch(ctx context.Context) (Delivery, error) {
	for {
		m, err := s.r.FetchMessage(ctx)
		if err != nil {
			return Delivery{}, err
		}

		job, err := decodeJob(m.Value)
		if err != nil {
			_ = s.r.CommitMessages(ctx, m) // poison → commit, skip
			s.log.Warn("bad status-check job",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			continue
		}

		return Delivery{
			Job: job,
			Ack: func(ctx context.Context) error { return s.r.CommitMessages(ctx, m) },
		}, nil
	}
}

func (s *KafkaSource) Close() error { return s.r.Close() }

// decodeJob rejects jobs that could never be polled.
func decodeJob(b []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.Token == "" {
		return Job{}, errors.New("job without tracking token")
	}
	return job, nil
}
