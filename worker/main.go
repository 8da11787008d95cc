package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/content-radar/backend/internal/config"
	"github.com/DeafMist/content-radar/backend/internal/dedupe"
	"github.com/DeafMist/content-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/content-radar/backend/internal/engine"
	"github.com/DeafMist/content-radar/backend/internal/logger"
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

// rawPost is the message published by the scrapers on the posts topic.
type rawPost struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Timestamp   string `json:"timestamp"`
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

type postIndexer interface {
	IndexPost(ctx context.Context, doc models.PostDocument) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache[struct{}](cfg.DedupeCapacity, cfg.DedupeTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			// an uncommitted message is redelivered after a restart
			if !sendToDLQ(ctx, log, dlqWriter, msg, err, time.Second) {
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ copies msg with error headers to the dead letter topic, retrying
// with exponential backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, base time.Duration) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "error_field", Value: []byte(errorField(cause))},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * base
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries, message left uncommitted",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

func errorField(err error) string {
	var malformed *engine.MalformedInputError
	if errors.As(err, &malformed) {
		return malformed.Field
	}
	return ""
}

func processMessage(ctx context.Context, log *slog.Logger, esClient postIndexer, cache *dedupe.Cache[struct{}], cfg *config.Worker, msg kafka.Message) error {
	var payload rawPost
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode post: %w", err)
	}

	agentID := strings.TrimSpace(payload.AgentID)
	tsRaw := strings.TrimSpace(payload.Timestamp)

	id := strings.TrimSpace(payload.ID)
	if id == "" {
		if ts := processing.ParseTimestamp(tsRaw); !ts.IsZero() {
			id = processing.BuildPostID(agentID, payload.Text, ts)
		} else {
			id = uuid.NewString()
		}
	}

	post, err := engine.ParseRecord(engine.PostRecord{
		ID:          id,
		AgentID:     agentID,
		Timestamp:   tsRaw,
		RawText:     payload.Text,
		ContentType: strings.TrimSpace(payload.ContentType),
	}, 0, time.UTC)
	if err != nil {
		return err
	}

	if cache.IsSeen(post.ID) {
		log.Debug("duplicate post", slog.String("id", post.ID))
		return nil
	}

	doc := models.PostDocument{
		ID:          post.ID,
		AgentID:     post.AgentID,
		Timestamp:   post.Timestamp,
		Text:        post.RawText,
		Normalized:  post.Normalized,
		ContentHash: post.ContentHash,
		ContentType: post.ContentType,
		Keywords:    processing.ExtractKeywords(post.RawText, cfg.KeywordLimit, cfg.KeywordMinLength),
		URLs:        processing.ExtractURLs(post.RawText),
	}

	if err := esClient.IndexPost(ctx, doc); err != nil {
		return err
	}

	cache.MarkSeen(doc.ID)
	log.Info("indexed post",
		slog.String("id", doc.ID),
		slog.String("agent_id", doc.AgentID),
		slog.Bool("empty", post.Empty()),
	)
	return nil
}
