// Package bus carries ingest jobs over NATS: manifests arrive on a subject and
// the outcome of each job is published on {subject}.done or {subject}.failed.
// Trace context travels in message headers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/models"
)

// DefaultSubject is the subject manifests are submitted on.
const DefaultSubject = "shotsearch.jobs"

const queueGroup = "shotsearch-ingest"

// headerCarrier adapts nats.Msg headers for the OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Connect dials the NATS server at url and keeps reconnecting on loss.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("shotsearch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// Publish serializes v as JSON and publishes it to subject with ctx's trace context.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler for JSON messages of type T. Members of the
// same non-empty queue group share the messages. Malformed messages are passed
// to onMalformed when it is set and dropped otherwise.
func Subscribe[T any](nc *nats.Conn, subject, queue string, handler func(context.Context, T), onMalformed func(*nats.Msg, error)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			if onMalformed != nil {
				onMalformed(msg, err)
			}
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, v)
	})
}

// Submit publishes a manifest for ingest.
func Submit(ctx context.Context, nc *nats.Conn, subject string, m *models.Manifest) error {
	return Publish(ctx, nc, subject, m)
}

// JobEvent reports the outcome of one job.
type JobEvent struct {
	Job   *models.Job `json:"job"`
	Error string      `json:"error,omitempty"`
}

// Ingester runs a manifest to completion.
type Ingester interface {
	Ingest(ctx context.Context, m *models.Manifest) (*models.Job, error)
}

// Consumer runs the manifests received on a subject.
type Consumer struct {
	nc       *nats.Conn
	subject  string
	ingester Ingester
	logger   *zap.Logger
	sub      *nats.Subscription
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

// NewConsumer creates a consumer of subject. An empty subject uses DefaultSubject.
func NewConsumer(nc *nats.Conn, subject string, ingester Ingester, opts ...ConsumerOption) *Consumer {
	if subject == "" {
		subject = DefaultSubject
	}
	c := &Consumer{nc: nc, subject: subject, ingester: ingester, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DoneSubject is where successful jobs are reported.
func (c *Consumer) DoneSubject() string { return c.subject + ".done" }

// FailedSubject is where failed jobs are reported.
func (c *Consumer) FailedSubject() string { return c.subject + ".failed" }

// Start subscribes. Jobs run one at a time on the subscription's goroutine.
func (c *Consumer) Start() error {
	sub, err := Subscribe(c.nc, c.subject, queueGroup, c.handle, func(msg *nats.Msg, err error) {
		c.logger.Warn("dropping malformed manifest", zap.String("subject", msg.Subject), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub
	c.logger.Info("ingest consumer started", zap.String("subject", c.subject))
	return nil
}

func (c *Consumer) handle(ctx context.Context, m models.Manifest) {
	job, err := c.ingester.Ingest(ctx, &m)
	if err != nil {
		if job == nil {
			job = &models.Job{ID: m.JobID, VideoName: m.VideoName, Status: models.JobFailed, Error: err.Error()}
		}
		c.logger.Error("ingest failed", zap.String("job_id", job.ID), zap.Error(err))
		if pubErr := Publish(ctx, c.nc, c.FailedSubject(), JobEvent{Job: job, Error: err.Error()}); pubErr != nil {
			c.logger.Error("failed to publish job failure", zap.Error(pubErr))
		}
		return
	}
	if err := Publish(ctx, c.nc, c.DoneSubject(), JobEvent{Job: job}); err != nil {
		c.logger.Error("failed to publish job result", zap.Error(err))
	}
}

// Stop drains the subscription, letting the job in progress finish.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}
