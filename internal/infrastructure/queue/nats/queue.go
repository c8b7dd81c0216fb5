package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const recorderGroup = "run-recorders"

// RunEvents publishes prediction runs from API instances and delivers them
// to workers that persist the history.
type RunEvents struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*RunEvents, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*RunEvents, error) {
	name := options.Name
	if name == "" {
		name = "loansphere"
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &RunEvents{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *RunEvents) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// RecordRun publishes the run on the configured subject.
func (q *RunEvents) RecordRun(ctx context.Context, run domain.PredictionRun) error {
	payload, err := encodeRun(run)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeRuns blocks until ctx is done, handing every decoded run to
// handler. Malformed payloads are logged and dropped.
func (q *RunEvents) SubscribeRuns(ctx context.Context, handler func(context.Context, domain.PredictionRun) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, recorderGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		run, err := decodeRun(msg.Data)
		if err != nil {
			slog.Error("run_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, run); err != nil {
			slog.Error("run_event_handler_failed", "run_id", run.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeRun(run domain.PredictionRun) ([]byte, error) {
	payload, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run event: %w", err)
	}
	return payload, nil
}

func decodeRun(data []byte) (domain.PredictionRun, error) {
	var run domain.PredictionRun
	if err := json.Unmarshal(data, &run); err != nil {
		return domain.PredictionRun{}, fmt.Errorf("decode run event: %w", err)
	}
	if run.ID == "" {
		return domain.PredictionRun{}, errors.New("decode run event: missing id")
	}
	return run, nil
}
