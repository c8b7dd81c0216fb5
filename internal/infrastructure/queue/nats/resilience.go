package nats

import (
	"errors"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

// classifyNATSError retries connection level failures. Payload and subject
// errors fail immediately.
func classifyNATSError(err error) resilience.ErrorClassification {
	for _, transient := range transientErrors {
		if errors.Is(err, transient) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ClassifyTemporary(err)
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish run", err)
	}
	return err
}
