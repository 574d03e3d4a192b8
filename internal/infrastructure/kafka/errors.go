package kafka

import (
	"errors"
	"fmt"
	"net"

	"github.com/IBM/sarama"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// classify maps sarama errors onto the operator's error kinds.
func classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)

	var kerr sarama.KError
	if errors.As(err, &kerr) {
		switch kerr {
		case sarama.ErrNotLeaderForPartition,
			sarama.ErrLeaderNotAvailable,
			sarama.ErrRequestTimedOut,
			sarama.ErrNetworkException,
			sarama.ErrNotEnoughReplicas,
			sarama.ErrNotEnoughReplicasAfterAppend,
			sarama.ErrConsumerCoordinatorNotAvailable,
			sarama.ErrNotCoordinatorForConsumer,
			sarama.ErrOffsetsLoadInProgress,
			sarama.ErrKafkaStorageError,
			sarama.ErrRebalanceInProgress:
			return apperrors.Transient(err, msg)
		case sarama.ErrSASLAuthenticationFailed,
			sarama.ErrTopicAuthorizationFailed,
			sarama.ErrGroupAuthorizationFailed,
			sarama.ErrClusterAuthorizationFailed,
			sarama.ErrUnknownTopicOrPartition:
			return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
		}
	}

	switch {
	case errors.Is(err, sarama.ErrOutOfBrokers),
		errors.Is(err, sarama.ErrNotConnected),
		errors.Is(err, sarama.ErrControllerNotAvailable),
		errors.Is(err, sarama.ErrIncompleteResponse):
		return apperrors.Transient(err, msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Transient(err, msg)
	}

	return apperrors.Wrap(err, apperrors.ErrCodeInternal, msg)
}
