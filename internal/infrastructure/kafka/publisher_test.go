package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	domainErrors "github.com/cassiomorais/eventrelay/internal/domain/errors"
	"github.com/cassiomorais/eventrelay/internal/publisher"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantSentinel  error
	}{
		{
			name:          "message too large is permanent",
			err:           sarama.ErrMessageSizeTooLarge,
			wantTransient: false,
			wantSentinel:  domainErrors.ErrPublishRejected,
		},
		{
			name:          "invalid topic is permanent",
			err:           sarama.ErrInvalidTopic,
			wantTransient: false,
			wantSentinel:  domainErrors.ErrPublishRejected,
		},
		{
			name:          "leader election is transient",
			err:           sarama.ErrLeaderNotAvailable,
			wantTransient: true,
			wantSentinel:  domainErrors.ErrPublisherUnavailable,
		},
		{
			name:          "wrapped broker error is transient",
			err:           fmt.Errorf("produce: %w", sarama.ErrRequestTimedOut),
			wantTransient: true,
			wantSentinel:  domainErrors.ErrPublisherUnavailable,
		},
		{
			name:          "unknown error is transient",
			err:           errors.New("connection reset"),
			wantTransient: true,
			wantSentinel:  domainErrors.ErrPublisherUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.wantTransient, publisher.IsTransient(got))
			assert.ErrorIs(t, got, tt.wantSentinel)
		})
	}
}
