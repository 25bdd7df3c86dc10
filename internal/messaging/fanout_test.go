package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

func TestFanout_DeliversToAllSinks(t *testing.T) {
	var first, second []domain.EventType
	errBroker := errors.New("broker down")

	fanout := NewFanout(metrics.NewStoreMetricsWithRegisterer(prometheus.NewRegistry()),
		Sink{Name: "failing", Publisher: domain.EventPublisherFunc(func(_ context.Context, e domain.Event) error {
			first = append(first, e.Type)
			return errBroker
		})},
		Sink{Name: "ok", Publisher: domain.EventPublisherFunc(func(_ context.Context, e domain.Event) error {
			second = append(second, e.Type)
			return nil
		})},
		Sink{Name: "disabled"},
	)
	require.Equal(t, 2, fanout.Len())

	err := fanout.Publish(context.Background(), domain.Event{Type: domain.EventCartCreated})
	require.ErrorIs(t, err, errBroker)
	require.Contains(t, err.Error(), "failing")
	require.Equal(t, []domain.EventType{domain.EventCartCreated}, first)
	require.Equal(t, []domain.EventType{domain.EventCartCreated}, second)
}

func TestFanout_Empty(t *testing.T) {
	fanout := NewFanout(nil)
	require.NoError(t, fanout.Publish(context.Background(), domain.Event{Type: domain.EventProductCreated}))
}
