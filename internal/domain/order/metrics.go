package order

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

type serviceMetrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	ratings     metric.Int64Counter
	discarded   metric.Int64Counter
}

func newServiceMetrics(meter metric.Meter) (*serviceMetrics, error) {
	var (
		m   serviceMetrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.transitions, err = meter.Int64Counter("orders.state_transitions",
		metric.WithDescription("Applied order state transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.state_transitions")
	}
	if m.ratings, err = meter.Int64Counter("orders.ratings_applied",
		metric.WithDescription("Food ratings folded into catalog means"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.ratings_applied")
	}
	if m.discarded, err = meter.Int64Counter("orders.ratings_discarded",
		metric.WithDescription("Submitted ratings dropped as invalid"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.ratings_discarded")
	}
	return &m, nil
}
