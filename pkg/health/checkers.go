package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// Dialer opens a connection to a Kafka broker.
type Dialer func(ctx context.Context, network, address string) (*kafka.Conn, error)

// KafkaCheck reports unhealthy when none of brokers accepts a connection and
// answers a metadata request. A nil dial uses kafka.DialContext.
func KafkaCheck(brokers []string, dial Dialer) CheckFunc {
	if dial == nil {
		dial = kafka.DialContext
	}
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errors.New("no brokers configured")
		}
		var lastErr error
		for _, addr := range brokers {
			conn, err := dial(ctx, "tcp", addr)
			if err != nil {
				lastErr = errors.Wrapf(err, "dial %s", addr)
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err != nil {
				lastErr = errors.Wrapf(err, "metadata from %s", addr)
				continue
			}
			return nil
		}
		return lastErr
	}
}

// GoroutineCountCheck reports unhealthy above threshold goroutines, which
// usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
