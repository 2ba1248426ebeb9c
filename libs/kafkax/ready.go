package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const dialTimeout = 2 * time.Second

// ReadyCheck passes once any configured broker answers and reports a
// cluster controller.
func ReadyCheck(brokers string) func(context.Context) error {
	list := SplitBrokers(brokers)
	dialer := &kafka.Dialer{Timeout: dialTimeout, ClientID: "ready-check"}
	return func(ctx context.Context) error {
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		var errs []error
		for _, addr := range list {
			err := probe(ctx, dialer, addr)
			if err == nil {
				return nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}
		return errors.Join(errs...)
	}
}

func probe(ctx context.Context, dialer *kafka.Dialer, addr string) error {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Controller(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}
