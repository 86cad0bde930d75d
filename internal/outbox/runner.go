package outbox

import (
	"context"
	"errors"
	"log"
	"time"
)

// Runner flushes the outbox on an interval until its context ends.
type Runner struct {
	service          *Service
	interval         time.Duration
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewRunner constructs a Runner around the service.
func NewRunner(service *Service, interval time.Duration, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		service:          service,
		interval:         interval,
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the flush loop. It should be called in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		close(r.shutdownComplete)
	}()

	for {
		if _, err := r.service.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Printf("outbox runner error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until the runner stops.
func (r *Runner) Wait() {
	<-r.shutdownComplete
}
