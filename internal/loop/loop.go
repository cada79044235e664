package loop

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"xml2pb/internal/feed"
	"xml2pb/internal/match"
	"xml2pb/internal/metrics"
	"xml2pb/internal/tracker"
)

// Fetcher provides the two realtime documents. Satisfied by tracker.Client.
type Fetcher interface {
	Departures(ctx context.Context) (*tracker.DeparturesDoc, error)
	Vehicles(ctx context.Context) (*tracker.VehiclesDoc, error)
}

// Broadcaster receives the serialized snapshot after a successful publish.
// Satisfied by publisher.Snapshots.
type Broadcaster interface {
	Publish(data []byte) error
}

// Config holds the loop's fixed parameters.
type Config struct {
	OutputPath string
	Interval   time.Duration
	Location   *time.Location
}

// Loop drives the periodic fetch-reconcile-publish cycle. It owns all
// failure containment: a failed cycle is logged and skipped, leaving the
// previously published snapshot in place.
type Loop struct {
	cfg       Config
	fetcher   Fetcher
	matcher   *match.Matcher
	builder   *feed.Builder
	col       *metrics.Collector
	broadcast Broadcaster // optional
	logger    *slog.Logger

	now func() time.Time
}

// New creates a Loop. broadcast may be nil.
func New(cfg Config, fetcher Fetcher, matcher *match.Matcher, builder *feed.Builder, col *metrics.Collector, broadcast Broadcaster, logger *slog.Logger) *Loop {
	return &Loop{
		cfg:       cfg,
		fetcher:   fetcher,
		matcher:   matcher,
		builder:   builder,
		col:       col,
		broadcast: broadcast,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes cycles until the context is cancelled. The fixed delay is
// measured from the end of each cycle; no drift compensation is attempted.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("publication loop started",
		"output", l.cfg.OutputPath, "interval", l.cfg.Interval)

	for {
		l.cycle(ctx)

		select {
		case <-time.After(l.cfg.Interval):
		case <-ctx.Done():
			l.logger.Info("publication loop stopped")
			return
		}
	}
}

// cycle runs one fetch-reconcile-publish pass. Both documents are fetched
// concurrently; if either fetch or parse fails the whole cycle is abandoned
// before any downstream step runs.
func (l *Loop) cycle(ctx context.Context) {
	start := l.now()

	var (
		depDoc *tracker.DeparturesDoc
		vehDoc *tracker.VehiclesDoc
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		depDoc, err = l.fetcher.Departures(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		vehDoc, err = l.fetcher.Vehicles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		l.logger.Error("cycle aborted, previous snapshot kept", "error", err)
		l.col.CycleFailures.WithLabelValues("fetch").Inc()
		return
	}

	now := l.now().In(l.cfg.Location)
	day := now.Weekday()

	delays := l.matcher.TripDelays(depDoc, day)
	positions := l.matcher.VehiclePositions(vehDoc, day, l.cfg.Location)

	msg := l.builder.Build(delays, positions, now)
	data, err := feed.Encode(msg)
	if err != nil {
		l.logger.Error("cycle aborted, previous snapshot kept", "error", err)
		l.col.CycleFailures.WithLabelValues("publish").Inc()
		return
	}
	if err := feed.WriteFile(l.cfg.OutputPath, data); err != nil {
		l.logger.Error("publish failed, previous snapshot kept", "error", err)
		l.col.CycleFailures.WithLabelValues("publish").Inc()
		return
	}

	l.col.Cycles.Inc()
	l.col.TripDelays.Set(float64(len(delays)))
	l.col.VehiclePositions.Set(float64(len(positions)))
	l.col.CycleDuration.Observe(l.now().Sub(start).Seconds())

	// Broadcast failure never fails the cycle; the file is already published.
	if l.broadcast != nil {
		if err := l.broadcast.Publish(data); err != nil {
			l.logger.Warn("snapshot broadcast failed", "error", err)
		}
	}

	l.logger.Debug("snapshot published",
		"trip_delays", len(delays),
		"vehicles", len(positions),
		"duration", l.now().Sub(start).Round(time.Millisecond),
	)
}
