// Package realtime runs the polling forecaster: every interval it reads the
// device's latest reading, builds the feature vector from the reading and the
// lag history, runs inference, writes the forecast back and only then folds
// the reading into the history.
//
// A failed cycle leaves the history untouched and the loop carries on after
// the usual interval. The loop goroutine owns the history; nothing else may
// touch it while Run is active.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/solarcast/internal/features"
	"github.com/rewired-gh/solarcast/internal/history"
	"github.com/rewired-gh/solarcast/internal/logger"
	"github.com/rewired-gh/solarcast/internal/metrics"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/publish"
	"github.com/rewired-gh/solarcast/internal/store"
)

// Outcome is the result of one cycle.
type Outcome int

const (
	OutcomePublished Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return metrics.OutcomePublished
	case OutcomeSkipped:
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeFailed
	}
}

// Inferer produces a forecast from a feature vector.
type Inferer interface {
	Infer(vector []float64) (float64, error)
}

// Journal records published predictions locally.
type Journal interface {
	AddPrediction(p *models.Prediction) error
	RotatePredictions() error
}

// EventSink fans published predictions out to subscribers.
type EventSink interface {
	Publish(ctx context.Context, p *models.Prediction) error
}

// Notifier is told about failure streaks.
type Notifier interface {
	SendError(err error, consecutive int) error
	SendRecovery(failures int) error
}

// Clock supplies cycle timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Sleeper waits between cycles. It returns early with ctx.Err() on cancellation.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configures a Loop. Store, Builder, Engine and Publisher are required.
type Options struct {
	DeviceID  string
	Store     store.Store
	Builder   *features.Builder
	History   *history.History // nil starts from Builder.NewHistory()
	Engine    Inferer
	Publisher *publish.Publisher
	Interval  time.Duration

	Clock    Clock
	Sleeper  Sleeper
	NewID    func() string
	Journal  Journal
	Events   EventSink
	Notifier Notifier
}

// Loop is the polling forecaster for one device.
type Loop struct {
	device    string
	paths     store.Paths
	store     store.Store
	builder   *features.Builder
	history   *history.History
	engine    Inferer
	publisher *publish.Publisher
	interval  time.Duration

	clock    Clock
	sleeper  Sleeper
	newID    func() string
	journal  Journal
	events   EventSink
	notifier Notifier

	consecutiveFailures int
}

// New validates opts and returns a Loop.
func New(opts Options) (*Loop, error) {
	switch {
	case opts.DeviceID == "":
		return nil, errors.New("device ID is required")
	case opts.Store == nil:
		return nil, errors.New("store is required")
	case opts.Builder == nil:
		return nil, errors.New("feature builder is required")
	case opts.Engine == nil:
		return nil, errors.New("inference engine is required")
	case opts.Publisher == nil:
		return nil, errors.New("publisher is required")
	case opts.Interval <= 0:
		return nil, fmt.Errorf("interval must be positive, got %v", opts.Interval)
	}

	l := &Loop{
		device:    opts.DeviceID,
		paths:     store.Paths{Device: opts.DeviceID},
		store:     opts.Store,
		builder:   opts.Builder,
		history:   opts.History,
		engine:    opts.Engine,
		publisher: opts.Publisher,
		interval:  opts.Interval,
		clock:     opts.Clock,
		sleeper:   opts.Sleeper,
		newID:     opts.NewID,
		journal:   opts.Journal,
		events:    opts.Events,
		notifier:  opts.Notifier,
	}
	if l.history == nil {
		l.history = l.builder.NewHistory()
	}
	if l.clock == nil {
		l.clock = ClockFunc(time.Now)
	}
	if l.sleeper == nil {
		l.sleeper = timerSleeper{}
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l, nil
}

// History returns the loop's lag history. Only inspect it while Run is not active.
func (l *Loop) History() *history.History {
	return l.history
}

// ConsecutiveFailures returns the length of the current failure streak.
func (l *Loop) ConsecutiveFailures() int {
	return l.consecutiveFailures
}

// Run executes cycles until ctx is cancelled, sleeping the interval after
// every cycle whatever its outcome.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info("Starting poll loop for device %s (interval: %v)", l.device, l.interval)
	for {
		if ctx.Err() != nil {
			logger.Info("Poll loop stopped")
			return nil
		}

		_, err := l.RunCycle(ctx)
		if ctx.Err() == nil {
			l.handleCycleResult(err)
		}

		if err := l.sleeper.Sleep(ctx, l.interval); err != nil {
			logger.Info("Poll loop stopped")
			return nil
		}
	}
}

func (l *Loop) handleCycleResult(err error) {
	if err != nil {
		l.consecutiveFailures++
		logger.Error("Cycle failed: %v", err)
		if l.consecutiveFailures == 1 && l.notifier != nil {
			if sendErr := l.notifier.SendError(err, l.consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return
	}
	if l.consecutiveFailures > 0 && l.notifier != nil {
		if sendErr := l.notifier.SendRecovery(l.consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification: %v", sendErr)
		}
	}
	l.consecutiveFailures = 0
}

// RunCycle executes one fetch, infer, publish and history update.
// A cycle without sensor data is skipped and is not an error.
func (l *Loop) RunCycle(ctx context.Context) (Outcome, error) {
	start := time.Now()
	outcome, err := l.runCycle(ctx)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	metrics.CyclesTotal.WithLabelValues(outcome.String()).Inc()

	var ce *CycleError
	if errors.As(err, &ce) {
		metrics.CycleErrors.WithLabelValues(string(ce.Kind), string(ce.Stage)).Inc()
	}
	return outcome, err
}

func (l *Loop) runCycle(ctx context.Context) (Outcome, error) {
	cycleID := l.newID()

	doc, err := l.store.Get(ctx, l.paths.Sensor())
	if err != nil {
		return OutcomeFailed, newCycleError(StageFetch, err)
	}
	reading := models.ReadingFromDocument(doc)
	if reading.Empty() {
		logger.Info("No sensor data for device %s, skipping cycle", l.device)
		return OutcomeSkipped, nil
	}

	report := l.builder.BuildReport(reading, l.history)
	for _, field := range report.Defaulted {
		metrics.DefaultedFields.WithLabelValues(field).Inc()
	}
	if len(report.Defaulted) > 0 {
		logger.Warn("Cycle %s: missing fields %v filled with %v", cycleID, report.Defaulted, l.builder.Default)
	}
	logger.Info("Cycle %s: reading %v, features %v", cycleID, reading, features.Named(report.Vector))

	value, err := l.engine.Infer(report.Vector)
	if err != nil {
		return OutcomeFailed, newCycleError(StageInfer, err)
	}

	pred := &models.Prediction{
		CycleID:   cycleID,
		DeviceID:  l.device,
		Value:     value,
		Features:  report.Vector.Clone(),
		Reading:   reading,
		Timestamp: l.clock.Now(),
	}

	res, err := l.publisher.PublishPrediction(ctx, pred)
	if err != nil {
		return OutcomeFailed, newCycleError(StagePublish, err)
	}
	metrics.PredictedDCPower.WithLabelValues(l.device).Set(value)
	if res.LogPatched {
		metrics.LogPatches.WithLabelValues("patched").Inc()
		logger.Info("Cycle %s: predicted dc_power %.4f, patched %s", cycleID, value, res.LogPath)
	} else {
		metrics.LogPatches.WithLabelValues("no_entry").Inc()
		logger.Info("Cycle %s: predicted dc_power %.4f, no log entry to patch", cycleID, value)
	}

	l.fanOut(ctx, pred)

	l.builder.Advance(reading, l.history)
	return OutcomePublished, nil
}

// fanOut feeds the optional side sinks. Their failures are logged only.
func (l *Loop) fanOut(ctx context.Context, pred *models.Prediction) {
	if l.journal != nil {
		if err := l.journal.AddPrediction(pred); err != nil {
			metrics.SideWrites.WithLabelValues("journal", "error").Inc()
			logger.Warn("Failed to journal prediction %s: %v", pred.CycleID, err)
		} else {
			metrics.SideWrites.WithLabelValues("journal", "ok").Inc()
			if err := l.journal.RotatePredictions(); err != nil {
				logger.Warn("Failed to rotate prediction journal: %v", err)
			}
		}
	}
	if l.events != nil {
		if err := l.events.Publish(ctx, pred); err != nil {
			metrics.SideWrites.WithLabelValues("kafka", "error").Inc()
			logger.Warn("Failed to publish prediction event %s: %v", pred.CycleID, err)
		} else {
			metrics.SideWrites.WithLabelValues("kafka", "ok").Inc()
		}
	}
}
