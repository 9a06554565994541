package realtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/solarcast/internal/features"
	"github.com/rewired-gh/solarcast/internal/history"
	"github.com/rewired-gh/solarcast/internal/inference"
	"github.com/rewired-gh/solarcast/internal/logger"
	"github.com/rewired-gh/solarcast/internal/models"
	"github.com/rewired-gh/solarcast/internal/publish"
	"github.com/rewired-gh/solarcast/internal/store"
)

const device = "esp32_1"

var cycleTime = time.Date(2025, 3, 14, 10, 0, 5, 0, time.UTC)

type harness struct {
	store   *store.Memory
	loop    *Loop
	vectors [][]float64
	value   float64
	inferFn func(x []float64) (float64, error)
}

func newHarness(t *testing.T, mutate func(o *Options)) *harness {
	t.Helper()
	h := &harness{store: store.NewMemory(), value: 0.5}
	model := inference.ModelFunc(func(x []float64) (float64, error) {
		h.vectors = append(h.vectors, append([]float64(nil), x...))
		if h.inferFn != nil {
			return h.inferFn(x)
		}
		return h.value, nil
	})

	ids := 0
	opts := Options{
		DeviceID:  device,
		Store:     h.store,
		Builder:   features.NewBuilder(models.DefaultFieldMap()),
		Engine:    inference.NewEngine(nil, model, nil),
		Publisher: publish.New(h.store, device, "prediksi", time.UTC),
		Interval:  5 * time.Second,
		Clock:     ClockFunc(func() time.Time { return cycleTime }),
		NewID: func() string {
			ids++
			return fmt.Sprintf("cycle-%d", ids)
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	loop, err := New(opts)
	require.NoError(t, err)
	h.loop = loop
	return h
}

func (h *harness) setSensor(t *testing.T, doc map[string]any) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), store.Paths{Device: device}.Sensor(), doc))
	h.store.ResetOps()
}

func TestRunCycle_EndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.setSensor(t, map[string]any{"temp_dht": 28.0, "temp_ds18": 35.0, "irradiance": 500.0})

	outcome, err := h.loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, outcome)

	require.Len(t, h.vectors, 1)
	assert.Equal(t, []float64{28, 35, 500, 0, 0, 0, 0, 0}, h.vectors[0])

	sets := h.store.OpsNamed("set")
	require.Len(t, sets, 1)
	assert.Equal(t, "devices/esp32_1/prediksi", sets[0].Path)
	assert.Equal(t, map[string]any{"dc_power_predicted": 0.5, "timestamp": "2025-03-14 10:00:05"}, sets[0].Doc)

	updates := h.store.OpsNamed("update")
	require.Len(t, updates, 1)
	assert.Equal(t, "devices/esp32_1/sensor", updates[0].Path)
	assert.Equal(t, map[string]any{"prediksi": 0.5}, updates[0].Doc)

	lagged := h.loop.History()
	assert.Equal(t, []float64{0, 0, 0}, lagged.Buffer(history.DCPower).Values())
	assert.Equal(t, []float64{500}, lagged.Buffer(history.Irradiance).Values())
	assert.Equal(t, []float64{35}, lagged.Buffer(history.ModuleTemp).Values())
}

func TestRunCycle_LogsInputsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, "info", "text")
	defer logger.Init("info", "text")

	h := newHarness(t, nil)
	h.setSensor(t, map[string]any{"temp_dht": 28.0, "temp_ds18": 35.0, "irradiance": 500.0})
	_, err := h.loop.RunCycle(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Cycle cycle-1: reading map[irradiance:500 temp_dht:28 temp_ds18:35]")
	assert.Contains(t, out, "IRRADIATION:500")
	assert.Contains(t, out, "DC_POWER_t-1:0")
	assert.Contains(t, out, "predicted dc_power 0.5000")
}

func TestRunCycle_PatchesNewestLogEntry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	paths := store.Paths{Device: device}
	require.NoError(t, h.store.Set(ctx, paths.LogEntry("2025-03-14", "09:59:55 AM"), map[string]any{"irradiance": 480.0}))
	require.NoError(t, h.store.Set(ctx, paths.LogEntry("2025-03-14", "10:00:00 AM"), map[string]any{"irradiance": 500.0}))
	h.setSensor(t, map[string]any{"irradiance": 500.0})

	_, err := h.loop.RunCycle(ctx)
	require.NoError(t, err)

	updates := h.store.OpsNamed("update")
	require.Len(t, updates, 2)
	assert.Equal(t, paths.LogEntry("2025-03-14", "10:00:00 AM"), updates[1].Path)

	doc, err := h.store.Get(ctx, paths.LogEntry("2025-03-14", "10:00:00 AM"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, doc["prediksi"])
}

func TestRunCycle_FailedCycleLeavesHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	failGet := false
	h.store.FailOn = func(op, path string) error {
		if failGet && op == "get" {
			return errors.New("connection reset")
		}
		return nil
	}

	h.setSensor(t, map[string]any{"dc_power": 100.0, "irradiance": 400.0, "temp_ds18": 30.0})
	_, err := h.loop.RunCycle(ctx)
	require.NoError(t, err)

	failGet = true
	outcome, err := h.loop.RunCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageFetch, ce.Stage)
	assert.Equal(t, KindTransient, ce.Kind)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	failGet = false
	h.setSensor(t, map[string]any{"dc_power": 300.0, "irradiance": 600.0, "temp_ds18": 40.0})
	_, err = h.loop.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 100, 300}, h.loop.History().Buffer(history.DCPower).Values())
	assert.Equal(t, []float64{600}, h.loop.History().Buffer(history.Irradiance).Values())

	require.Len(t, h.vectors, 2)
	third := features.Named(h.vectors[1])
	assert.Equal(t, 100.0, third["DC_POWER_t-1"])
	assert.Equal(t, 0.0, third["DC_POWER_t-2"])
	assert.Equal(t, 400.0, third["IRRADIATION_t-1"])
	assert.Equal(t, 30.0, third["MODULE_TEMPERATURE_t-1"])
}

func TestRunCycle_SkipsWithoutData(t *testing.T) {
	h := newHarness(t, nil)

	outcome, err := h.loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, h.vectors)
	assert.Empty(t, h.store.OpsNamed("set"))
	assert.Equal(t, []float64{0, 0, 0}, h.loop.History().Buffer(history.DCPower).Values())

	h.setSensor(t, map[string]any{"status": "booting"})
	outcome, err = h.loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestRunCycle_InferenceFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.inferFn = func(x []float64) (float64, error) {
		return 0, fmt.Errorf("neighbour table has 7 columns: %w", inference.ErrSchemaMismatch)
	}
	h.setSensor(t, map[string]any{"dc_power": 100.0})

	outcome, err := h.loop.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, KindSchema, Classify(err))

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageInfer, ce.Stage)
	assert.Empty(t, h.store.OpsNamed("set"))
	assert.Equal(t, []float64{0, 0, 0}, h.loop.History().Buffer(history.DCPower).Values())
}

func TestRunCycle_LogPatchFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	paths := store.Paths{Device: device}
	require.NoError(t, h.store.Set(ctx, paths.LogEntry("2025-03-14", "10:00:00 AM"), map[string]any{}))
	h.setSensor(t, map[string]any{"dc_power": 100.0})
	h.store.FailOn = func(op, path string) error {
		if op == "update" && path == paths.LogEntry("2025-03-14", "10:00:00 AM") {
			return errors.New("permission denied")
		}
		return nil
	}

	_, err := h.loop.RunCycle(ctx)
	require.Error(t, err)
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StagePublish, ce.Stage)
	assert.Equal(t, KindTransient, ce.Kind)
	assert.Equal(t, []float64{0, 0, 0}, h.loop.History().Buffer(history.DCPower).Values())
}

type recordingJournal struct {
	preds   []*models.Prediction
	err     error
	rotated int
}

func (j *recordingJournal) AddPrediction(p *models.Prediction) error {
	if j.err != nil {
		return j.err
	}
	j.preds = append(j.preds, p)
	return nil
}

func (j *recordingJournal) RotatePredictions() error {
	j.rotated++
	return nil
}

type failingSink struct{ calls int }

func (s *failingSink) Publish(ctx context.Context, p *models.Prediction) error {
	s.calls++
	return errors.New("broker unreachable")
}

func TestRunCycle_SideSinks(t *testing.T) {
	journal := &recordingJournal{}
	sink := &failingSink{}
	h := newHarness(t, func(o *Options) {
		o.Journal = journal
		o.Events = sink
	})
	h.setSensor(t, map[string]any{"dc_power": 100.0})

	outcome, err := h.loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, outcome)

	require.Len(t, journal.preds, 1)
	assert.Equal(t, "cycle-1", journal.preds[0].CycleID)
	assert.Equal(t, device, journal.preds[0].DeviceID)
	assert.Equal(t, 0.5, journal.preds[0].Value)
	assert.Equal(t, 1, journal.rotated)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, []float64{0, 0, 100}, h.loop.History().Buffer(history.DCPower).Values())

	journal.err = errors.New("disk full")
	_, err = h.loop.RunCycle(context.Background())
	assert.NoError(t, err)
}

type recordingNotifier struct {
	errors     []int
	recoveries []int
}

func (n *recordingNotifier) SendError(err error, consecutive int) error {
	n.errors = append(n.errors, consecutive)
	return nil
}

func (n *recordingNotifier) SendRecovery(failures int) error {
	n.recoveries = append(n.recoveries, failures)
	return nil
}

func TestRun_SleepsAfterEveryCycleAndAlertsOnStreaks(t *testing.T) {
	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	h := newHarness(t, func(o *Options) {
		o.Notifier = notifier
		o.Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			if len(sleeps) == 4 {
				cancel()
				return ctx.Err()
			}
			return nil
		})
	})
	h.setSensor(t, map[string]any{"dc_power": 100.0})

	calls := 0
	h.inferFn = func(x []float64) (float64, error) {
		calls++
		if calls <= 2 {
			return 0, errors.New("model crashed")
		}
		return 1.5, nil
	}

	require.NoError(t, h.loop.Run(ctx))

	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, sleeps)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1}, notifier.errors)
	assert.Equal(t, []int{2}, notifier.recoveries)
	assert.Equal(t, 0, h.loop.ConsecutiveFailures())
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t, nil)
	require.NoError(t, h.loop.Run(ctx))
	assert.Empty(t, h.store.Ops())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"store unavailable", store.Unavailable("get", "a", errors.New("eof")), KindTransient},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), KindTransient},
		{"schema", fmt.Errorf("scale: %w", inference.ErrSchemaMismatch), KindSchema},
		{"not fitted", inference.ErrNotFitted, KindSchema},
		{"malformed document", store.Malformed("devices/esp32_1/sensor", errors.New("cannot unmarshal number")), KindSchema},
		{"other", errors.New("boom"), KindUnknown},
		{"cycle error", &CycleError{Stage: StagePublish, Kind: KindTransient, Err: errors.New("x")}, KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{
		DeviceID:  device,
		Store:     store.NewMemory(),
		Builder:   features.NewBuilder(models.DefaultFieldMap()),
		Engine:    inference.NewEngine(nil, inference.ModelFunc(func(x []float64) (float64, error) { return 0, nil }), nil),
		Publisher: publish.New(store.NewMemory(), device, "", nil),
	})
	assert.Error(t, err, "zero interval must be rejected")
}
