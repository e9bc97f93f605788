package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cros-updates/cros-updates/internal/change"
	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/internal/logger"
	"github.com/cros-updates/cros-updates/internal/metrics"
	"github.com/cros-updates/cros-updates/internal/store"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	responses map[string]fingerprint.RawUpdateResponse
	errs      map[string]error
	calls     atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, device config.Device) (fingerprint.RawUpdateResponse, error) {
	f.calls.Add(1)
	if err := f.errs[device.ID]; err != nil {
		return nil, err
	}
	return f.responses[device.ID], nil
}

type stubResolver map[string]string

func (s stubResolver) ResolveProductName(_ context.Context, key string) (string, bool) {
	name, ok := s[key]
	return name, ok
}

type faultyStore struct {
	*store.MemoryStore
	getErr error
	putErr error
	puts   atomic.Int32
}

func (s *faultyStore) Get(ctx context.Context, id string) (fingerprint.Fingerprint, bool, error) {
	if s.getErr != nil {
		return fingerprint.Fingerprint{}, false, s.getErr
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *faultyStore) Put(ctx context.Context, id string, fp fingerprint.Fingerprint) error {
	s.puts.Add(1)
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, id, fp)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recordingNotifier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func kohaku() config.Device {
	return config.Device{
		ID:            "kohaku-001",
		AppID:         "{APP}",
		Track:         "stable-channel",
		Board:         "hatch-signed-mp-v2keys",
		HardwareClass: "KOHAKU C2A-E3C-A4A",
		ProductKey:    "KOHAKU C2A-E3C-A4A",
	}
}

func device(id string) config.Device {
	return config.Device{ID: id, AppID: "{APP}", Board: "board", HardwareClass: strings.ToUpper(id), ProductKey: strings.ToUpper(id)}
}

var kohakuResponse = fingerprint.RawUpdateResponse{
	fingerprint.KeyAppVersion:    "103.0.5060.132",
	fingerprint.KeyBoardCodename: "kohaku",
}

func newStore(t *testing.T, seed map[string]string) *faultyStore {
	t.Helper()
	s := &faultyStore{MemoryStore: store.NewMemoryStore()}
	for id, version := range seed {
		require.NoError(t, s.MemoryStore.Put(context.Background(), id, fingerprint.Fingerprint{Version: version, Product: id}))
	}
	return s
}

func TestRunScenarios(t *testing.T) {
	tests := []struct {
		name       string
		resolver   stubResolver
		opts       []fingerprint.Option
		response   fingerprint.RawUpdateResponse
		stored     map[string]string
		wantKind   change.Kind
		wantMsgs   []string
		wantStored string
		wantErrIs  error
		wantFailAt Stage
	}{
		{
			name:       "updated with resolved product name",
			resolver:   stubResolver{"KOHAKU C2A-E3C-A4A": "Samsung Galaxy Chromebook"},
			response:   kohakuResponse,
			stored:     map[string]string{"kohaku-001": "14816.131.0"},
			wantKind:   change.Updated,
			wantMsgs:   []string{"Samsung Galaxy Chromebook updated to 103.0.5060.132"},
			wantStored: "103.0.5060.132",
		},
		{
			name:       "lookup fails without codename extractor falls back to device id",
			resolver:   stubResolver{},
			opts:       []fingerprint.Option{fingerprint.WithCodenameExtractors()},
			response:   kohakuResponse,
			stored:     map[string]string{"kohaku-001": "14816.131.0"},
			wantKind:   change.Updated,
			wantMsgs:   []string{"kohaku-001 updated to 103.0.5060.132"},
			wantStored: "103.0.5060.132",
		},
		{
			name:       "lookup fails and codename is used",
			resolver:   stubResolver{},
			response:   kohakuResponse,
			stored:     map[string]string{"kohaku-001": "14816.131.0"},
			wantKind:   change.Updated,
			wantMsgs:   []string{"kohaku updated to 103.0.5060.132"},
			wantStored: "103.0.5060.132",
		},
		{
			name:       "malformed response",
			response:   fingerprint.RawUpdateResponse{fingerprint.KeyStatus: "noupdate"},
			stored:     map[string]string{"kohaku-001": "14816.131.0"},
			wantErrIs:  fingerprint.ErrMalformedResponse,
			wantFailAt: StageFetched,
			wantStored: "14816.131.0",
		},
		{
			name:       "first observation is stored without notification",
			response:   kohakuResponse,
			wantKind:   change.FirstObservation,
			wantStored: "103.0.5060.132",
		},
		{
			name:       "unchanged version",
			response:   kohakuResponse,
			stored:     map[string]string{"kohaku-001": "103.0.5060.132"},
			wantKind:   change.Unchanged,
			wantStored: "103.0.5060.132",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t, tt.stored)
			n := &recordingNotifier{}
			fetcher := &fakeFetcher{responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": tt.response}}
			p := New(fetcher, fingerprint.NewNormalizer(tt.resolver, tt.opts...), st, n)

			result, err := p.Run(context.Background(), []config.Device{kohaku()})
			require.Len(t, result.Outcomes, 1)
			outcome := result.Outcomes[0]

			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, ErrAllDevicesFailed)
				require.ErrorIs(t, err, tt.wantErrIs)
				require.ErrorIs(t, outcome.Err, tt.wantErrIs)
				require.Equal(t, StageFailed, outcome.Stage)
				require.Equal(t, tt.wantFailAt, outcome.FailedAt)
				require.Equal(t, 1, result.Counts().Failed)
			} else {
				require.NoError(t, err)
				require.NoError(t, outcome.Err)
				require.Equal(t, StageDone, outcome.Stage)
				require.Equal(t, tt.wantKind, outcome.Event.Kind)
			}

			require.Equal(t, tt.wantMsgs, n.sent())

			got, found, err := st.Get(context.Background(), "kohaku-001")
			require.NoError(t, err)
			if tt.wantStored == "" {
				require.False(t, found)
			} else {
				require.True(t, found)
				require.Equal(t, tt.wantStored, got.Version)
			}
		})
	}
}

func TestRunUnchangedDoesNotWrite(t *testing.T) {
	st := newStore(t, map[string]string{"kohaku-001": "103.0.5060.132"})
	p := New(&fakeFetcher{responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse}},
		fingerprint.NewNormalizer(nil), st, &recordingNotifier{})

	_, err := p.Run(context.Background(), []config.Device{kohaku()})
	require.NoError(t, err)
	require.Zero(t, st.puts.Load())
}

func TestRunPartialFailureIsNotFatal(t *testing.T) {
	st := newStore(t, map[string]string{"kohaku-001": "14816.131.0", "volet-001": "1.0"})
	n := &recordingNotifier{}
	fetcher := &fakeFetcher{
		responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse},
		errs:      map[string]error{"volet-001": errors.New("connection refused")},
	}
	p := New(fetcher, fingerprint.NewNormalizer(nil), st, n)

	result, err := p.Run(context.Background(), []config.Device{kohaku(), device("volet-001")})
	require.NoError(t, err)

	counts := result.Counts()
	require.Equal(t, Counts{Updated: 1, Failed: 1}, counts)
	require.Len(t, n.sent(), 1)

	require.Equal(t, "kohaku-001", result.Outcomes[0].Device.ID)
	require.Equal(t, "volet-001", result.Outcomes[1].Device.ID)
	require.ErrorIs(t, result.Outcomes[1].Err, ErrFetch)
	require.Equal(t, StagePending, result.Outcomes[1].FailedAt)
	require.NotEmpty(t, result.RunID)
}

func TestRunStoreReadFailureIsNotFirstObservation(t *testing.T) {
	st := newStore(t, nil)
	st.getErr = errors.New("database is locked")
	n := &recordingNotifier{}
	p := New(&fakeFetcher{responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse}},
		fingerprint.NewNormalizer(nil), st, n)

	result, err := p.Run(context.Background(), []config.Device{kohaku()})
	require.ErrorIs(t, err, ErrAllDevicesFailed)
	require.ErrorIs(t, err, ErrStoreRead)

	outcome := result.Outcomes[0]
	require.Equal(t, StageNormalized, outcome.FailedAt)
	require.Zero(t, outcome.Event.Kind)
	require.Zero(t, st.puts.Load())
	require.Empty(t, n.sent())
}

func TestRunPersistFailureSkipsNotification(t *testing.T) {
	st := newStore(t, map[string]string{"kohaku-001": "14816.131.0"})
	st.putErr = errors.New("disk full")
	n := &recordingNotifier{}
	p := New(&fakeFetcher{responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse}},
		fingerprint.NewNormalizer(nil), st, n)

	result, err := p.Run(context.Background(), []config.Device{kohaku()})
	require.ErrorIs(t, err, ErrStoreWrite)
	require.Empty(t, n.sent())
	require.Equal(t, StageClassified, result.Outcomes[0].FailedAt)
	require.Equal(t, change.Updated, result.Outcomes[0].Event.Kind)
}

func TestRunNotifyFailureAfterPersist(t *testing.T) {
	st := newStore(t, map[string]string{"kohaku-001": "14816.131.0"})
	n := &recordingNotifier{err: errors.New("webhook down")}
	p := New(&fakeFetcher{responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse}},
		fingerprint.NewNormalizer(nil), st, n)

	result, err := p.Run(context.Background(), []config.Device{kohaku()})
	require.ErrorIs(t, err, ErrNotify)
	require.Len(t, n.sent(), 1)
	require.Equal(t, "kohaku updated to 103.0.5060.132", result.Outcomes[0].Message)

	got, found, err := st.Get(context.Background(), "kohaku-001")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "103.0.5060.132", got.Version)

	// The change was persisted, so the next run does not notify again.
	n.err = nil
	result, err = p.Run(context.Background(), []config.Device{kohaku()})
	require.NoError(t, err)
	require.Equal(t, change.Unchanged, result.Outcomes[0].Event.Kind)
	require.Len(t, n.sent(), 1)
}

func TestRunNoDevices(t *testing.T) {
	p := New(&fakeFetcher{}, fingerprint.NewNormalizer(nil), store.NewMemoryStore(), &recordingNotifier{})
	_, err := p.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoDevices)
}

func TestRunIsolatesManyDevices(t *testing.T) {
	responses := map[string]fingerprint.RawUpdateResponse{}
	errs := map[string]error{}
	var devices []config.Device
	for i := 0; i < 20; i++ {
		d := device("dev-" + string(rune('a'+i)))
		devices = append(devices, d)
		if i%4 == 0 {
			errs[d.ID] = errors.New("timeout")
			continue
		}
		responses[d.ID] = fingerprint.RawUpdateResponse{fingerprint.KeyPlatformVersion: "15633.69.0"}
	}

	fetcher := &fakeFetcher{responses: responses, errs: errs}
	p := New(fetcher, fingerprint.NewNormalizer(nil), store.NewMemoryStore(), &recordingNotifier{}, WithConcurrency(3))

	result, err := p.Run(context.Background(), devices)
	require.NoError(t, err)
	require.EqualValues(t, 20, fetcher.calls.Load())
	require.Equal(t, Counts{FirstObservation: 15, Failed: 5}, result.Counts())
	for i, o := range result.Outcomes {
		require.Equal(t, devices[i].ID, o.Device.ID)
	}
}

func TestRunRecordsMetricsAndAudit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var buf bytes.Buffer

	st := newStore(t, map[string]string{"kohaku-001": "14816.131.0"})
	p := New(&fakeFetcher{
		responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse},
		errs:      map[string]error{"volet-001": errors.New("boom")},
	}, fingerprint.NewNormalizer(nil), st, &recordingNotifier{},
		WithMetrics(m), WithAuditLogger(logger.NewAuditLogger(&buf)))

	result, err := p.Run(context.Background(), []config.Device{kohaku(), device("volet-001")})
	require.NoError(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.RunPartial)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.DevicesTotal.WithLabelValues("updated")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.DevicesTotal.WithLabelValues("failed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(metrics.NotificationSent)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var events []map[string]interface{}
	for _, line := range lines {
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		require.Equal(t, result.RunID, e["run_id"])
		require.Equal(t, "kohaku-001", e["device"])
		events = append(events, e)
	}
	require.Equal(t, logger.AuditFingerprintStored, events[0]["event_type"])
	require.Equal(t, logger.AuditNotificationSent, events[1]["event_type"])

	last, ok := p.LastResult()
	require.True(t, ok)
	require.Equal(t, result.RunID, last.RunID)
}

func TestCheck(t *testing.T) {
	st := newStore(t, map[string]string{"kohaku-001": "14816.131.0"})
	n := &recordingNotifier{}
	fetcher := &fakeFetcher{
		responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse},
		errs:      map[string]error{"volet-001": errors.New("boom")},
	}
	p := New(fetcher, fingerprint.NewNormalizer(stubResolver{"KOHAKU C2A-E3C-A4A": "Samsung Galaxy Chromebook"}), st, n)

	results, err := p.Check(context.Background(), []config.Device{kohaku(), device("volet-001")})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "103.0.5060.132", results[0].Fingerprint.Version)
	require.Equal(t, "Samsung Galaxy Chromebook", results[0].Fingerprint.Product)
	require.ErrorIs(t, results[1].Err, ErrFetch)

	require.Empty(t, n.sent())
	require.Zero(t, st.puts.Load())
	got, _, _ := st.Get(context.Background(), "kohaku-001")
	require.Equal(t, "14816.131.0", got.Version)

	_, err = p.Check(context.Background(), []config.Device{device("volet-001")})
	require.ErrorIs(t, err, ErrAllDevicesFailed)

	_, err = p.Check(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoDevices)
}

func TestExecuteUsesDeviceSource(t *testing.T) {
	n := &recordingNotifier{}
	p := New(&fakeFetcher{responses: map[string]fingerprint.RawUpdateResponse{"kohaku-001": kohakuResponse}},
		fingerprint.NewNormalizer(nil), store.NewMemoryStore(), n,
		WithDeviceSource(StaticDevices{kohaku()}))

	require.Equal(t, config.PollJobName, p.Name())
	require.False(t, p.IsComplete())
	require.NoError(t, p.Execute(context.Background()))
	require.False(t, p.IsRunning())

	last, ok := p.LastResult()
	require.True(t, ok)
	require.Equal(t, Counts{FirstObservation: 1}, last.Counts())

	noSource := New(&fakeFetcher{}, fingerprint.NewNormalizer(nil), store.NewMemoryStore(), n)
	require.ErrorIs(t, noSource.Execute(context.Background()), ErrNoDevices)
}

func TestExecuteSkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	blocking := &blockingFetcher{started: make(chan struct{}), release: release}
	p := New(blocking, fingerprint.NewNormalizer(nil), store.NewMemoryStore(), &recordingNotifier{},
		WithDeviceSource(StaticDevices{kohaku()}))

	done := make(chan error, 1)
	go func() { done <- p.Execute(context.Background()) }()
	<-blocking.started
	require.True(t, p.IsRunning())

	require.NoError(t, p.Execute(context.Background()))
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not finish")
	}
	require.EqualValues(t, 1, blocking.calls.Load())
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingFetcher) Fetch(ctx context.Context, _ config.Device) (fingerprint.RawUpdateResponse, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return kohakuResponse, nil
}
