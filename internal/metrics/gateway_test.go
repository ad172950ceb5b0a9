package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestSnapshotReportsCountsAndQuality(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{total: 40, active: 7}
	sink := &recordingSink{}
	logger, _ := logtest.NewNullLogger()

	gateway := NewGateway(GatewayConfig{
		BotConfigured:  true,
		SinkConfigured: true,
		ProcessStart:   now.Add(-(50*time.Hour + 5*time.Minute)),
		Now:            func() time.Time { return now },
		Intn:           func(int) int { return 0 },
	}, counter, sink, logrus.NewEntry(logger))

	snapshot, err := gateway.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	m := snapshot.Metrics
	if m.TotalUsers != 40 || m.ActiveUsers != 7 {
		t.Fatalf("unexpected counts %+v", m)
	}
	if m.DatabaseConnections != 5 || m.APIResponseTime != 50 || m.SuccessRate != 95 || m.ErrorCount != 0 || m.MemoryUsage != 40 {
		t.Fatalf("unexpected synthetic gauges %+v", m)
	}
	if m.Uptime != "2d 2h 5m" {
		t.Fatalf("expected uptime 2d 2h 5m, got %q", m.Uptime)
	}
	if !counter.since.Equal(now.Add(-ActiveWindow)) {
		t.Fatalf("expected active window start %v, got %v", now.Add(-ActiveWindow), counter.since)
	}

	want := ConnectionQuality{
		Telegram:        QualityOnline,
		Database:        QualityOnline,
		SpreadsheetSink: QualityOnline,
		MiniApp:         QualityOnline,
	}
	if snapshot.ConnectionQuality != want {
		t.Fatalf("expected %+v, got %+v", want, snapshot.ConnectionQuality)
	}

	if len(sink.rows) != 1 {
		t.Fatalf("expected one appended row, got %d", len(sink.rows))
	}
	if len(sink.rows[0]) != 14 {
		t.Fatalf("expected 14 columns, got %d", len(sink.rows[0]))
	}
	if sink.rows[0][3] != "7" || sink.rows[0][4] != "40" || sink.rows[0][13] != "online" {
		t.Fatalf("unexpected row %v", sink.rows[0])
	}
}

func TestSnapshotMarksDatabaseOfflineOnCountFailure(t *testing.T) {
	counter := &stubCounter{err: errors.New("no reachable servers")}
	logger, hook := logtest.NewNullLogger()

	gateway := NewGateway(GatewayConfig{}, counter, nil, logrus.NewEntry(logger))

	snapshot, err := gateway.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("expected count failure to be absorbed, got %v", err)
	}
	if snapshot.ConnectionQuality.Database != QualityOffline {
		t.Fatalf("expected database offline, got %s", snapshot.ConnectionQuality.Database)
	}
	if snapshot.ConnectionQuality.Telegram != QualityOffline {
		t.Fatalf("expected telegram offline without token, got %s", snapshot.ConnectionQuality.Telegram)
	}
	if snapshot.ConnectionQuality.SpreadsheetSink != QualityOffline {
		t.Fatalf("expected sink offline without credentials, got %s", snapshot.ConnectionQuality.SpreadsheetSink)
	}
	if snapshot.Metrics.TotalUsers != 0 {
		t.Fatalf("expected zero users, got %d", snapshot.Metrics.TotalUsers)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "metrics_count_failed" {
		t.Fatalf("expected count failure to be logged, got %+v", entry)
	}
}

func TestSnapshotSwallowsSinkFailure(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	sink := &recordingSink{err: errors.New("status 403")}
	logger, hook := logtest.NewNullLogger()
	before := testutil.ToFloat64(SinkWritesTotal.WithLabelValues("error"))

	gateway := NewGateway(GatewayConfig{
		SinkConfigured: true,
		Now:            func() time.Time { return now },
	}, &stubCounter{}, sink, logrus.NewEntry(logger))

	if _, ok := gateway.LastSinkFailure(); ok {
		t.Fatalf("expected no failure before the first snapshot")
	}

	if _, err := gateway.Snapshot(context.Background()); err != nil {
		t.Fatalf("expected sink failure to be swallowed, got %v", err)
	}

	failure, ok := gateway.LastSinkFailure()
	if !ok || failure.Error != "status 403" || !failure.At.Equal(now) {
		t.Fatalf("unexpected last failure %+v (ok=%t)", failure, ok)
	}
	if got := testutil.ToFloat64(SinkWritesTotal.WithLabelValues("error")) - before; got != 1 {
		t.Fatalf("expected sink error counter to advance by 1, got %v", got)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["event"] != "sink_append_failed" {
		t.Fatalf("expected sink failure warning, got %+v", entry)
	}
}

func TestSnapshotSkipsUnconfiguredSink(t *testing.T) {
	sink := &recordingSink{}
	gateway := NewGateway(GatewayConfig{}, &stubCounter{}, sink, nil)

	if _, err := gateway.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(sink.rows) != 0 {
		t.Fatalf("expected no rows when sink is not configured, got %d", len(sink.rows))
	}
}

func TestSnapshotAppliesCallTimeout(t *testing.T) {
	counter := &stubCounter{}
	gateway := NewGateway(GatewayConfig{CallTimeout: time.Second}, counter, nil, nil)

	if _, err := gateway.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !counter.hadDeadline {
		t.Fatalf("expected count to run under a deadline")
	}
}

func TestSnapshotRequiresContext(t *testing.T) {
	gateway := NewGateway(GatewayConfig{}, &stubCounter{}, nil, nil)
	if _, err := gateway.Snapshot(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}

	var nilGateway *Gateway
	if _, err := nilGateway.Snapshot(context.Background()); err == nil {
		t.Fatalf("expected error for nil gateway")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0d 0h 0m"},
		{in: -time.Minute, want: "0d 0h 0m"},
		{in: 90 * time.Minute, want: "0d 1h 30m"},
		{in: 62*time.Hour + 32*time.Minute, want: "2d 14h 32m"},
	}

	for _, tt := range tests {
		if got := FormatUptime(tt.in); got != tt.want {
			t.Fatalf("FormatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type stubCounter struct {
	total       int64
	active      int64
	err         error
	since       time.Time
	hadDeadline bool
}

func (s *stubCounter) Count(ctx context.Context) (int64, error) {
	_, s.hadDeadline = ctx.Deadline()
	return s.total, s.err
}

func (s *stubCounter) CountActiveSince(_ context.Context, since time.Time) (int64, error) {
	s.since = since
	return s.active, s.err
}

type recordingSink struct {
	rows [][]string
	err  error
}

func (s *recordingSink) Append(_ context.Context, row []string) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}
