// Package metrics assembles metrics snapshots for the Mini App dashboard and
// exposes Prometheus collectors for the rest of the service.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tma_demo_bot/internal/logging"
)

// Quality describes the state of one dependency.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityOnline    Quality = "online"
	QualityOffline   Quality = "offline"
)

// ActiveWindow is the recency window used for the active user count.
const ActiveWindow = 24 * time.Hour

// Metrics is the numeric part of a snapshot. Gauges other than the user counts
// and uptime are synthetic.
type Metrics struct {
	Timestamp           string `json:"timestamp"`
	BotStatus           string `json:"botStatus"`
	DatabaseConnections int    `json:"databaseConnections"`
	ActiveUsers         int64  `json:"activeUsers"`
	TotalUsers          int64  `json:"totalUsers"`
	APIResponseTime     int    `json:"apiResponseTime"`
	SuccessRate         int    `json:"successRate"`
	ErrorCount          int    `json:"errorCount"`
	MemoryUsage         int    `json:"memoryUsage"`
	Uptime              string `json:"uptime"`
}

// ConnectionQuality reports one Quality per dependency.
type ConnectionQuality struct {
	Telegram        Quality `json:"telegram"`
	Database        Quality `json:"database"`
	SpreadsheetSink Quality `json:"googleSheets"`
	MiniApp         Quality `json:"miniApp"`
}

// Snapshot is returned by GET /api/metrics. It is never persisted.
type Snapshot struct {
	Metrics           Metrics           `json:"metrics"`
	ConnectionQuality ConnectionQuality `json:"connectionQuality"`
}

// Row flattens the snapshot into the spreadsheet column order.
func (s Snapshot) Row() []string {
	m := s.Metrics
	q := s.ConnectionQuality
	return []string{
		m.Timestamp,
		m.BotStatus,
		strconv.Itoa(m.DatabaseConnections),
		strconv.FormatInt(m.ActiveUsers, 10),
		strconv.FormatInt(m.TotalUsers, 10),
		strconv.Itoa(m.APIResponseTime),
		strconv.Itoa(m.SuccessRate),
		strconv.Itoa(m.ErrorCount),
		strconv.Itoa(m.MemoryUsage),
		m.Uptime,
		string(q.Telegram),
		string(q.Database),
		string(q.SpreadsheetSink),
		string(q.MiniApp),
	}
}

// SinkFailure is the last failed spreadsheet append.
type SinkFailure struct {
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Counter is the subset of the session store the gateway reads.
type Counter interface {
	Count(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

// Appender receives one row per snapshot.
type Appender interface {
	Append(ctx context.Context, row []string) error
}

// GatewayConfig holds the immutable inputs of a Gateway.
type GatewayConfig struct {
	BotConfigured  bool
	SinkConfigured bool
	ProcessStart   time.Time
	CallTimeout    time.Duration
	Now            func() time.Time
	// Intn returns a value in [0, n). Defaults to a time-seeded source.
	Intn func(n int) int
}

// Gateway builds snapshots and forwards them to the sink.
type Gateway struct {
	cfg     GatewayConfig
	counter Counter
	sink    Appender
	logger  *logrus.Entry

	mu          sync.Mutex
	lastFailure *SinkFailure
}

// NewGateway constructs a Gateway. A nil sink disables appends.
func NewGateway(cfg GatewayConfig, counter Counter, sink Appender, logger *logrus.Entry) *Gateway {
	if logger == nil {
		logger = logging.Logger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ProcessStart.IsZero() {
		cfg.ProcessStart = cfg.Now()
	}
	if cfg.Intn == nil {
		var mu sync.Mutex
		source := rand.New(rand.NewSource(time.Now().UnixNano()))
		cfg.Intn = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return source.Intn(n)
		}
	}

	return &Gateway{
		cfg:     cfg,
		counter: counter,
		sink:    sink,
		logger:  logger,
	}
}

// Snapshot queries the session counts, synthesizes the remaining gauges and
// appends the result to the sink. Count and sink failures degrade the
// snapshot; they are never returned.
func (g *Gateway) Snapshot(ctx context.Context) (Snapshot, error) {
	if g == nil {
		return Snapshot{}, errors.New("metrics gateway is not initialized")
	}
	if ctx == nil {
		return Snapshot{}, errors.New("context is required")
	}

	now := g.cfg.Now().UTC()
	total, active, dbErr := g.countSessions(ctx, now)
	if dbErr != nil {
		g.logger.WithFields(logging.Fields{
			"event": "metrics_count_failed",
		}).WithError(dbErr).Warn("session count failed; reporting database offline")
	}

	snapshot := Snapshot{
		Metrics: Metrics{
			Timestamp:           now.Format(time.RFC3339Nano),
			BotStatus:           string(QualityOnline),
			DatabaseConnections: g.cfg.Intn(10) + 5,
			ActiveUsers:         active,
			TotalUsers:          total,
			APIResponseTime:     g.cfg.Intn(200) + 50,
			SuccessRate:         g.cfg.Intn(5) + 95,
			ErrorCount:          g.cfg.Intn(3),
			MemoryUsage:         g.cfg.Intn(30) + 40,
			Uptime:              FormatUptime(now.Sub(g.cfg.ProcessStart)),
		},
		ConnectionQuality: ConnectionQuality{
			Telegram:        onlineIf(g.cfg.BotConfigured),
			Database:        onlineIf(dbErr == nil),
			SpreadsheetSink: onlineIf(g.cfg.SinkConfigured),
			MiniApp:         QualityOnline,
		},
	}
	SnapshotsTotal.Inc()

	g.appendRow(ctx, snapshot)

	return snapshot, nil
}

// LastSinkFailure returns the most recent failed append, if any.
func (g *Gateway) LastSinkFailure() (SinkFailure, bool) {
	if g == nil {
		return SinkFailure{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastFailure == nil {
		return SinkFailure{}, false
	}
	return *g.lastFailure, true
}

func (g *Gateway) countSessions(ctx context.Context, now time.Time) (int64, int64, error) {
	if g.counter == nil {
		return 0, 0, errors.New("session store is not configured")
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	total, err := g.counter.Count(callCtx)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("count").Inc()
		return 0, 0, fmt.Errorf("count sessions: %w", err)
	}

	active, err := g.counter.CountActiveSince(callCtx, now.Add(-ActiveWindow))
	if err != nil {
		StoreErrorsTotal.WithLabelValues("count_active").Inc()
		return total, 0, fmt.Errorf("count active sessions: %w", err)
	}

	return total, active, nil
}

func (g *Gateway) appendRow(ctx context.Context, snapshot Snapshot) {
	if !g.cfg.SinkConfigured || g.sink == nil {
		SinkWritesTotal.WithLabelValues("skipped").Inc()
		return
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	if err := g.sink.Append(callCtx, snapshot.Row()); err != nil {
		SinkWritesTotal.WithLabelValues("error").Inc()
		g.logger.WithFields(logging.Fields{
			"event": "sink_append_failed",
		}).WithError(err).Warn("failed to append metrics row")

		g.mu.Lock()
		g.lastFailure = &SinkFailure{Error: err.Error(), At: g.cfg.Now().UTC()}
		g.mu.Unlock()
		return
	}

	SinkWritesTotal.WithLabelValues("ok").Inc()
	g.logger.WithField("event", "sink_append").Debug("appended metrics row")
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.CallTimeout)
}

func onlineIf(ok bool) Quality {
	if ok {
		return QualityOnline
	}
	return QualityOffline
}

// FormatUptime renders d as "2d 14h 32m".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d%(24*time.Hour)) / int(time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)

	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
