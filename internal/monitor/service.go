// Package monitor is the in-process API of hostwatch: history queries,
// alert listing and acknowledgement, threshold management and a fan-out
// of fired alerts to subscribers.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/collector"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

var log = logging.Component("monitor")

// HistoryResolver answers history requests.
type HistoryResolver interface {
	History(ctx context.Context, target string, from, to time.Time) (*query.History, error)
}

// Service implements the API surface.
type Service struct {
	history    HistoryResolver
	ledger     storage.AlertLedger
	thresholds *thresholds.Store

	// thresholdsFile, when set, receives every accepted rule set.
	thresholdsFile string
	alertLimit     int

	subMu  sync.RWMutex
	subs   map[uint64]chan collector.FiredAlert
	nextID uint64

	dropped atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithThresholdsFile persists accepted rule sets to path.
func WithThresholdsFile(path string) Option {
	return func(s *Service) { s.thresholdsFile = path }
}

// WithRecentAlertLimit sets the limit used when a caller passes none.
func WithRecentAlertLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.alertLimit = n
		}
	}
}

// New creates a service.
func New(history HistoryResolver, ledger storage.AlertLedger, th *thresholds.Store, opts ...Option) *Service {
	s := &Service{
		history:    history,
		ledger:     ledger,
		thresholds: th,
		alertLimit: config.DefaultRecentAlertLimit,
		subs:       make(map[uint64]chan collector.FiredAlert),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Queries
// =============================================================================

// GetHistory returns the history of target within [from, to].
func (s *Service) GetHistory(ctx context.Context, target string, from, to time.Time) (*query.History, error) {
	return s.history.History(ctx, target, from, to)
}

// GetRecentAlerts lists alerts most recent first. An empty target lists
// every target; a non-positive limit uses the configured default (50).
func (s *Service) GetRecentAlerts(ctx context.Context, target string, limit int) ([]types.AlertRecord, error) {
	if limit <= 0 {
		limit = s.alertLimit
	}
	return s.ledger.GetRecentAlerts(ctx, target, limit)
}

// AcknowledgeAlert marks an alert acknowledged. Unknown ids are a no-op.
func (s *Service) AcknowledgeAlert(ctx context.Context, id int64) error {
	return s.ledger.AcknowledgeAlert(ctx, id)
}

// =============================================================================
// Thresholds
// =============================================================================

// GetThresholds returns the current rules.
func (s *Service) GetThresholds() []types.AlertThreshold {
	return s.thresholds.Get().Thresholds
}

// SetThresholds replaces the rules. Invalid sets are rejected whole and
// leave the current rules in place.
func (s *Service) SetThresholds(list []types.AlertThreshold) error {
	snap, err := s.thresholds.Set(list)
	if err != nil {
		return err
	}

	if s.thresholdsFile != "" {
		if err := thresholds.SaveFile(s.thresholdsFile, snap.Thresholds); err != nil {
			log.Warn("persist thresholds failed", "path", s.thresholdsFile, "error", err)
			return err
		}
	}

	log.Info("thresholds updated", "version", snap.Version, "rules", len(snap.Thresholds))
	return nil
}

// =============================================================================
// Alert fan-out
// =============================================================================

// Subscribe registers a subscriber with a buffer of size buf. Alerts that
// do not fit the buffer are dropped for that subscriber. cancel closes
// the channel.
func (s *Service) Subscribe(buf int) (alerts <-chan collector.FiredAlert, cancel func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan collector.FiredAlert, buf)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Deliver implements collector.AlertSink. It never blocks.
func (s *Service) Deliver(_ context.Context, alert collector.FiredAlert) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- alert:
		default:
			s.dropped.Add(1)
		}
	}
}

// DroppedAlerts returns how many deliveries were dropped on full buffers.
func (s *Service) DroppedAlerts() int64 {
	return s.dropped.Load()
}
