package cloudmetrics

import (
	"context"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/taskhub/internal/clock"
	invitationdomain "github.com/smallbiznis/taskhub/internal/invitation/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot is a point-in-time view of workspace volume.
type Snapshot struct {
	Organizations      int64
	Memberships        int64
	PendingInvitations int64
}

type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

type dbSource struct {
	db          *gorm.DB
	orgs        orgdomain.Repository
	invitations invitationdomain.Repository
	clock       clock.Clock
}

func NewSource(db *gorm.DB, orgs orgdomain.Repository, invitations invitationdomain.Repository, clk clock.Clock) Source {
	return &dbSource{db: db, orgs: orgs, invitations: invitations, clock: clk}
}

func (s *dbSource) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Organizations, err = s.orgs.Count(ctx); err != nil {
		return Snapshot{}, err
	}
	if err = s.db.WithContext(ctx).Model(&membershipdomain.Member{}).Count(&snap.Memberships).Error; err != nil {
		return Snapshot{}, err
	}
	if snap.PendingInvitations, err = s.invitations.CountPending(ctx, s.clock.Now()); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// WorkspaceMetrics owns the gauges pushed to the remote collector.
type WorkspaceMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	source   Source
	log      *zap.Logger

	organizations      prometheus.Gauge
	memberships        prometheus.Gauge
	pendingInvitations prometheus.Gauge
	memoryBytes        prometheus.Gauge
}

func New(registry *prometheus.Registry, pusher Pusher, source Source, version string, log *zap.Logger) *WorkspaceMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	constLabels := prometheus.Labels{"version": version}

	w := &WorkspaceMetrics{
		registry: registry,
		pusher:   pusher,
		source:   source,
		log:      log.Named("cloudmetrics"),
		organizations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taskhub_organizations",
			Help:        "Number of organizations.",
			ConstLabels: constLabels,
		}),
		memberships: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taskhub_memberships",
			Help:        "Number of organization memberships.",
			ConstLabels: constLabels,
		}),
		pendingInvitations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taskhub_pending_invitations",
			Help:        "Pending invitations that have not expired.",
			ConstLabels: constLabels,
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taskhub_process_memory_bytes",
			Help:        "Memory obtained from the OS by the process.",
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(w.organizations, w.memberships, w.pendingInvitations, w.memoryBytes)
	return w
}

// Collect refreshes every gauge from the source.
func (w *WorkspaceMetrics) Collect(ctx context.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	w.memoryBytes.Set(float64(m.Sys))

	if w.source == nil {
		return nil
	}
	snap, err := w.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	w.organizations.Set(float64(snap.Organizations))
	w.memberships.Set(float64(snap.Memberships))
	w.pendingInvitations.Set(float64(snap.PendingInvitations))
	return nil
}

func (w *WorkspaceMetrics) Push(ctx context.Context) error {
	if w == nil || w.pusher == nil {
		return nil
	}
	return w.pusher.Push(ctx, w.registry)
}

func (w *WorkspaceMetrics) tick(ctx context.Context) {
	if err := w.Collect(ctx); err != nil {
		w.log.Warn("collect workspace metrics failed", zap.Error(err))
	}
	if err := w.Push(ctx); err != nil {
		w.log.Error("push workspace metrics failed", zap.Error(err))
	}
}
