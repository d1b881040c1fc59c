// Package handler provides HTTP handlers for the PrintPush API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/api/models"
	"github.com/printpush/printpush/internal/api/response"
	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/provider/resilience"
	"github.com/printpush/printpush/internal/worker"
)

// readyTimeout bounds the store ping of a readiness check.
const readyTimeout = 2 * time.Second

// Pinger checks that the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppLister lists the registered app instances.
type AppLister interface {
	GetAll(ctx context.Context) ([]apps.AppInstance, error)
}

// InFlightReporter reports the number of notifications being dispatched.
type InFlightReporter interface {
	InFlight() int64
}

// ConfigStatus reports the freshness of the remote config.
type ConfigStatus interface {
	Stale() bool
	FetchedAt() time.Time
}

// SweeperStatus reports expiry sweeper statistics.
type SweeperStatus interface {
	GetMetrics() worker.SweepMetrics
}

// OpsConfig holds the dependencies of the operational endpoints. Nil
// dependencies are skipped in the status report.
type OpsConfig struct {
	Version   string
	BuildTime string

	Store     Pinger
	Apps      AppLister
	Engine    InFlightReporter
	Config    ConfigStatus
	Sweeper   SweeperStatus
	Providers *resilience.Registry
	Logger    zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.cfg.Store.Ping(ctx); err != nil {
			h.cfg.Logger.Warn().Err(err).Msg("readiness check failed")
			health.Status = models.HealthStatusFail
			health.Details = map[string]any{"store": err.Error()}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.subsystems(r.Context()),
		Providers:  h.providers(),
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, p.Provider+"-degraded")
		}
		status.Status = worst(status.Status, degrade(p.Status))
	}
	if h.cfg.Config != nil && h.cfg.Config.Stale() {
		status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "remote-config-stale")
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	var out []models.SubsystemStatus

	if h.cfg.Store != nil {
		s := models.SubsystemStatus{Name: "store", Status: models.HealthStatusOK}
		pingCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		if err := h.cfg.Store.Ping(pingCtx); err != nil {
			s.Status = models.HealthStatusFail
			s.Detail = strPtr(err.Error())
		}
		cancel()
		out = append(out, s)
	}

	if h.cfg.Apps != nil {
		s := models.SubsystemStatus{Name: "apps", Status: models.HealthStatusOK}
		list, err := h.cfg.Apps.GetAll(ctx)
		if err != nil {
			s.Status = models.HealthStatusFail
			s.Detail = strPtr(err.Error())
		} else {
			s.Detail = strPtr(fmt.Sprintf("%d registered, %d live activities", len(list), len(apps.Activities(list))))
		}
		out = append(out, s)
	}

	if h.cfg.Engine != nil {
		out = append(out, models.SubsystemStatus{
			Name:   "dispatch",
			Status: models.HealthStatusOK,
			Detail: strPtr(fmt.Sprintf("%d in flight", h.cfg.Engine.InFlight())),
		})
	}

	if h.cfg.Config != nil {
		s := models.SubsystemStatus{Name: "remote-config", Status: models.HealthStatusOK}
		fetched := h.cfg.Config.FetchedAt()
		if fetched.IsZero() {
			s.Status = models.HealthStatusDegraded
			s.Detail = strPtr("serving defaults")
		} else {
			s.Detail = strPtr("fetched at " + fetched.UTC().Format(time.RFC3339))
		}
		out = append(out, s)
	}

	if h.cfg.Sweeper != nil {
		m := h.cfg.Sweeper.GetMetrics()
		s := models.SubsystemStatus{
			Name:   "expiry-sweeper",
			Status: models.HealthStatusOK,
			Detail: strPtr(fmt.Sprintf("%d sweeps, %d failed, %d removed", m.TotalSweeps, m.FailedSweeps, m.Removed)),
		}
		if m.TotalSweeps > 0 && m.FailedSweeps == m.TotalSweeps {
			s.Status = models.HealthStatusDegraded
		}
		out = append(out, s)
	}

	return out
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	if h.cfg.Providers == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Providers.Snapshot()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		p := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              conditionStatus[ph.Condition()],
			Circuit:             ph.CircuitState.String(),
			ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
		}
		if ph.LastSuccessAt != nil {
			ts := models.Timestamp(*ph.LastSuccessAt)
			p.LastSuccessAt = &ts
		}
		if ph.LastFailureAt != nil {
			ts := models.Timestamp(*ph.LastFailureAt)
			p.LastFailureAt = &ts
		}
		if ph.LastError != "" {
			p.Message = strPtr(ph.LastError)
		}
		out = append(out, p)
	}
	return out
}

var conditionStatus = map[resilience.Condition]models.HealthStatus{
	resilience.ConditionUp:       models.HealthStatusOK,
	resilience.ConditionDegraded: models.HealthStatusDegraded,
	resilience.ConditionDown:     models.HealthStatusFail,
}

// degrade caps a provider failure at DEGRADED in the overall status.
func degrade(s models.HealthStatus) models.HealthStatus {
	if s == models.HealthStatusFail {
		return models.HealthStatusDegraded
	}
	return s
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func strPtr(s string) *string {
	return &s
}
