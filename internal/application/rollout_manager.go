package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// RolloutManagerConfig configures a [RolloutManager].
type RolloutManagerConfig struct {
	DeviceID    domain.DeviceID
	DeviceGroup string

	// UpdateDir is where downloaded packages are staged.
	UpdateDir string

	CheckInterval time.Duration

	// NetworkTimeout bounds each registry/package call; zero means 30s.
	NetworkTimeout time.Duration

	// Logger receives operational messages; nil discards them.
	Logger *log.Logger
}

// RolloutManager decides, independently for this device and without
// central coordination, whether to apply the active phase of an
// in-progress rollout, and backs the update out if it proves unhealthy.
// Eligibility is a pure function of device identity, so no distributed
// lock is needed to decide who updates when.
type RolloutManager struct {
	devices  domain.DeviceRegistry
	rollouts domain.RolloutRegistry
	objects  domain.ObjectStore
	journal  domain.UpdateJournal

	deviceID    domain.DeviceID
	deviceGroup string
	updateDir   string
	interval    time.Duration
	timeout     time.Duration
	logger      *log.Logger

	cron     *cron.Cron
	inFlight atomic.Bool

	rolloutMu      sync.RWMutex
	currentRollout *domain.RolloutPlan

	handlersMu sync.RWMutex
	handlers   []domain.UpdateHandler
	checks     []domain.HealthCheck
	reporters  []domain.TelemetryReporter
}

// NewRolloutManager creates a rollout manager. The registries and object
// store are injected so both managers share one set of clients. journal
// may be nil to disable the local update journal.
func NewRolloutManager(devices domain.DeviceRegistry, rollouts domain.RolloutRegistry, objects domain.ObjectStore, journal domain.UpdateJournal, cfg RolloutManagerConfig) (*RolloutManager, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("%w: device ID is required", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(cfg.UpdateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create update directory: %w", err)
	}

	timeout := cfg.NetworkTimeout
	if timeout == 0 {
		timeout = defaultNetworkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &RolloutManager{
		devices:     devices,
		rollouts:    rollouts,
		objects:     objects,
		journal:     journal,
		deviceID:    cfg.DeviceID,
		deviceGroup: cfg.DeviceGroup,
		updateDir:   cfg.UpdateDir,
		interval:    cfg.CheckInterval,
		timeout:     timeout,
		logger:      logger,
		cron:        cron.New(),
	}, nil
}

// RegisterUpdateHandler registers a handler. Apply order is
// registration order.
func (rm *RolloutManager) RegisterUpdateHandler(handler domain.UpdateHandler) {
	rm.handlersMu.Lock()
	defer rm.handlersMu.Unlock()
	rm.handlers = append(rm.handlers, handler)
}

// RegisterHealthCheck registers a post-update health check.
func (rm *RolloutManager) RegisterHealthCheck(check domain.HealthCheck) {
	rm.handlersMu.Lock()
	defer rm.handlersMu.Unlock()
	rm.checks = append(rm.checks, check)
}

// RegisterTelemetryReporter registers a reporter for phase metrics.
func (rm *RolloutManager) RegisterTelemetryReporter(reporter domain.TelemetryReporter) {
	rm.handlersMu.Lock()
	defer rm.handlersMu.Unlock()
	rm.reporters = append(rm.reporters, reporter)
}

// Start begins periodic update checks.
func (rm *RolloutManager) Start() error {
	_, err := rm.cron.AddFunc(fmt.Sprintf("@every %s", rm.interval), rm.tick)
	if err != nil {
		return fmt.Errorf("schedule update check: %w", err)
	}
	rm.cron.Start()
	return nil
}

// Close stops the periodic schedule.
func (rm *RolloutManager) Close() {
	rm.cron.Stop()
}

func (rm *RolloutManager) tick() {
	if !rm.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer rm.inFlight.Store(false)

	if err := rm.CheckForUpdates(); err != nil {
		rm.logger.Printf("update check failed: %v", err)
	}
}

// CurrentRollout returns the plan this device is currently tracking, or
// nil when none is active.
func (rm *RolloutManager) CurrentRollout() *domain.RolloutPlan {
	rm.rolloutMu.RLock()
	defer rm.rolloutMu.RUnlock()
	return rm.currentRollout
}

// CheckForUpdates runs one evaluation: load this device's record, find
// an in-progress plan targeting its group, and apply it if this device
// is eligible. No active plan is the steady state, not an error.
func (rm *RolloutManager) CheckForUpdates() error {
	ctx, cancel := context.WithTimeout(context.Background(), rm.timeout)
	record, err := rm.devices.Get(ctx, rm.deviceID)
	cancel()
	if err != nil {
		return fmt.Errorf("load device record: %w", err)
	}

	group := record.Group
	if group == "" {
		group = rm.deviceGroup
	}

	ctx, cancel = context.WithTimeout(context.Background(), rm.timeout)
	plans, err := rm.rollouts.ListInProgress(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list in-progress rollouts: %w", err)
	}

	var active *domain.RolloutPlan
	for i := range plans {
		if plans[i].TargetsGroup(group) {
			active = &plans[i]
			break
		}
	}

	rm.rolloutMu.Lock()
	rm.currentRollout = active
	rm.rolloutMu.Unlock()

	if active == nil {
		return nil
	}
	if !rm.ShouldApplyUpdate(record, *active) {
		return nil
	}
	return rm.applyUpdate(*active)
}

// ShouldApplyUpdate decides whether this device applies the plan's
// active phase. The decision is deterministic for a given device and
// plan state, so repeated evaluations and process restarts agree.
func (rm *RolloutManager) ShouldApplyUpdate(record domain.DeviceRecord, plan domain.RolloutPlan) bool {
	if record.CurrentVersion == plan.Version {
		return false
	}
	// An update already in flight must reach a terminal state before
	// anything new is applied.
	if !record.UpdateStatus.Terminal() {
		return false
	}
	// A payload that already failed here is not retried until the plan
	// moves forward (corrected package or forced re-trigger).
	if record.UpdateStatus == domain.UpdateStatusFailed &&
		record.LastUpdateID == plan.ID &&
		!plan.UpdatedAt.After(record.LastUpdateTime) {
		return false
	}

	phase, ok := plan.ActivePhase()
	if !ok {
		return false
	}
	return domain.EligibleForPhase(rm.deviceID, phase)
}

// applyUpdate downloads, verifies, and applies the plan's package, then
// verifies health. Any failure reports failed status and rolls back
// every registered handler.
func (rm *RolloutManager) applyUpdate(plan domain.RolloutPlan) error {
	started := time.Now().UTC()
	rm.reportStatus(plan, domain.UpdateStatusUpdating, "")

	if err := rm.runUpdate(plan); err != nil {
		rm.logger.Printf("rollout %s: apply failed: %v", plan.ID, err)
		rm.reportStatus(plan, domain.UpdateStatusFailed, err.Error())
		rm.rollbackAll()
		rm.journalAttempt(plan, domain.UpdateStatusFailed, err.Error(), started)
		return err
	}

	rm.reportStatus(plan, domain.UpdateStatusSuccess, "")
	rm.journalAttempt(plan, domain.UpdateStatusSuccess, "", started)
	rm.logger.Printf("rollout %s: updated to version %s", plan.ID, plan.Version)
	return nil
}

func (rm *RolloutManager) runUpdate(plan domain.RolloutPlan) error {
	packagePath, err := rm.downloadPackage(plan)
	if err != nil {
		return err
	}

	rm.handlersMu.RLock()
	handlers := append([]domain.UpdateHandler(nil), rm.handlers...)
	checks := append([]domain.HealthCheck(nil), rm.checks...)
	rm.handlersMu.RUnlock()

	// Every handler validates before any handler applies, so a
	// partially valid update set never begins applying.
	for _, handler := range handlers {
		if err := handler.ValidateUpdate(packagePath); err != nil {
			return fmt.Errorf("validate update: %w", err)
		}
	}
	for _, handler := range handlers {
		if err := handler.HandleUpdate(packagePath, plan.Version); err != nil {
			return fmt.Errorf("apply update: %w", err)
		}
	}

	for _, check := range checks {
		healthy, err := check.CheckHealth()
		if err != nil {
			return fmt.Errorf("applied but unhealthy: health check error: %w", err)
		}
		if !healthy {
			return fmt.Errorf("applied but unhealthy: health check reported unhealthy")
		}
	}

	rm.reportPhaseMetrics(plan)
	return nil
}

// downloadPackage fetches the plan's package and verifies its content
// hash. A mismatch discards the artifact; nothing is ever applied from
// an unverified file.
func (rm *RolloutManager) downloadPackage(plan domain.RolloutPlan) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rm.timeout)
	data, err := rm.objects.FetchURL(ctx, plan.PackageURL)
	cancel()
	if err != nil {
		return "", fmt.Errorf("download package: %w", err)
	}

	packagePath := filepath.Join(rm.updateDir, filepath.Base(plan.PackageURL))
	if err := os.WriteFile(packagePath, data, 0o644); err != nil {
		return "", fmt.Errorf("write package file: %w", err)
	}

	hash, err := fileSHA256(packagePath)
	if err != nil {
		return "", fmt.Errorf("hash package: %w", err)
	}
	if hash != plan.PackageHash {
		os.Remove(packagePath)
		return "", fmt.Errorf("%w: package hash %s, expected %s", domain.ErrIntegrity, hash, plan.PackageHash)
	}
	return packagePath, nil
}

// rollbackAll rolls back every registered handler, continuing past
// individual failures so handlers that applied are never skipped.
func (rm *RolloutManager) rollbackAll() {
	rm.handlersMu.RLock()
	handlers := append([]domain.UpdateHandler(nil), rm.handlers...)
	rm.handlersMu.RUnlock()

	for _, handler := range handlers {
		if err := handler.RollbackUpdate(); err != nil {
			rm.logger.Printf("rollback failed: %v", err)
		}
	}
}

// reportPhaseMetrics pushes the active phase's monitored metric names to
// every telemetry reporter. Reporter errors never fail an update.
func (rm *RolloutManager) reportPhaseMetrics(plan domain.RolloutPlan) {
	phase, ok := plan.ActivePhase()
	if !ok || len(phase.Metrics) == 0 {
		return
	}

	rm.handlersMu.RLock()
	reporters := append([]domain.TelemetryReporter(nil), rm.reporters...)
	rm.handlersMu.RUnlock()

	for _, reporter := range reporters {
		if err := reporter.ReportMetrics(phase.Metrics); err != nil {
			rm.logger.Printf("telemetry report failed: %v", err)
		}
	}
}

// reportStatus writes this device's own status record; it is the only
// write the device performs to shared rollout state. Registry failures
// are logged, never fatal: the device must stay live to retry on the
// next tick.
func (rm *RolloutManager) reportStatus(plan domain.RolloutPlan, status domain.UpdateStatus, message string) {
	version := ""
	if status == domain.UpdateStatusSuccess {
		version = plan.Version
	}

	ctx, cancel := context.WithTimeout(context.Background(), rm.timeout)
	defer cancel()
	err := rm.devices.ReportUpdate(ctx, rm.deviceID, domain.UpdateReport{
		RolloutID: plan.ID,
		Status:    status,
		Version:   version,
		Message:   message,
		Time:      time.Now().UTC(),
	})
	if err != nil {
		rm.logger.Printf("report status %s for rollout %s: %v", status, plan.ID, err)
	}
}

func (rm *RolloutManager) journalAttempt(plan domain.RolloutPlan, status domain.UpdateStatus, message string, started time.Time) {
	if rm.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rm.timeout)
	defer cancel()
	err := rm.journal.Append(ctx, domain.UpdateAttempt{
		ID:         uuid.NewString(),
		RolloutID:  plan.ID,
		Version:    plan.Version,
		Status:     status,
		Message:    message,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		rm.logger.Printf("journal update attempt: %v", err)
	}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
