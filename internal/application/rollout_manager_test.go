package application_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/application"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/memory"
)

type stubUpdateHandler struct {
	validated   int
	applied     int
	rolledBack  int
	appliedVer  string
	validateErr error
	applyErr    error
	rollbackErr error
}

func (h *stubUpdateHandler) ValidateUpdate(string) error {
	h.validated++
	return h.validateErr
}

func (h *stubUpdateHandler) HandleUpdate(_ string, version string) error {
	if h.applyErr != nil {
		return h.applyErr
	}
	h.applied++
	h.appliedVer = version
	return nil
}

func (h *stubUpdateHandler) RollbackUpdate() error {
	h.rolledBack++
	return h.rollbackErr
}

type stubHealthCheck struct {
	healthy bool
	err     error
}

func (c *stubHealthCheck) CheckHealth() (bool, error) { return c.healthy, c.err }

type stubReporter struct {
	reported [][]string
	err      error
}

func (r *stubReporter) ReportMetrics(metrics []string) error {
	r.reported = append(r.reported, metrics)
	return r.err
}

type memJournal struct {
	attempts []domain.UpdateAttempt
}

func (j *memJournal) Append(_ context.Context, attempt domain.UpdateAttempt) error {
	j.attempts = append(j.attempts, attempt)
	return nil
}

func (j *memJournal) List(_ context.Context) ([]domain.UpdateAttempt, error) {
	out := make([]domain.UpdateAttempt, len(j.attempts))
	for i, a := range j.attempts {
		out[len(out)-1-i] = a
	}
	return out, nil
}

func (j *memJournal) LastForRollout(_ context.Context, id domain.RolloutID) (domain.UpdateAttempt, error) {
	for i := len(j.attempts) - 1; i >= 0; i-- {
		if j.attempts[i].RolloutID == id {
			return j.attempts[i], nil
		}
	}
	return domain.UpdateAttempt{}, domain.ErrNotFound
}

const packagePayload = "package-bytes-2.0.0"

func payloadHash() string {
	sum := sha256.Sum256([]byte(packagePayload))
	return hex.EncodeToString(sum[:])
}

func testPlan() domain.RolloutPlan {
	return domain.RolloutPlan{
		ID:        "rollout-1",
		Name:      "firmware 2.0.0",
		Version:   "2.0.0",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
		Status:    domain.RolloutStatusInProgress,
		Phases: []domain.RolloutPhase{
			{ID: "phase-1", Percentage: 100, Metrics: []string{"cpu", "error_rate"}},
		},
		CurrentPhase: 0,
		PackageURL:   "s3://updates/fw/2.0.0.tar.gz",
		PackageHash:  payloadHash(),
		TargetGroups: []string{domain.GroupAll},
	}
}

// findDevice scans generated IDs for one whose percentile satisfies the
// predicate; hashing is deterministic so the scan always terminates.
func findDevice(t *testing.T, pred func(float64) bool) domain.DeviceID {
	t.Helper()
	for i := 0; i < 10000; i++ {
		id := domain.DeviceID(fmt.Sprintf("dev-%04d", i))
		if pred(domain.DevicePercentile(id)) {
			return id
		}
	}
	t.Fatal("no device ID matches predicate")
	return ""
}

type rolloutFixture struct {
	devices  *memory.DeviceRegistry
	rollouts *memory.RolloutRegistry
	objects  *memory.ObjectStore
	journal  *memJournal
	manager  *application.RolloutManager
	deviceID domain.DeviceID
}

func newRolloutFixture(t *testing.T, deviceID domain.DeviceID) *rolloutFixture {
	t.Helper()
	f := &rolloutFixture{
		devices:  memory.NewDeviceRegistry(),
		rollouts: memory.NewRolloutRegistry(),
		objects:  memory.NewObjectStore(),
		journal:  &memJournal{},
		deviceID: deviceID,
	}
	f.devices.Enroll(domain.DeviceRecord{
		ID:             deviceID,
		Group:          "sensors",
		CurrentVersion: "1.0.0",
		UpdateStatus:   domain.UpdateStatusIdle,
	})
	f.objects.PutURL("s3://updates/fw/2.0.0.tar.gz", []byte(packagePayload))

	manager, err := application.NewRolloutManager(f.devices, f.rollouts, f.objects, f.journal, application.RolloutManagerConfig{
		DeviceID:      deviceID,
		DeviceGroup:   "sensors",
		UpdateDir:     t.TempDir(),
		CheckInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewRolloutManager: %v", err)
	}
	f.manager = manager
	return f
}

func (f *rolloutFixture) record(t *testing.T) domain.DeviceRecord {
	t.Helper()
	record, err := f.devices.Get(context.Background(), f.deviceID)
	if err != nil {
		t.Fatalf("Get device: %v", err)
	}
	return record
}

func TestRolloutManager_AppliesEligibleUpdate(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")
	f.rollouts.Put(testPlan())

	handler := &stubUpdateHandler{}
	reporter := &stubReporter{}
	f.manager.RegisterUpdateHandler(handler)
	f.manager.RegisterHealthCheck(&stubHealthCheck{healthy: true})
	f.manager.RegisterTelemetryReporter(reporter)

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates: %v", err)
	}

	if handler.validated != 1 || handler.applied != 1 {
		t.Errorf("handler validated=%d applied=%d, want 1/1", handler.validated, handler.applied)
	}
	if handler.appliedVer != "2.0.0" {
		t.Errorf("applied version %q, want 2.0.0", handler.appliedVer)
	}
	if handler.rolledBack != 0 {
		t.Errorf("rolledBack = %d, want 0", handler.rolledBack)
	}

	record := f.record(t)
	if record.UpdateStatus != domain.UpdateStatusSuccess {
		t.Errorf("UpdateStatus = %q, want success", record.UpdateStatus)
	}
	if record.CurrentVersion != "2.0.0" {
		t.Errorf("CurrentVersion = %q, want 2.0.0", record.CurrentVersion)
	}
	if record.LastUpdateID != "rollout-1" {
		t.Errorf("LastUpdateID = %q, want rollout-1", record.LastUpdateID)
	}

	if len(reporter.reported) != 1 || strings.Join(reporter.reported[0], ",") != "cpu,error_rate" {
		t.Errorf("reported metrics %v, want phase metrics once", reporter.reported)
	}

	attempt, err := f.journal.LastForRollout(context.Background(), "rollout-1")
	if err != nil {
		t.Fatalf("LastForRollout: %v", err)
	}
	if attempt.Status != domain.UpdateStatusSuccess || attempt.Version != "2.0.0" {
		t.Errorf("journal attempt = %+v, want success/2.0.0", attempt)
	}

	// The update already applied; a second pass must not reapply it.
	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("second CheckForUpdates: %v", err)
	}
	if handler.applied != 1 {
		t.Errorf("applied = %d after second pass, want 1", handler.applied)
	}
}

func TestRolloutManager_SkipsDeviceOutsidePhase(t *testing.T) {
	id := findDevice(t, func(p float64) bool { return p > 25 })
	f := newRolloutFixture(t, id)

	plan := testPlan()
	plan.Phases[0].Percentage = 25
	f.rollouts.Put(plan)

	handler := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(handler)

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates: %v", err)
	}
	if handler.validated != 0 {
		t.Errorf("handler validated=%d, want 0", handler.validated)
	}
	if got := f.record(t).UpdateStatus; got != domain.UpdateStatusIdle {
		t.Errorf("UpdateStatus = %q, want idle", got)
	}

	// The same plan is still tracked for status purposes.
	if current := f.manager.CurrentRollout(); current == nil || current.ID != plan.ID {
		t.Errorf("CurrentRollout = %v, want plan %s", current, plan.ID)
	}
}

func TestRolloutManager_ApprovalGateHoldsPhase(t *testing.T) {
	id := findDevice(t, func(p float64) bool { return p <= 50 })
	f := newRolloutFixture(t, id)

	plan := testPlan()
	plan.Phases[0].Percentage = 50
	plan.Phases[0].RequireApproval = true
	f.rollouts.Put(plan)

	handler := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(handler)

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates: %v", err)
	}
	if handler.applied != 0 {
		t.Fatalf("applied = %d before approval, want 0", handler.applied)
	}

	plan.Phases[0].Approved = true
	f.rollouts.Put(plan)

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates after approval: %v", err)
	}
	if handler.applied != 1 {
		t.Errorf("applied = %d after approval, want 1", handler.applied)
	}
}

func TestRolloutManager_ShouldApplyUpdateGuards(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")
	plan := testPlan()

	base := domain.DeviceRecord{
		ID:             "dev-0001",
		CurrentVersion: "1.0.0",
		UpdateStatus:   domain.UpdateStatusIdle,
	}

	t.Run("version already current", func(t *testing.T) {
		record := base
		record.CurrentVersion = plan.Version
		if f.manager.ShouldApplyUpdate(record, plan) {
			t.Error("applied despite version already current")
		}
	})

	t.Run("update in flight", func(t *testing.T) {
		record := base
		record.UpdateStatus = domain.UpdateStatusUpdating
		if f.manager.ShouldApplyUpdate(record, plan) {
			t.Error("applied while another update is in flight")
		}
	})

	t.Run("failed payload not retried", func(t *testing.T) {
		record := base
		record.UpdateStatus = domain.UpdateStatusFailed
		record.LastUpdateID = plan.ID
		record.LastUpdateTime = plan.UpdatedAt.Add(time.Minute)
		if f.manager.ShouldApplyUpdate(record, plan) {
			t.Error("retried a payload that already failed here")
		}

		// A plan revised after the failure is fair to retry.
		revised := plan
		revised.UpdatedAt = record.LastUpdateTime.Add(time.Minute)
		if !f.manager.ShouldApplyUpdate(record, revised) {
			t.Error("did not retry a plan revised after the failure")
		}
	})

	t.Run("phase index out of range", func(t *testing.T) {
		bad := plan
		bad.CurrentPhase = len(bad.Phases)
		if f.manager.ShouldApplyUpdate(base, bad) {
			t.Error("applied with no active phase")
		}
	})
}

func TestRolloutManager_HashMismatchFailsAndRollsBack(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")

	plan := testPlan()
	plan.PackageHash = strings.Repeat("0", 64)
	f.rollouts.Put(plan)

	handler := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(handler)

	err := f.manager.CheckForUpdates()
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("CheckForUpdates: got %v, want ErrIntegrity", err)
	}

	if handler.applied != 0 {
		t.Errorf("applied = %d from unverified package, want 0", handler.applied)
	}
	if handler.rolledBack != 1 {
		t.Errorf("rolledBack = %d, want 1", handler.rolledBack)
	}

	record := f.record(t)
	if record.UpdateStatus != domain.UpdateStatusFailed {
		t.Errorf("UpdateStatus = %q, want failed", record.UpdateStatus)
	}
	if !strings.Contains(record.LastUpdateMessage, "integrity") {
		t.Errorf("LastUpdateMessage = %q, want integrity failure", record.LastUpdateMessage)
	}
	if record.CurrentVersion != "1.0.0" {
		t.Errorf("CurrentVersion = %q, want unchanged 1.0.0", record.CurrentVersion)
	}
}

func TestRolloutManager_ValidationFailureBlocksAllApplies(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")
	f.rollouts.Put(testPlan())

	good := &stubUpdateHandler{}
	bad := &stubUpdateHandler{validateErr: errors.New("unsupported package format")}
	f.manager.RegisterUpdateHandler(good)
	f.manager.RegisterUpdateHandler(bad)

	if err := f.manager.CheckForUpdates(); err == nil {
		t.Fatal("CheckForUpdates succeeded despite validation failure")
	}

	if good.applied != 0 || bad.applied != 0 {
		t.Errorf("applied = %d/%d despite validation failure, want 0/0", good.applied, bad.applied)
	}
	if good.rolledBack != 1 || bad.rolledBack != 1 {
		t.Errorf("rolledBack = %d/%d, want 1/1", good.rolledBack, bad.rolledBack)
	}
	if got := f.record(t).UpdateStatus; got != domain.UpdateStatusFailed {
		t.Errorf("UpdateStatus = %q, want failed", got)
	}
}

func TestRolloutManager_RollbackReachesEveryHandler(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")
	f.rollouts.Put(testPlan())

	first := &stubUpdateHandler{rollbackErr: errors.New("rollback hiccup")}
	second := &stubUpdateHandler{applyErr: errors.New("disk full")}
	third := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(first)
	f.manager.RegisterUpdateHandler(second)
	f.manager.RegisterUpdateHandler(third)

	if err := f.manager.CheckForUpdates(); err == nil {
		t.Fatal("CheckForUpdates succeeded despite apply failure")
	}

	// One rollback failing must not stop the others.
	if first.rolledBack != 1 || second.rolledBack != 1 || third.rolledBack != 1 {
		t.Errorf("rolledBack = %d/%d/%d, want 1/1/1",
			first.rolledBack, second.rolledBack, third.rolledBack)
	}

	attempt, err := f.journal.LastForRollout(context.Background(), "rollout-1")
	if err != nil {
		t.Fatalf("LastForRollout: %v", err)
	}
	if attempt.Status != domain.UpdateStatusFailed {
		t.Errorf("journal status = %q, want failed", attempt.Status)
	}
}

func TestRolloutManager_UnhealthyAfterApplyRollsBack(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")
	f.rollouts.Put(testPlan())

	handler := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(handler)
	f.manager.RegisterHealthCheck(&stubHealthCheck{healthy: true})
	f.manager.RegisterHealthCheck(&stubHealthCheck{healthy: false})

	if err := f.manager.CheckForUpdates(); err == nil {
		t.Fatal("CheckForUpdates succeeded despite failing health check")
	}

	if handler.applied != 1 {
		t.Errorf("applied = %d, want 1", handler.applied)
	}
	if handler.rolledBack != 1 {
		t.Errorf("rolledBack = %d, want 1", handler.rolledBack)
	}

	record := f.record(t)
	if record.UpdateStatus != domain.UpdateStatusFailed {
		t.Errorf("UpdateStatus = %q, want failed", record.UpdateStatus)
	}
	if !strings.Contains(record.LastUpdateMessage, "applied but unhealthy") {
		t.Errorf("LastUpdateMessage = %q, want applied-but-unhealthy", record.LastUpdateMessage)
	}
	if record.CurrentVersion != "1.0.0" {
		t.Errorf("CurrentVersion = %q, want unchanged 1.0.0", record.CurrentVersion)
	}
}

func TestRolloutManager_TelemetryFailureDoesNotFailUpdate(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")
	f.rollouts.Put(testPlan())

	handler := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(handler)
	f.manager.RegisterTelemetryReporter(&stubReporter{err: errors.New("broker unreachable")})

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates: %v", err)
	}
	if got := f.record(t).UpdateStatus; got != domain.UpdateStatusSuccess {
		t.Errorf("UpdateStatus = %q, want success", got)
	}
}

func TestRolloutManager_IgnoresPlansForOtherGroups(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")

	plan := testPlan()
	plan.TargetGroups = []string{"gateways"}
	f.rollouts.Put(plan)

	handler := &stubUpdateHandler{}
	f.manager.RegisterUpdateHandler(handler)

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates: %v", err)
	}
	if handler.validated != 0 {
		t.Errorf("validated = %d for plan targeting another group, want 0", handler.validated)
	}
	if f.manager.CurrentRollout() != nil {
		t.Error("CurrentRollout tracked a plan for another group")
	}
}

func TestRolloutManager_NoActivePlan(t *testing.T) {
	f := newRolloutFixture(t, "dev-0001")

	if err := f.manager.CheckForUpdates(); err != nil {
		t.Fatalf("CheckForUpdates: %v", err)
	}
	if f.manager.CurrentRollout() != nil {
		t.Error("CurrentRollout non-nil with no in-progress plans")
	}
}

func TestRolloutManager_RequiresDeviceID(t *testing.T) {
	_, err := application.NewRolloutManager(memory.NewDeviceRegistry(), memory.NewRolloutRegistry(), memory.NewObjectStore(), nil, application.RolloutManagerConfig{
		UpdateDir: t.TempDir(),
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}
