package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Local-store key layout: the durable value lives under data/<key> and a
// marker under pending/<key> while an upload is outstanding. Upload
// removes only the marker, so GetLocal keeps serving the value after a
// confirmed upload.
const (
	dataKeyPrefix    = "data/"
	pendingKeyPrefix = "pending/"
)

const defaultNetworkTimeout = 30 * time.Second

// SyncManagerConfig configures a [SyncManager].
type SyncManagerConfig struct {
	DeviceID      domain.DeviceID
	LocalCacheDir string
	SyncInterval  time.Duration

	// NetworkTimeout bounds each upload/download call; zero means 30s.
	NetworkTimeout time.Duration

	// Logger receives operational messages; nil discards them.
	Logger *log.Logger
}

// SyncManager keeps a device eventually consistent with the cloud while
// tolerating arbitrary connectivity gaps. Local changes queue in memory
// and in the local store until a confirmed upload; remote updates arrive
// through a per-device manifest and are dispatched to per-data-type
// handlers.
type SyncManager struct {
	deviceID domain.DeviceID
	store    domain.LocalStore
	objects  domain.ObjectStore
	devices  domain.DeviceRegistry
	cacheDir string
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	cron *cron.Cron

	// changesMu guards the in-memory pending map together with its
	// durable mirror so the two cannot diverge under concurrent
	// RecordChange calls.
	changesMu sync.Mutex
	pending   map[string][]byte

	onlineMu sync.Mutex
	online   bool

	// syncMu implements the single-flight guard: a Sync call that finds
	// one already running is a silent no-op.
	syncMu         sync.Mutex
	syncInProgress bool

	stateMu      sync.Mutex
	lastSyncTime time.Time

	handlersMu sync.RWMutex
	handlers   map[string]domain.SyncHandler
}

// NewSyncManager creates a sync manager. The local store and registries
// are injected so both managers share one set of clients. Pending
// changes left over from a previous process are reloaded from the local
// store. devices may be nil to disable heartbeats.
func NewSyncManager(store domain.LocalStore, objects domain.ObjectStore, devices domain.DeviceRegistry, cfg SyncManagerConfig) (*SyncManager, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("%w: device ID is required", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(cfg.LocalCacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create local cache directory: %w", err)
	}

	timeout := cfg.NetworkTimeout
	if timeout == 0 {
		timeout = defaultNetworkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	sm := &SyncManager{
		deviceID: cfg.DeviceID,
		store:    store,
		objects:  objects,
		devices:  devices,
		cacheDir: cfg.LocalCacheDir,
		interval: cfg.SyncInterval,
		timeout:  timeout,
		logger:   logger,
		pending:  make(map[string][]byte),
		handlers: make(map[string]domain.SyncHandler),
		cron:     cron.New(),
	}
	if err := sm.reloadPending(); err != nil {
		return nil, err
	}
	return sm, nil
}

// reloadPending restores the pending set after a restart: every marker
// under pending/ points at a durable value under data/.
func (sm *SyncManager) reloadPending() error {
	markers, err := sm.store.Keys(pendingKeyPrefix)
	if err != nil {
		return fmt.Errorf("scan pending changes: %w", err)
	}
	for _, marker := range markers {
		key := marker[len(pendingKeyPrefix):]
		data, err := sm.store.Get(dataKeyPrefix + key)
		if err != nil {
			sm.logger.Printf("pending marker %q has no durable value: %v", key, err)
			continue
		}
		sm.pending[key] = data
	}
	return nil
}

// RegisterSyncHandler registers the handler for one data type.
func (sm *SyncManager) RegisterSyncHandler(dataType string, handler domain.SyncHandler) {
	sm.handlersMu.Lock()
	defer sm.handlersMu.Unlock()
	sm.handlers[dataType] = handler
}

// Start begins periodic synchronization.
func (sm *SyncManager) Start() error {
	_, err := sm.cron.AddFunc(fmt.Sprintf("@every %s", sm.interval), func() {
		if err := sm.Sync(); err != nil {
			sm.logger.Printf("scheduled sync failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	sm.cron.Start()
	return nil
}

// Close stops the periodic schedule. The local store is owned by the
// caller and is not closed here.
func (sm *SyncManager) Close() {
	sm.cron.Stop()
}

// RecordChange queues a local write for upload. The change is stored in
// memory and durably mirrored so a crash cannot lose it; if the device
// is online an immediate background sync is scheduled. Queuing while
// offline is always valid and never an error.
func (sm *SyncManager) RecordChange(key string, data []byte) error {
	sm.changesMu.Lock()
	sm.pending[key] = data
	if err := sm.store.Put(dataKeyPrefix+key, data); err != nil {
		sm.changesMu.Unlock()
		return fmt.Errorf("store change %q: %w", key, err)
	}
	if err := sm.store.Put(pendingKeyPrefix+key, []byte{}); err != nil {
		sm.changesMu.Unlock()
		return fmt.Errorf("mark change %q pending: %w", key, err)
	}
	sm.changesMu.Unlock()

	if sm.IsOnline() {
		go func() {
			if err := sm.Sync(); err != nil {
				sm.logger.Printf("sync after change failed: %v", err)
			}
		}()
	}
	return nil
}

// GetLocal returns the most recent known value for key, checking pending
// changes first, then the local store, then the file cache.
func (sm *SyncManager) GetLocal(key string) ([]byte, error) {
	sm.changesMu.Lock()
	if data, ok := sm.pending[key]; ok {
		sm.changesMu.Unlock()
		return data, nil
	}
	sm.changesMu.Unlock()

	data, err := sm.store.Get(dataKeyPrefix + key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	path := filepath.Join(sm.cacheDir, filepath.FromSlash(key))
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	return nil, fmt.Errorf("key %q: %w", key, domain.ErrNotFound)
}

// SetOnlineStatus transitions the connectivity flag. Coming back online
// fires an immediate background sync; periodic ticks are the fallback.
func (sm *SyncManager) SetOnlineStatus(online bool) {
	sm.onlineMu.Lock()
	wasOnline := sm.online
	sm.online = online
	sm.onlineMu.Unlock()

	if !wasOnline && online {
		go func() {
			if err := sm.Sync(); err != nil {
				sm.logger.Printf("sync on reconnection failed: %v", err)
			}
		}()
	}
}

// IsOnline returns the current connectivity flag.
func (sm *SyncManager) IsOnline() bool {
	sm.onlineMu.Lock()
	defer sm.onlineMu.Unlock()
	return sm.online
}

// Sync performs one full synchronization pass: upload pending changes,
// then fetch the manifest and download anything newer than the last
// successful sync. A call while a sync is in flight is a silent no-op.
// Syncing while offline is also a no-op.
func (sm *SyncManager) Sync() error {
	sm.syncMu.Lock()
	if sm.syncInProgress {
		sm.syncMu.Unlock()
		return nil
	}
	sm.syncInProgress = true
	sm.syncMu.Unlock()

	defer func() {
		sm.syncMu.Lock()
		sm.syncInProgress = false
		sm.syncMu.Unlock()
	}()

	if !sm.IsOnline() {
		return nil
	}

	if err := sm.uploadPendingChanges(); err != nil {
		return fmt.Errorf("upload pending changes: %w", err)
	}
	if err := sm.downloadUpdates(); err != nil {
		return fmt.Errorf("download updates: %w", err)
	}

	now := time.Now().UTC()
	if sm.devices != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		if err := sm.devices.Heartbeat(ctx, sm.deviceID, now); err != nil {
			sm.logger.Printf("heartbeat failed: %v", err)
		}
		cancel()
	}

	sm.stateMu.Lock()
	sm.lastSyncTime = now
	sm.stateMu.Unlock()
	return nil
}

// ForceSyncNow performs an immediate synchronization pass.
func (sm *SyncManager) ForceSyncNow() error {
	return sm.Sync()
}

// GetSyncStatus returns an observability snapshot.
func (sm *SyncManager) GetSyncStatus() domain.SyncStatus {
	sm.changesMu.Lock()
	pendingCount := len(sm.pending)
	sm.changesMu.Unlock()

	sm.syncMu.Lock()
	inProgress := sm.syncInProgress
	sm.syncMu.Unlock()

	sm.stateMu.Lock()
	lastSync := sm.lastSyncTime
	sm.stateMu.Unlock()

	return domain.SyncStatus{
		DeviceID:       sm.deviceID,
		LastSyncTime:   lastSync,
		Online:         sm.IsOnline(),
		InProgress:     inProgress,
		PendingChanges: pendingCount,
	}
}

// uploadPendingChanges sends every queued change plus each handler's
// outstanding local writes. A change leaves the pending set only after
// its upload is confirmed.
func (sm *SyncManager) uploadPendingChanges() error {
	changes := make(map[string][]byte)

	sm.changesMu.Lock()
	for k, v := range sm.pending {
		changes[k] = v
	}
	sm.changesMu.Unlock()

	sm.handlersMu.RLock()
	for dataType, handler := range sm.handlers {
		local, err := handler.GetLocalChanges()
		if err != nil {
			sm.logger.Printf("handler %s: local changes unavailable: %v", dataType, err)
			continue
		}
		for k, v := range local {
			changes[dataType+"/"+k] = v
		}
	}
	sm.handlersMu.RUnlock()

	for key, data := range changes {
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		err := sm.objects.Put(ctx, domain.DeviceDataKey(sm.deviceID, key), data, map[string]string{
			"device-id":   string(sm.deviceID),
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		})
		cancel()
		if err != nil {
			return fmt.Errorf("upload %q: %w", key, err)
		}

		sm.changesMu.Lock()
		if _, ok := sm.pending[key]; ok {
			delete(sm.pending, key)
			if err := sm.store.Delete(pendingKeyPrefix + key); err != nil {
				sm.logger.Printf("clear pending marker %q: %v", key, err)
			}
		}
		sm.changesMu.Unlock()
	}
	return nil
}

// downloadUpdates fetches the device manifest and processes every entry
// newer than the last successful sync. Entries are best-effort: a
// failure on one does not abort the others.
func (sm *SyncManager) downloadUpdates() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	manifestData, err := sm.objects.Get(ctx, domain.DeviceManifestKey(sm.deviceID))
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		// A device with no manifest simply has nothing to download.
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	var manifest domain.UpdateManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	sm.stateMu.Lock()
	lastSync := sm.lastSyncTime
	sm.stateMu.Unlock()

	for _, entry := range manifest.Updates {
		if !entry.Timestamp.After(lastSync) {
			continue
		}
		if err := sm.applyRemoteUpdate(entry); err != nil {
			sm.logger.Printf("update %q: %v", entry.Key, err)
		}
	}
	return nil
}

func (sm *SyncManager) applyRemoteUpdate(entry domain.ManifestEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	data, err := sm.objects.Get(ctx, domain.DeviceUpdateKey(sm.deviceID, entry.Key))
	cancel()
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	sm.handlersMu.RLock()
	handler := sm.handlers[entry.DataType]
	sm.handlersMu.RUnlock()

	// Both sides changed the same key: let the data type's handler pick
	// the winner. Keys without a handler stay last-writer-wins.
	sm.changesMu.Lock()
	local, conflicting := sm.pending[entry.Key]
	sm.changesMu.Unlock()
	if conflicting && handler != nil {
		merged, err := handler.MergeConflicts(local, data)
		if err != nil {
			return fmt.Errorf("merge conflict: %w", err)
		}
		data = merged
		// The merged payload replaces the queued local write so the
		// next upload publishes the resolution.
		if err := sm.RecordChange(entry.Key, merged); err != nil {
			return err
		}
	}

	path := filepath.Join(sm.cacheDir, filepath.FromSlash(entry.Key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	if handler != nil {
		if err := handler.ProcessUpdate(entry.Key, data); err != nil {
			return fmt.Errorf("process: %w", err)
		}
	}
	return nil
}
