package memory_test

import (
	"testing"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain/deviceregistrytest"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain/objectstoretest"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain/rolloutregistrytest"
	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/infrastructure/memory"
)

func TestDeviceRegistry(t *testing.T) {
	deviceregistrytest.Run(t, func(t *testing.T) (domain.DeviceRegistry, deviceregistrytest.Seeder) {
		reg := memory.NewDeviceRegistry()
		return reg, func(t *testing.T, record domain.DeviceRecord) {
			reg.Enroll(record)
		}
	})
}

func TestRolloutRegistry(t *testing.T) {
	rolloutregistrytest.Run(t, func(t *testing.T) (domain.RolloutRegistry, rolloutregistrytest.Seeder) {
		reg := memory.NewRolloutRegistry()
		return reg, func(t *testing.T, plan domain.RolloutPlan) {
			reg.Put(plan)
		}
	})
}

func TestObjectStore(t *testing.T) {
	objectstoretest.Run(t, func(t *testing.T) domain.ObjectStore {
		return memory.NewObjectStore()
	})
}
