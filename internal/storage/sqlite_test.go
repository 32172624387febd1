package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// setupTestDB creates a temporary database for testing
func setupTestDB(t testing.TB) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "hydro-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"), zerolog.Nop())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

// eachStore runs fn against every Store implementation
func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("sqlite", func(t *testing.T) {
		store, cleanup := setupTestDB(t)
		defer cleanup()
		fn(t, store)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore(0))
	})
}

func createTestReading(sensorID string, valor float64, at time.Time) *models.Reading {
	return models.NewReading(sensorID, "", "", valor, at)
}

func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent/path/that/cannot/exist/test.db", zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("Migration %d failed: %v", i+2, err)
		}
	}
}

func TestStore_Sensors(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		sensors := []*models.Sensor{
			{ID: "s-ph-01", Tipo: "pH", Modelo: "PH-4502C", Localizacao: "bancada 1"},
			{ID: "s-ec-01", Tipo: "EC", Unidade: "mS/cm"},
		}
		for _, s := range sensors {
			if err := store.AddSensor(s); err != nil {
				t.Fatalf("AddSensor(%s) failed: %v", s.ID, err)
			}
		}

		got, err := store.ListSensors()
		if err != nil {
			t.Fatalf("ListSensors failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListSensors returned %d sensors, want 2", len(got))
		}
		if got[0].ID != "s-ph-01" || got[1].ID != "s-ec-01" {
			t.Errorf("order = [%s %s], want insertion order", got[0].ID, got[1].ID)
		}
		if got[0].Localizacao != "bancada 1" {
			t.Errorf("Localizacao = %q, want %q", got[0].Localizacao, "bancada 1")
		}

		err = store.AddSensor(&models.Sensor{ID: "s-ph-01", Tipo: "pH"})
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("duplicate AddSensor error = %v, want ErrDuplicate", err)
		}

		if err := store.ClearSensors(); err != nil {
			t.Fatalf("ClearSensors failed: %v", err)
		}
		got, _ = store.ListSensors()
		if len(got) != 0 {
			t.Errorf("ListSensors after clear returned %d sensors, want 0", len(got))
		}
	})
}

func TestStore_ActuatorsAndCommands(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		for _, id := range []string{"a-bomba-01", "a-luz-01"} {
			if err := store.AddActuator(&models.Actuator{ID: id, Tipo: "bomba"}); err != nil {
				t.Fatalf("AddActuator(%s) failed: %v", id, err)
			}
		}
		if err := store.AddActuator(&models.Actuator{ID: "a-luz-01", Tipo: "luz"}); !errors.Is(err, ErrDuplicate) {
			t.Errorf("duplicate AddActuator error = %v, want ErrDuplicate", err)
		}

		cmds := []*models.Command{
			{AtuadorID: "a-bomba-01", Acao: models.ActionOn, DataHora: "2025-10-24T09:50:00Z"},
			{AtuadorID: "a-bomba-01", Acao: models.ActionOff, DataHora: "2025-10-24T10:05:00Z"},
			{AtuadorID: "a-luz-01", Acao: models.ActionOn, DataHora: "2025-10-24T10:00:00Z"},
		}
		for _, c := range cmds {
			if err := store.AddCommand(c); err != nil {
				t.Fatalf("AddCommand failed: %v", err)
			}
		}

		err := store.AddCommand(&models.Command{AtuadorID: "ghost", Acao: "ligar", DataHora: "2025-10-24T10:00:00Z"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("AddCommand on unknown actuator error = %v, want ErrNotFound", err)
		}

		actuators, err := store.ListActuators()
		if err != nil {
			t.Fatalf("ListActuators failed: %v", err)
		}
		if len(actuators) != 2 {
			t.Fatalf("ListActuators returned %d, want 2", len(actuators))
		}
		pump := actuators[0]
		if pump.ID != "a-bomba-01" || len(pump.Comandos) != 2 {
			t.Fatalf("pump = %s with %d commands, want a-bomba-01 with 2", pump.ID, len(pump.Comandos))
		}
		if pump.UltimoComando == nil || pump.UltimoComando.Acao != models.ActionOff {
			t.Errorf("UltimoComando = %+v, want desligar", pump.UltimoComando)
		}
		if pump.Comandos[0].Tipo != "bomba" {
			t.Errorf("command Tipo = %q, want actuator type", pump.Comandos[0].Tipo)
		}

		flat, err := store.ListCommands()
		if err != nil {
			t.Fatalf("ListCommands failed: %v", err)
		}
		if len(flat) != 3 {
			t.Errorf("ListCommands returned %d, want 3", len(flat))
		}

		if err := store.ClearCommands(); err != nil {
			t.Fatalf("ClearCommands failed: %v", err)
		}
		actuators, _ = store.ListActuators()
		if len(actuators) != 2 || len(actuators[0].Comandos) != 0 {
			t.Errorf("after ClearCommands: %d actuators, %d commands; want 2, 0", len(actuators), len(actuators[0].Comandos))
		}

		store.AddCommand(cmds[0])
		if err := store.ClearActuators(); err != nil {
			t.Fatalf("ClearActuators failed: %v", err)
		}
		actuators, _ = store.ListActuators()
		flat, _ = store.ListCommands()
		if len(actuators) != 0 || len(flat) != 0 {
			t.Errorf("after ClearActuators: %d actuators, %d commands; want 0, 0", len(actuators), len(flat))
		}
	})
}

func TestStore_Readings(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		base := time.Date(2025, 10, 24, 10, 0, 0, 0, time.UTC)

		if err := store.InsertReading(createTestReading("s1", 6.2, base)); err != nil {
			t.Fatalf("InsertReading failed: %v", err)
		}
		batch := []*models.Reading{
			createTestReading("s1", 6.4, base.Add(time.Minute)),
			createTestReading("s2", 1.8, base.Add(2*time.Minute)),
			createTestReading("s2", 1.9, base.Add(3*time.Minute)),
		}
		if err := store.InsertBatch(batch); err != nil {
			t.Fatalf("InsertBatch failed: %v", err)
		}

		all, err := store.ListReadings(time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("ListReadings failed: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("ListReadings returned %d, want 4", len(all))
		}
		if all[0].DataHora != "2025-10-24T10:00:00Z" {
			t.Errorf("DataHora = %q, want %q", all[0].DataHora, "2025-10-24T10:00:00Z")
		}

		// both bounds inclusive
		ranged, err := store.ListReadings(base.Add(time.Minute), base.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("ListReadings in range failed: %v", err)
		}
		if len(ranged) != 2 {
			t.Errorf("ListReadings in range returned %d, want 2", len(ranged))
		}

		openEnd, _ := store.ListReadings(base.Add(2*time.Minute), time.Time{})
		if len(openEnd) != 2 {
			t.Errorf("ListReadings open end returned %d, want 2", len(openEnd))
		}

		stats, err := store.GetStorageStats()
		if err != nil {
			t.Fatalf("GetStorageStats failed: %v", err)
		}
		if stats.TotalReadings != 4 || stats.UniqueSensors != 2 {
			t.Errorf("stats = %d readings / %d sensors, want 4 / 2", stats.TotalReadings, stats.UniqueSensors)
		}
		if !stats.OldestReading.Equal(base) {
			t.Errorf("OldestReading = %v, want %v", stats.OldestReading, base)
		}

		if err := store.ClearReadings(); err != nil {
			t.Fatalf("ClearReadings failed: %v", err)
		}
		all, _ = store.ListReadings(time.Time{}, time.Time{})
		if len(all) != 0 {
			t.Errorf("ListReadings after clear returned %d, want 0", len(all))
		}
	})
}

func TestStore_InsertBatch_Empty(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		if err := store.InsertBatch(nil); err != nil {
			t.Errorf("InsertBatch(nil) = %v, want nil", err)
		}
		if err := store.InsertBatch([]*models.Reading{}); err != nil {
			t.Errorf("InsertBatch(empty) = %v, want nil", err)
		}
	})
}

func TestStore_InsertReading_BadTimestamp(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		err := store.InsertReading(&models.Reading{SensorID: "s1", Valor: 1, DataHora: "yesterday"})
		if err == nil {
			t.Error("Expected error for unparsable dataHora")
		}
	})
}

func TestStore_DeleteOlderThan(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		now := time.Now().UTC()
		for i := 0; i < 5; i++ {
			store.InsertReading(createTestReading("s1", 1, now.AddDate(0, 0, -40).Add(time.Duration(i)*time.Hour)))
			store.InsertReading(createTestReading("s1", 2, now.Add(-time.Duration(i)*time.Hour)))
		}

		deleted, err := store.DeleteOlderThan(30)
		if err != nil {
			t.Fatalf("DeleteOlderThan failed: %v", err)
		}
		if deleted != 5 {
			t.Errorf("deleted = %d, want 5", deleted)
		}

		rest, _ := store.ListReadings(time.Time{}, time.Time{})
		if len(rest) != 5 {
			t.Errorf("remaining = %d, want 5", len(rest))
		}
	})
}

func TestMemoryStore_ReadingCapacity(t *testing.T) {
	store := NewMemoryStore(3)
	base := time.Date(2025, 10, 24, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.InsertReading(createTestReading("s1", float64(i), base.Add(time.Duration(i)*time.Minute)))
	}

	got, _ := store.ListReadings(time.Time{}, time.Time{})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Valor != 2 {
		t.Errorf("oldest kept valor = %v, want 2", got[0].Valor)
	}
}

func TestSQLiteStore_ConcurrentInserts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := store.InsertReading(createTestReading("s1", float64(g*100+i), time.Now())); err != nil {
					t.Errorf("concurrent insert failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	stats, _ := store.GetStorageStats()
	if stats.TotalReadings != 100 {
		t.Errorf("TotalReadings = %d, want 100", stats.TotalReadings)
	}
}

func BenchmarkInsertBatch(b *testing.B) {
	store, cleanup := setupTestDB(b)
	defer cleanup()

	batch := make([]*models.Reading, 100)
	for i := range batch {
		batch[i] = createTestReading("s1", float64(i), time.Now())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.InsertBatch(batch)
	}
}
