//go:build integration

package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/afroash/hydro-monitor/internal/report"
	"github.com/afroash/hydro-monitor/internal/server"
	"github.com/afroash/hydro-monitor/internal/simulation"
	"github.com/afroash/hydro-monitor/internal/storage"
)

// TestDashboardAgainstBackend drives the CLI against an in-process backend.
// Run with: go test -tags=integration -v ./cmd/dashboard/
func TestDashboardAgainstBackend(t *testing.T) {
	logger := zerolog.Nop()
	api := server.NewAPIHandler(server.APIConfig{
		Store:      storage.NewMemoryStore(1000),
		Simulation: simulation.NewSimulator(simulation.NewRandomSource(1, 0.8), simulation.NewRandomSource(2, 0.8), logger),
		DeviceKey:  "integration-key",
	}, logger)
	srv := httptest.NewServer(api.Handler(nil))
	defer srv.Close()

	t.Setenv("HYDRO_BACKEND_URL", srv.URL)
	t.Setenv("HYDRO_DEVICE_API_KEY", "integration-key")
	t.Setenv("LOG_LEVEL", "error")

	execute := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("dashboard %s: %v", strings.Join(args, " "), err)
		}
		return out.String()
	}

	execute("sensors", "add", "ph-01", "pH")
	execute("sensors", "add", "temp-01", "temperatura")
	execute("actuators", "add", "bomba-01", "bomba")

	if out := execute("simulate"); !strings.Contains(out, "ph-01") {
		t.Errorf("simulate output missing sensor:\n%s", out)
	}

	out := execute("sensors")
	if strings.Index(out, "temp-01") > strings.Index(out, "ph-01") {
		t.Errorf("sensors should list the newest first:\n%s", out)
	}

	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "leituras.xml")
	execute("export", "--inicio", "2000-01-01T00:00", "--fim", "2100-01-01T00:00", "-o", xmlPath)
	data, err := os.ReadFile(xmlPath)
	if err != nil {
		t.Fatalf("Failed to read xml: %v", err)
	}
	if !bytes.Contains(data, []byte("<sistemaHidroponico")) {
		t.Errorf("unexpected xml export:\n%s", data)
	}

	xlsxPath := filepath.Join(dir, "leituras.xlsx")
	execute("export", "--inicio", "2000-01-01T00:00", "--fim", "2100-01-01T00:00", "--xlsx", "-o", xlsxPath)

	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(report.SheetName)
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("workbook rows = %d, want 3 (header + 2 readings)", len(rows))
	}
}
