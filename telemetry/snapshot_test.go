package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/ecmigrate/config"
)

func testRecords() []PositionRecord {
	return []PositionRecord{
		{Day: 1, Step: 14400, ID: 0, Definition: "default", X: -390, Y: 118.5, Z: -65, VY: 0.12, Speed: 3.1, Viscosity: 18.42, Displacement: 110.5},
		{Day: 1, Step: 14400, ID: 1, Definition: "default", X: -350, Y: 8, Z: -65, Speed: 0.4, Viscosity: 18.42},
	}
}

func TestSnapshotName(t *testing.T) {
	if got := SnapshotName(1, false); got != "positions_day001.csv" {
		t.Errorf("SnapshotName(1, false) = %q", got)
	}
	if got := SnapshotName(12, true); got != "positions_day012.csv.zst" {
		t.Errorf("SnapshotName(12, true) = %q", got)
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	for _, compress := range []bool{false, true} {
		dir := t.TempDir()
		want := testRecords()

		path, err := SavePositions(dir, 1, want, compress)
		if err != nil {
			t.Fatalf("SavePositions(compress=%v): %v", compress, err)
		}
		if strings.HasSuffix(path, ".zst") != compress {
			t.Errorf("path %q does not match compress=%v", path, compress)
		}

		got, err := LoadPositions(path)
		if err != nil {
			t.Fatalf("LoadPositions: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("loaded %d records, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
			}
		}
	}
}

func TestDistances(t *testing.T) {
	records := testRecords()
	byY := Distances(records, config.QuantityPositionY)
	byDisp := Distances(records, config.QuantityDisplacement)
	for i, r := range records {
		if byY[i] != r.Y {
			t.Errorf("record %d position_y = %v, want %v", i, byY[i], r.Y)
		}
		if byDisp[i] != r.Displacement {
			t.Errorf("record %d displacement = %v, want %v", i, byDisp[i], r.Displacement)
		}
	}
	if byY[0] == byDisp[0] {
		t.Error("position_y and displacement should differ for a moved agent")
	}
}

func TestCompressedSnapshotIsNotPlainCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := SavePositions(dir, 2, testRecords(), true)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(string(data), "day,") {
		t.Error("compressed snapshot starts with a CSV header")
	}
}

func TestListSnapshots(t *testing.T) {
	dir := t.TempDir()
	for _, day := range []int{1, 2, 4} {
		if _, err := SavePositions(dir, day, testRecords(), day == 4); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "telemetry.csv"), []byte("x\n"), 0644)

	days, err := ListSnapshots(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 3 {
		t.Fatalf("found %d snapshots, want 3: %v", len(days), days)
	}
	if filepath.Base(days[4]) != "positions_day004.csv.zst" {
		t.Errorf("day 4 = %q", days[4])
	}
	if _, ok := days[3]; ok {
		t.Error("day 3 should be missing")
	}
}

func TestOutputManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := om.WriteTelemetry(WindowStats{WindowEndStep: i * 600, Cells: 80}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePerf(PerfStats{}, 600); err != nil {
		t.Fatal(err)
	}
	if _, err := om.WritePositions(1, testRecords()); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("telemetry.csv has %d lines, want header + 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "window_end,sim_time,cells,") {
		t.Errorf("header = %q", lines[0])
	}

	for _, name := range []string{"config.yaml", "perf.csv", "positions_day001.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestNilOutputManager(t *testing.T) {
	om, err := NewOutputManager("", false)
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if path, err := om.WritePositions(1, nil); path != "" || err != nil {
		t.Error("nil manager should not write positions")
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}
