package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/ecmigrate/analysis"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// writeTestConfig writes a short-horizon config whose experimental
// histograms live in a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	flat := make([]float64, 29)
	for i := range flat {
		flat[i] = 1.0 / 29
	}
	for day := 1; day <= 4; day++ {
		f, err := os.Create(analysis.ReferencePath(dir, "ref", day))
		if err != nil {
			t.Fatal(err)
		}
		if err := analysis.WriteHistogram(f, flat); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	yaml := fmt.Sprintf(`time:
  dt: 1
  max_time: 40
  output_interval: 10
telemetry:
  stats_window: 10
analysis:
  experimental_dir: %s
  experimental_stem: ref
`, dir)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("output %q missing version", out)
	}
}

func TestSeedPrintsLattice(t *testing.T) {
	out, err := execute(t, "seed")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "x,y,z" {
		t.Errorf("header = %q, want x,y,z", lines[0])
	}
	if len(lines) < 2 {
		t.Error("no lattice rows")
	}
}

func TestRunScoreAndAnalyze(t *testing.T) {
	cfgPath := writeTestConfig(t)
	outDir := filepath.Join(t.TempDir(), "run")

	out, err := execute(t, "run", "--config", cfgPath, "--output-dir", outDir, "--seed", "3", "--score")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "day,cells,bc") {
		t.Errorf("run output %q", out)
	}
	for _, name := range []string{"config.yaml", "telemetry.csv", "bc.csv", "positions_day004.csv"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	// scoring the saved snapshots reproduces the in-memory score
	analyzed, err := execute(t, "analyze", "--config", cfgPath, outDir)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analyzed != out {
		t.Errorf("analyze output\n%s\nwant\n%s", analyzed, out)
	}
}

func TestAnalyzeEmptyDir(t *testing.T) {
	if _, err := execute(t, "analyze", t.TempDir()); err == nil {
		t.Error("expected error for dir without snapshots")
	}
}
