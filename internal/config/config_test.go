package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.UDPAddr != ":5678" {
		t.Errorf("UDPAddr default: got %q", c.UDPAddr)
	}
	if c.TCPAddr != ":5679" {
		t.Errorf("TCPAddr default: got %q", c.TCPAddr)
	}
	if c.MetricsAddr != ":9600" {
		t.Errorf("MetricsAddr default: got %q", c.MetricsAddr)
	}
	if c.PCRPID != 256 {
		t.Errorf("PCRPID default: got %d", c.PCRPID)
	}
	if c.StationTimeout != 10*time.Second {
		t.Errorf("StationTimeout default: got %v", c.StationTimeout)
	}
	if c.GuardWindow != time.Second {
		t.Errorf("GuardWindow default: got %v", c.GuardWindow)
	}
	if c.ViewerTimeout != 60*time.Second {
		t.Errorf("ViewerTimeout default: got %v", c.ViewerTimeout)
	}
	if c.MaxViewers != 10 {
		t.Errorf("MaxViewers default: got %d", c.MaxViewers)
	}
	if c.StationsFile != "" {
		t.Errorf("StationsFile default: got %q", c.StationsFile)
	}
	if c.Tick != 10*time.Millisecond {
		t.Errorf("Tick default: got %v", c.Tick)
	}
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("TSMERGE_UDP_ADDR", "0.0.0.0:7000")
	os.Setenv("TSMERGE_TCP_ADDR", "0.0.0.0:7001")
	os.Setenv("TSMERGE_METRICS_ADDR", "0.0.0.0:7002")
	os.Setenv("TSMERGE_PCR_PID", "100")
	os.Setenv("TSMERGE_STATION_TIMEOUT", "5s")
	os.Setenv("TSMERGE_GUARD_WINDOW", "250ms")
	os.Setenv("TSMERGE_VIEWER_TIMEOUT", "30s")
	os.Setenv("TSMERGE_MAX_VIEWERS", "25")
	os.Setenv("TSMERGE_TICK", "20ms")
	c := Load()
	if c.UDPAddr != "0.0.0.0:7000" {
		t.Errorf("UDPAddr: got %q", c.UDPAddr)
	}
	if c.TCPAddr != "0.0.0.0:7001" {
		t.Errorf("TCPAddr: got %q", c.TCPAddr)
	}
	if c.MetricsAddr != "0.0.0.0:7002" {
		t.Errorf("MetricsAddr: got %q", c.MetricsAddr)
	}
	if c.PCRPID != 100 {
		t.Errorf("PCRPID: got %d", c.PCRPID)
	}
	if c.StationTimeout != 5*time.Second {
		t.Errorf("StationTimeout: got %v", c.StationTimeout)
	}
	if c.GuardWindow != 250*time.Millisecond {
		t.Errorf("GuardWindow: got %v", c.GuardWindow)
	}
	if c.ViewerTimeout != 30*time.Second {
		t.Errorf("ViewerTimeout: got %v", c.ViewerTimeout)
	}
	if c.MaxViewers != 25 {
		t.Errorf("MaxViewers: got %d", c.MaxViewers)
	}
	if c.Tick != 20*time.Millisecond {
		t.Errorf("Tick: got %v", c.Tick)
	}
}

func TestLoad_maxViewersNonPositiveFallsBackToDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("TSMERGE_MAX_VIEWERS", "0")
	c := Load()
	if c.MaxViewers != 10 {
		t.Errorf("MaxViewers with env 0: got %d, want fallback 10", c.MaxViewers)
	}
}

func TestKnownCallsigns_unset(t *testing.T) {
	os.Clearenv()
	c := Load()
	known, err := c.KnownCallsigns()
	if err != nil {
		t.Fatalf("KnownCallsigns() error: %v", err)
	}
	if known != nil {
		t.Errorf("KnownCallsigns() with no file: got %v, want nil", known)
	}
}

func TestKnownCallsigns_fromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.yaml")
	contents := "stations:\n  - callsign: KABC\n  - callsign: KXYZ\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	os.Clearenv()
	os.Setenv("TSMERGE_STATIONS_FILE", path)
	c := Load()
	known, err := c.KnownCallsigns()
	if err != nil {
		t.Fatalf("KnownCallsigns() error: %v", err)
	}
	if !known["KABC"] || !known["KXYZ"] {
		t.Errorf("KnownCallsigns() = %v, want KABC and KXYZ", known)
	}
	if len(known) != 2 {
		t.Errorf("KnownCallsigns() len = %d, want 2", len(known))
	}
}

func TestKnownCallsigns_missingFile(t *testing.T) {
	os.Clearenv()
	os.Setenv("TSMERGE_STATIONS_FILE", "/nonexistent/stations.yaml")
	c := Load()
	if _, err := c.KnownCallsigns(); err == nil {
		t.Error("KnownCallsigns() with missing file: want error, got nil")
	}
}
