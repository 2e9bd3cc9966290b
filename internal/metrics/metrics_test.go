package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fsphil/tsmerge/internal/merger"
)

func TestNew_registersExpectedSeries(t *testing.T) {
	m := New()
	m.SegmentsPublished.WithLabelValues("KABC").Inc()
	m.PacketsDropped.WithLabelValues("late").Inc()
	m.StationsLive.Set(2)
	m.ViewersConnected.Set(3)
	m.OutputPCR.Set(123456)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"tsmerge_segments_published_total",
		"tsmerge_packets_dropped_total",
		"tsmerge_stations_live 2",
		"tsmerge_viewers_connected 3",
		"tsmerge_output_pcr 123456",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n--- body ---\n%s", want, body)
		}
	}
}

func TestRecordDrop_ignoresDropNone(t *testing.T) {
	m := New()
	m.RecordDrop(merger.DropNone)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), `reason="none"`) {
		t.Error("DropNone should not produce a \"none\" reason series")
	}
}

func TestRecordDrop_incrementsReasonSeries(t *testing.T) {
	m := New()
	m.RecordDrop(merger.DropLate)
	m.RecordDrop(merger.DropLate)
	m.RecordDrop(merger.DropDuplicate)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `reason="late"} 2`) {
		t.Errorf("expected late=2 in body:\n%s", body)
	}
	if !strings.Contains(body, `reason="duplicate"} 1`) {
		t.Errorf("expected duplicate=1 in body:\n%s", body)
	}
}

func TestSyncMalformedTS(t *testing.T) {
	m := New()
	mg := merger.New(256)

	// Two malformed envelopes (valid frame, bad TS sync byte) for the same
	// station; both still get stored (DropNone), but parseOK is false.
	envelope := func(counter uint32) []byte {
		env := make([]byte, merger.EnvelopeSize)
		env[0], env[1] = 0xA1, 0x55
		env[2] = byte(counter)
		copy(env[6:16], "KABC")
		env[16] = 0x00 // not 0x47: fails tspacket.Parse
		return env
	}
	mg.Feed(1000, envelope(0))
	mg.Feed(1000, envelope(1))

	m.SyncMalformedTS(mg)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `reason="malformed_ts"} 2`) {
		t.Errorf("expected malformed_ts=2 in body:\n%s", rec.Body.String())
	}

	// A second sync with no new malformed packets should not double-count.
	m.SyncMalformedTS(mg)
	rec2 := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec2, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec2.Body.String(), `reason="malformed_ts"} 2`) {
		t.Errorf("expected malformed_ts to remain 2 in body:\n%s", rec2.Body.String())
	}
}
