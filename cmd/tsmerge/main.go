// Command tsmerge merges redundant UDP MPEG transport stream feeds from
// multiple stations into one PCR-ordered output, served to TCP viewers.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsphil/tsmerge/internal/config"
	"github.com/fsphil/tsmerge/internal/fanout"
	"github.com/fsphil/tsmerge/internal/health"
	"github.com/fsphil/tsmerge/internal/ingest"
	"github.com/fsphil/tsmerge/internal/merger"
	"github.com/fsphil/tsmerge/internal/metrics"
	"github.com/fsphil/tsmerge/internal/sdtprobe"
)

func main() {
	config.LoadEnvFile(".env")
	cfg := config.Load()

	known, err := cfg.KnownCallsigns()
	if err != nil {
		log.Printf("stations file: %v", err)
	}

	mg := merger.New(cfg.PCRPID)
	mg.TimeoutMS = cfg.StationTimeout.Milliseconds()
	mg.GuardMS = cfg.GuardWindow.Milliseconds()

	met := metrics.New()

	in, err := ingest.New(cfg.UDPAddr, &feedWithMetrics{mg: mg, met: met, known: known})
	if err != nil {
		log.Fatalf("ingest listen %s: %v", cfg.UDPAddr, err)
	}
	defer in.Close()
	log.Printf("tsmerge: UDP ingest on %s", in.LocalAddr())

	out, err := fanout.New(cfg.TCPAddr, cfg.MaxViewers, cfg.ViewerTimeout)
	if err != nil {
		log.Fatalf("fanout listen %s: %v", cfg.TCPAddr, err)
	}
	defer out.Close()
	go func() {
		if err := out.Serve(); err != nil {
			log.Printf("fanout: serve: %v", err)
		}
	}()
	log.Printf("tsmerge: TCP viewers on %s", out.LocalAddr())

	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	mux.Handle("/healthz", health.HealthzHandler())
	mux.Handle("/readyz", health.ReadyzHandler(func() bool {
		return len(mg.LiveStations()) > 0
	}))
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Fatalf("metrics http: %v", err)
		}
	}()
	log.Printf("tsmerge: metrics/health on %s", cfg.MetricsAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	var lastMalformedDG uint64
	for {
		select {
		case <-sig:
			log.Printf("tsmerge: shutting down")
			return
		case now := <-ticker.C:
			nowMS := now.UnixMilli()
			in.Poll()
			mg.UpdateAll(nowMS, func(station int, pcrBase uint64) {
				met.SegmentsPublished.WithLabelValues(mg.Callsign(station)).Inc()
				met.OutputPCR.Set(float64(pcrBase))
			})
			out.Tick(nowMS, mg)

			met.StationsLive.Set(float64(len(mg.LiveStations())))
			met.ViewersConnected.Set(float64(out.ViewerCount()))
			met.SyncMalformedTS(mg)

			if dg := in.Stats().MalformedDG; dg > lastMalformedDG {
				for i := uint64(0); i < dg-lastMalformedDG; i++ {
					met.RecordDrop(merger.DropMalformedFrame)
				}
				lastMalformedDG = dg
			}
		}
	}
}

// feedWithMetrics adapts *merger.Merger to ingest.Feeder while recording
// per-reason drop counts and warning once about stations not present in
// the optional stations file (spec.md §4.7 — informational only).
type feedWithMetrics struct {
	mg     *merger.Merger
	met    *metrics.Metrics
	known  map[string]bool
	warned map[string]bool
	probes map[string]*sdtprobe.Accumulator
}

func (f *feedWithMetrics) Feed(timestampMS int64, envelope []byte) merger.DropReason {
	reason := f.mg.Feed(timestampMS, envelope)
	f.met.RecordDrop(reason)
	if len(envelope) != merger.EnvelopeSize {
		return reason
	}
	sid := trimCallsign(envelope[6:16])

	if f.known != nil && !f.known[sid] {
		if f.warned == nil {
			f.warned = make(map[string]bool)
		}
		if !f.warned[sid] {
			f.warned[sid] = true
			log.Printf("tsmerge: station %q not declared in stations file", sid)
		}
	}

	if reason == merger.DropNone {
		if f.probes == nil {
			f.probes = make(map[string]*sdtprobe.Accumulator)
		}
		probe, ok := f.probes[sid]
		if !ok {
			probe = &sdtprobe.Accumulator{}
			f.probes[sid] = probe
		}
		wasFound := probe.Info().Found
		probe.Feed(envelope[16:])
		if !wasFound && probe.Info().Found {
			info := probe.Info()
			log.Printf("tsmerge: station %q identified as %q (%q) onid=0x%04x tsid=0x%04x sid=0x%04x",
				sid, info.ServiceName, info.ProviderName, info.OriginalNetworkID, info.TransportStreamID, info.ServiceID)
		}
	}
	return reason
}

func trimCallsign(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
