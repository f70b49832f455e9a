// Command vango-bench drives an in-process terminal servlet with concurrent
// push clients and reports round-trip latency, throughput and GC figures.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	terrors "github.com/vango-go/terminal/internal/errors"
	"github.com/vango-go/terminal/pkg/server"
	"github.com/vango-go/terminal/pkg/session"
)

const gib = int64(1024 * 1024 * 1024)

type profile struct {
	Name          string
	Clients       int
	Duration      time.Duration
	RPS           float64
	ListSize      int
	PayloadBytes  int
	MaxProcs      int
	MemLimitBytes int64
}

var profiles = map[string]profile{
	"fast": {
		Name:         "fast",
		Clients:      50,
		Duration:     10 * time.Second,
		RPS:          2,
		ListSize:     20,
		PayloadBytes: 24,
	},
	"standard": {
		Name:         "standard",
		Clients:      200,
		Duration:     30 * time.Second,
		RPS:          5,
		ListSize:     50,
		PayloadBytes: 24,
	},
	"stress": {
		Name:          "stress",
		Clients:       500,
		Duration:      60 * time.Second,
		RPS:           10,
		ListSize:      100,
		PayloadBytes:  24,
		MaxProcs:      4,
		MemLimitBytes: 2 * gib,
	},
}

type benchConfig struct {
	Profile       string
	Clients       int
	Duration      time.Duration
	RPS           float64
	ListSize      int
	PayloadBytes  int
	MaxProcs      int
	MemLimitBytes int64
	JSONOutput    string
	EventTimeout  time.Duration
}

// benchFlags holds the raw command line; -1 and "" mean "use the profile".
type benchFlags struct {
	profile  string
	clients  int
	duration string
	rps      float64
	list     int
	payload  int
	maxProcs int
	memLimit string
	json     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		terrors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags benchFlags

	cmd := &cobra.Command{
		Use:           "vango-bench",
		Short:         "Load test the terminal push channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return terrors.New(terrors.CodeConfigInvalid).Wrap(err)
			}
			report, err := runBench(cmd.Context(), cfg)
			if err != nil {
				return terrors.FromError(err, terrors.CodeServe)
			}
			writeSummary(cmd.ErrOrStderr(), report)
			return writeJSON(cmd.OutOrStdout(), cfg.JSONOutput, report)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.profile, "profile", "standard", "profile: fast|standard|stress")
	f.IntVar(&flags.clients, "clients", -1, "number of concurrent push clients")
	f.StringVar(&flags.duration, "duration", "", "benchmark duration, e.g. 30s")
	f.Float64Var(&flags.rps, "rps", -1, "target bursts/sec per client")
	f.IntVar(&flags.list, "list", -1, "labels painted per root")
	f.IntVar(&flags.payload, "payload-bytes", -1, "bytes of token payload per burst")
	f.IntVar(&flags.maxProcs, "max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	f.StringVar(&flags.memLimit, "mem-limit", "", "GOMEMLIMIT (e.g. 2GiB)")
	f.StringVar(&flags.json, "json", "-", "JSON output path ('-' for stdout)")
	return cmd
}

func (f benchFlags) config() (benchConfig, error) {
	name := strings.ToLower(strings.TrimSpace(f.profile))
	if name == "" {
		name = "standard"
	}
	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", name)
	}

	cfg := benchConfig{
		Profile:       base.Name,
		Clients:       base.Clients,
		Duration:      base.Duration,
		RPS:           base.RPS,
		ListSize:      base.ListSize,
		PayloadBytes:  base.PayloadBytes,
		MaxProcs:      base.MaxProcs,
		MemLimitBytes: base.MemLimitBytes,
		JSONOutput:    strings.TrimSpace(f.json),
	}

	if f.clients != -1 {
		cfg.Clients = f.clients
	}
	if f.duration != "" {
		d, err := time.ParseDuration(f.duration)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Duration = d
	}
	if f.rps != -1 {
		cfg.RPS = f.rps
	}
	if f.list != -1 {
		cfg.ListSize = f.list
	}
	if f.payload != -1 {
		cfg.PayloadBytes = f.payload
	}
	if f.maxProcs != -1 {
		cfg.MaxProcs = f.maxProcs
	}
	if f.memLimit != "" {
		limit, err := parseBytes(f.memLimit)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid --mem-limit: %w", err)
		}
		cfg.MemLimitBytes = limit
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	switch {
	case cfg.Clients <= 0:
		return benchConfig{}, errors.New("--clients must be > 0")
	case cfg.Duration <= 0:
		return benchConfig{}, errors.New("--duration must be > 0")
	case cfg.RPS <= 0:
		return benchConfig{}, errors.New("--rps must be > 0")
	case cfg.ListSize < 0:
		return benchConfig{}, errors.New("--list must be >= 0")
	case cfg.PayloadBytes <= 0:
		return benchConfig{}, errors.New("--payload-bytes must be > 0")
	case cfg.MaxProcs < 0:
		return benchConfig{}, errors.New("--max-procs must be >= 0")
	case cfg.MemLimitBytes < 0:
		return benchConfig{}, errors.New("--mem-limit must be >= 0")
	}

	cfg.EventTimeout = eventTimeout(cfg.RPS)
	return cfg, nil
}

// runBench starts a servlet on a loopback port, runs cfg.Clients push
// clients against it for cfg.Duration and builds the report.
func runBench(ctx context.Context, cfg benchConfig) (benchReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	if cfg.MemLimitBytes > 0 {
		debug.SetMemoryLimit(cfg.MemLimitBytes)
	}
	debug.SetGCPercent(100)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewContainer(session.NewMemoryStore(), session.DefaultConfig(), quiet)
	servlet := server.NewServlet(server.DefaultConfig(), sessions, loadAppFactory(cfg.ListSize),
		server.WithServletLogger(quiet),
		server.WithManagerOptions(server.WithLogger(quiet)),
	)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return benchReport{}, fmt.Errorf("listen: %w", err)
	}
	serveCtx, stopServe := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- servlet.Serve(serveCtx, ln) }()
	defer func() {
		stopServe()
		<-served
	}()

	baseURL := "http://" + ln.Addr().String()

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	samplesCh := make(chan time.Duration, sampleBuffer(cfg.Clients))
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var counters benchCounters
	var errCounts benchErrors
	var paintTags tagCounts

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		c := &pushClient{
			id:       i,
			baseURL:  baseURL,
			cfg:      cfg,
			counters: &counters,
			errs:     &errCounts,
			tags:     &paintTags,
			samples:  samplesCh,
		}
		go func() {
			defer wg.Done()
			if err := c.run(runCtx); err != nil {
				errCounts.totalErrors.Add(1)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return buildReport(cfg, elapsed, samples, &counters, &errCounts, &paintTags,
		before, after, beforeMetrics, afterMetrics), nil
}

func sampleBuffer(clients int) int {
	buf := clients * 4
	if buf < 1024 {
		buf = 1024
	}
	return buf
}

func eventTimeout(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	period := time.Duration(float64(time.Second) / rps)
	timeout := period * 10
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	return timeout
}

func parseBytes(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, errors.New("empty size")
	}

	var i int
	for i < len(s) {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid size %q", input)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	if err != nil {
		return 0, err
	}

	var multiplier float64
	switch suffix := strings.ToLower(strings.TrimSpace(s[i:])); suffix {
	case "", "b":
		multiplier = 1
	case "kb":
		multiplier = 1e3
	case "mb":
		multiplier = 1e6
	case "gb":
		multiplier = 1e9
	case "kib":
		multiplier = 1024
	case "mib":
		multiplier = 1024 * 1024
	case "gib":
		multiplier = float64(gib)
	default:
		return 0, fmt.Errorf("unknown size suffix %q", suffix)
	}

	return int64(value*multiplier + 0.5), nil
}
