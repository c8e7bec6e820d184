package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/zsiec/tsprobe/internal/clock"
	"github.com/zsiec/tsprobe/internal/extract"
	"github.com/zsiec/tsprobe/internal/metrics"
	"github.com/zsiec/tsprobe/internal/pipeline"
)

var version = "dev"

const usage = `usage: tsprobe <command> [flags] <input.ts>

commands:
  analyze   report programs and per-PID statistics
  extract   write a PID-filtered subset of the input
  version   print the version
`

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("tsprobe failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}
	switch args[0] {
	case "analyze":
		return runAnalyze(ctx, args[1:], stdout)
	case "extract":
		return runExtract(ctx, args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q: %w", args[0], flag.ErrHelp)
	}
}

// commonFlags are accepted by every command that reads an input.
type commonFlags struct {
	workers     int
	pmtPIDs     string
	metricsFile string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	workers, _ := strconv.Atoi(envOr("TSPROBE_WORKERS", "0"))
	fs.IntVar(&c.workers, "workers", workers, "analysis goroutines (0 = GOMAXPROCS); env TSPROBE_WORKERS")
	fs.StringVar(&c.pmtPIDs, "pmt-pid", "", "extra PMT PIDs, comma separated")
	fs.StringVar(&c.metricsFile, "metrics-file", envOr("TSPROBE_METRICS_FILE", ""), "write Prometheus textfile metrics here; env TSPROBE_METRICS_FILE")
}

func (c *commonFlags) config() (pipeline.Config, error) {
	pmt, err := parsePIDList(c.pmtPIDs)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("-pmt-pid: %w", err)
	}
	cfg := pipeline.Config{
		Log:     slog.Default(),
		Workers: c.workers,
		PMTPIDs: pmt,
	}
	if c.metricsFile != "" {
		cfg.Metrics = metrics.New()
	}
	return cfg, nil
}

func (c *commonFlags) flushMetrics(cfg pipeline.Config) {
	if cfg.Metrics == nil {
		return
	}
	if err := cfg.Metrics.WriteTextfile(c.metricsFile); err != nil {
		slog.Warn("failed to write metrics", "error", err)
		return
	}
	slog.Debug("metrics written", "path", c.metricsFile)
}

func inputArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected one input file, got %d: %w", fs.NArg(), flag.ErrHelp)
	}
	return fs.Arg(0), nil
}

func runAnalyze(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input, err := inputArg(fs)
	if err != nil {
		return err
	}
	cfg, err := common.config()
	if err != nil {
		return err
	}
	defer common.flushMetrics(cfg)

	s, err := pipeline.Open(ctx, input, cfg)
	if err != nil {
		return err
	}
	rep, err := s.Analyze(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(newReportView(rep))
	}
	return printReport(stdout, rep)
}

func runExtract(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	output := fs.String("o", "", "output file (required)")
	pidList := fs.String("pids", "", "PIDs to keep, comma separated")
	programNum := fs.Int("program", -1, "keep this program's PAT, PMT, PCR and component PIDs")
	longest := fs.Bool("longest", false, "keep the program with the largest elementary stream")
	indexRange := fs.String("range", "", "inclusive packet index range START:END")
	timeRange := fs.String("time", "", "PCR time range [[HH:]MM:]SS-[[HH:]MM:]SS")
	clockPID := fs.Int("clock-pid", -1, "PID whose PCR drives -time (default: program PCR PID)")
	relative := fs.Bool("relative", false, "measure -time from the first PCR sample")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input, err := inputArg(fs)
	if err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("-o is required: %w", flag.ErrHelp)
	}

	var req pipeline.Request
	if req.PIDs, err = parsePIDList(*pidList); err != nil {
		return fmt.Errorf("-pids: %w", err)
	}
	if *programNum >= 0 {
		if *programNum > 0xFFFF {
			return fmt.Errorf("-program %d out of range", *programNum)
		}
		n := uint16(*programNum)
		req.Program = &n
	}
	req.Longest = *longest
	if *indexRange != "" {
		if req.IndexRange, err = parseIndexRange(*indexRange); err != nil {
			return fmt.Errorf("-range: %w", err)
		}
	}
	if *timeRange != "" {
		r, err := clock.ParseRange(*timeRange)
		if err != nil {
			return fmt.Errorf("-time: %w", err)
		}
		req.TimeRange = &r
	}
	if *clockPID >= 0 {
		pid, err := checkPID(uint64(*clockPID))
		if err != nil {
			return fmt.Errorf("-clock-pid: %w", err)
		}
		req.ClockPID = &pid
	}
	req.RelativeTime = *relative

	cfg, err := common.config()
	if err != nil {
		return err
	}
	cfg.ProgressEvery = 100000
	cfg.Progress = func(done, total int) {
		slog.Debug("extract progress", "done", done, "total", total)
	}
	defer common.flushMetrics(cfg)

	s, err := pipeline.Open(ctx, input, cfg)
	if err != nil {
		return err
	}
	res, err := writeAtomic(*output, func(w io.Writer) (pipeline.Result, error) {
		return s.Extract(ctx, req, w)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d packets (PIDs %s) to %s\n", res.Written, formatPIDs(res.PIDs), *output)
	return nil
}

// outputPerm matches what os.Create gives under the usual 022 umask.
const outputPerm = 0o644

// writeAtomic runs fn against a temporary file next to path and renames it
// into place only if fn succeeds.
func writeAtomic(path string, fn func(io.Writer) (pipeline.Result, error)) (pipeline.Result, error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tsprobe-*")
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("create output: %w", err)
	}
	tmp := f.Name()
	res, err := fn(f)
	if err == nil {
		if cerr := f.Chmod(outputPerm); cerr != nil {
			err = fmt.Errorf("chmod output: %w", cerr)
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return res, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return res, fmt.Errorf("rename output: %w", err)
	}
	return res, nil
}

func checkPID(v uint64) (uint16, error) {
	if v > 0x1FFF {
		return 0, fmt.Errorf("PID %d exceeds 13 bits", v)
	}
	return uint16(v), nil
}

// parsePIDList parses "0,256,0x101". Decimal, hex and octal are accepted.
func parsePIDList(s string) ([]uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pids []uint16
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(field), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("bad PID %q", field)
		}
		pid, err := checkPID(v)
		if err != nil {
			return nil, err
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// parseIndexRange parses "START:END".
func parseIndexRange(s string) (*extract.IndexRange, error) {
	startStr, endStr, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q is not START:END", extract.ErrInvalidRange, s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return nil, fmt.Errorf("%w: bad start %q", extract.ErrInvalidRange, startStr)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return nil, fmt.Errorf("%w: bad end %q", extract.ErrInvalidRange, endStr)
	}
	if start < 0 || start > end {
		return nil, fmt.Errorf("%w: %d:%d", extract.ErrInvalidRange, start, end)
	}
	return &extract.IndexRange{Start: start, End: end}, nil
}

func formatPIDs(pids []uint16) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(int(pid))
	}
	return strings.Join(parts, ",")
}

func printReport(w io.Writer, rep *pipeline.Report) error {
	fmt.Fprintf(w, "packets: %d (malformed %d)\n", rep.Total, rep.Malformed)
	if rep.TopologyErr != nil {
		fmt.Fprintf(w, "topology: %v\n", rep.TopologyErr)
	}
	for _, p := range rep.Topology.Programs {
		pcr := "none"
		if pid, ok := p.PCRPID(); ok {
			pcr = strconv.Itoa(int(pid))
		}
		fmt.Fprintf(w, "program %d: PMT %d, PCR %s, %d components\n", p.Number, p.PMTPID, pcr, len(p.Components))
	}
	if rep.Longest != nil {
		fmt.Fprintf(w, "longest program: %d\n", *rep.Longest)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPACKETS\tCC ERRORS\tPCR\tROLE")
	for _, st := range rep.Streams {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n", st.PID, st.Packets, st.ContinuityErrors, st.PCRSamples, role(st.IsPAT, st.IsPMT, st.Label, st.Program))
	}
	return tw.Flush()
}

func role(isPAT, isPMT bool, label string, program uint16) string {
	switch {
	case isPAT:
		return "PAT"
	case isPMT:
		return "PMT"
	case label != "":
		return fmt.Sprintf("%s (program %d)", label, program)
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
