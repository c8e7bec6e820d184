// Package pipeline answers analysis and extraction requests against one
// transport stream file held in memory. The packet sequence is loaded once;
// topology and statistics are recomputed for every request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/zsiec/tsprobe/internal/analyze"
	"github.com/zsiec/tsprobe/internal/clock"
	"github.com/zsiec/tsprobe/internal/extract"
	"github.com/zsiec/tsprobe/internal/metrics"
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/program"
)

var (
	// ErrNoClockPID means a time range was requested without a clock PID
	// and the selected program has no PCR PID.
	ErrNoClockPID = errors.New("pipeline: no clock PID for time range")
	// ErrNoProgram means the requested program is not in the topology.
	ErrNoProgram = errors.New("pipeline: program not found")
	// ErrInvalidRequest means the request selects nothing or combines
	// options that exclude each other.
	ErrInvalidRequest = errors.New("pipeline: invalid extract request")
)

const defaultProgressEvery = 100000

// Config holds the settings shared by every request of a Session.
type Config struct {
	// Log is the parent logger; nil means slog.Default().
	Log *slog.Logger
	// Workers bounds the analysis fan-out; 0 means GOMAXPROCS.
	Workers int
	// PMTPIDs are treated as PMT PIDs in addition to those in the PAT.
	PMTPIDs []uint16
	// Metrics receives run counters; nil disables them.
	Metrics *metrics.Collector
	// Progress, when set, is called every ProgressEvery packets scanned
	// during extraction.
	Progress      func(done, total int)
	ProgressEvery int
}

func (c Config) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

// Session owns one immutable packet sequence.
type Session struct {
	log       *slog.Logger
	cfg       Config
	packets   []*mpegts.Packet
	malformed int

	mu      sync.Mutex
	counted map[string]bool
	logged  map[string]int
	// ccCounted is set once the continuity metric holds this session's
	// packets.
	ccCounted bool
}

// Open reads the file at path into a new Session. Malformed packets are
// skipped and counted.
func Open(ctx context.Context, path string, cfg Config) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open input: %w", err)
	}
	defer f.Close()

	packets, malformed, err := mpegts.ReadAll(ctx, f, mpegts.ReaderOptLogger(cfg.logger()))
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	s := New(packets, malformed, cfg)
	s.log.Info("input loaded", "path", path, "packets", len(packets), "malformed", malformed)
	return s, nil
}

// New creates a Session over an already decoded packet sequence.
func New(packets []*mpegts.Packet, malformed int, cfg Config) *Session {
	s := &Session{
		log:       cfg.logger().With("component", "session"),
		cfg:       cfg,
		packets:   packets,
		malformed: malformed,
		counted:   make(map[string]bool),
		logged:    make(map[string]int),
	}
	cfg.Metrics.PacketsDecoded(len(packets))
	cfg.Metrics.PacketsMalformed(malformed)
	if malformed > 0 {
		s.log.Warn("skipped malformed packets", "count", malformed)
	}
	return s
}

// Packets returns the packet sequence. Callers must not modify it.
func (s *Session) Packets() []*mpegts.Packet {
	return s.packets
}

// Malformed returns the number of input packets that failed to decode.
func (s *Session) Malformed() int {
	return s.malformed
}

// Topology resolves the program topology. The result is never nil; on error
// it holds whatever was recovered.
func (s *Session) Topology() (*program.Topology, error) {
	r := program.NewResolver(s.cfg.logger(), program.WithPMTPID(s.cfg.PMTPIDs...))
	topo, err := r.Resolve(s.packets)
	s.reportWarnings(topo.Warnings)
	return topo, err
}

// reportWarnings logs each distinct warning once per session and counts
// each section once, however often the topology is recomputed.
func (s *Session) reportWarnings(warnings []*program.Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range warnings {
		table := metrics.TablePMT
		if w.Table == mpegts.TableIDPAT {
			table = metrics.TablePAT
		}

		section := fmt.Sprintf("%d/%v", w.Index, w.Err)
		if !s.counted[section] {
			s.counted[section] = true
			s.cfg.Metrics.SectionError(table)
		}

		msg := fmt.Sprintf("%s/%d/%v", table, w.PID, w.Err)
		s.logged[msg]++
		if s.logged[msg] == 1 {
			s.log.Warn("section warning", "table", table, "pid", w.PID, "packet", w.Index, "error", w.Err)
		} else {
			s.log.Debug("repeated section warning", "table", table, "pid", w.PID, "packet", w.Index, "error", w.Err)
		}
	}
}

// Report is the result of Analyze.
type Report struct {
	Topology *program.Topology
	// TopologyErr is ErrNoPAT or ErrNoPMT when resolution was incomplete.
	// Streams are reported either way.
	TopologyErr   error
	Streams       []analyze.PIDStat
	Longest       *uint16
	ProgramCounts []analyze.ProgramCount
	Malformed     int
	Total         int
}

// Analyze reports per-PID statistics and program rankings.
func (s *Session) Analyze(ctx context.Context) (*Report, error) {
	topo, topoErr := s.Topology()
	if topoErr != nil {
		s.log.Warn("topology incomplete", "error", topoErr)
	}

	streams, err := analyze.NewAnalyzer(s.cfg.logger(), s.cfg.Workers).Analyze(ctx, s.packets, topo)
	if err != nil {
		return nil, fmt.Errorf("pipeline: analyze: %w", err)
	}
	cc := 0
	for _, st := range streams {
		cc += st.ContinuityErrors
	}
	s.mu.Lock()
	if !s.ccCounted {
		s.ccCounted = true
		s.cfg.Metrics.ContinuityErrors(cc)
	}
	s.mu.Unlock()

	rep := &Report{
		Topology:      topo,
		TopologyErr:   topoErr,
		Streams:       streams,
		ProgramCounts: analyze.ProgramPacketCounts(s.packets, topo),
		Malformed:     s.malformed,
		Total:         len(s.packets),
	}
	if n, ok := analyze.Longest(s.packets, topo); ok {
		rep.Longest = &n
	}
	s.log.Info("analysis done", "pids", len(streams), "programs", len(topo.Programs), "continuity_errors", cc)
	return rep, nil
}

// Request selects the packets to extract. PIDs are unioned with the PIDs of
// the selected program, if any. At most one of IndexRange and TimeRange may
// be set.
type Request struct {
	PIDs []uint16
	// Program selects a program by number.
	Program *uint16
	// Longest selects the program with the largest elementary stream.
	Longest    bool
	IndexRange *extract.IndexRange
	TimeRange  *clock.Range
	// ClockPID overrides the selected program's PCR PID for TimeRange.
	ClockPID *uint16
	// RelativeTime measures TimeRange from the first PCR sample.
	RelativeTime bool
}

// Result describes a completed extraction.
type Result struct {
	PIDs []uint16
	// Program is the selected program, if any.
	Program *uint16
	// Range is the index range scanned; nil means the whole sequence.
	Range   *extract.IndexRange
	Written int
}

// Extract writes the packets selected by req to w. Topology failures abort
// this request only.
func (s *Session) Extract(ctx context.Context, req Request, w io.Writer) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.Program != nil && req.Longest {
		return Result{}, fmt.Errorf("%w: program and longest are exclusive", ErrInvalidRequest)
	}
	if req.IndexRange != nil && req.TimeRange != nil {
		return Result{}, fmt.Errorf("%w: index range and time range are exclusive", ErrInvalidRequest)
	}

	var res Result
	pids := extract.NewPIDSet(req.PIDs...)

	var prog *program.Program
	if req.Program != nil || req.Longest {
		p, err := s.selectProgram(req)
		if err != nil {
			return Result{}, err
		}
		prog = p
		number := p.Number
		res.Program = &number
		pids.Add(p.PIDs()...)
		pids.Add(mpegts.PIDPAT)
	}
	if len(pids) == 0 {
		return Result{}, fmt.Errorf("%w: no PIDs selected", ErrInvalidRequest)
	}
	res.PIDs = pids.Sorted()

	res.Range = req.IndexRange
	if req.TimeRange != nil {
		rng, err := s.locate(req, prog)
		if err != nil {
			return res, err
		}
		res.Range = rng
	}

	var opts []extract.Option
	if s.cfg.Progress != nil {
		every := s.cfg.ProgressEvery
		if every <= 0 {
			every = defaultProgressEvery
		}
		opts = append(opts, extract.WithProgress(every, s.cfg.Progress))
	}

	n, err := extract.Extract(w, s.packets, pids, res.Range, opts...)
	res.Written = n
	s.cfg.Metrics.PacketsWritten(n)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}

	if n == 0 {
		s.log.Warn("no packets matched", "pids", res.PIDs)
	}
	s.log.Info("extraction done", "pids", res.PIDs, "written", n, "range", rangeAttr(res.Range))
	return res, nil
}

func (s *Session) selectProgram(req Request) (*program.Program, error) {
	topo, err := s.Topology()
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolve topology: %w", err)
	}

	var number uint16
	if req.Longest {
		n, ok := analyze.Longest(s.packets, topo)
		if !ok {
			return nil, fmt.Errorf("%w: no elementary stream carries packets", ErrNoProgram)
		}
		number = n
		s.log.Info("longest program selected", "program", n)
	} else {
		number = *req.Program
	}

	p, ok := topo.Program(number)
	if !ok {
		return nil, fmt.Errorf("%w: program %d", ErrNoProgram, number)
	}
	if !p.HasPMT {
		return nil, fmt.Errorf("pipeline: program %d: %w", number, program.ErrNoPMT)
	}
	return p, nil
}

func (s *Session) locate(req Request, prog *program.Program) (*extract.IndexRange, error) {
	var pid uint16
	switch {
	case req.ClockPID != nil:
		pid = *req.ClockPID
	case prog != nil:
		pcr, ok := prog.PCRPID()
		if !ok {
			return nil, fmt.Errorf("%w: program %d has no PCR PID", ErrNoClockPID, prog.Number)
		}
		pid = pcr
	default:
		return nil, ErrNoClockPID
	}

	loc := clock.Locator{Relative: req.RelativeTime}
	start, end, err := loc.LocateRange(*req.TimeRange, pid, s.packets)
	if err != nil {
		return nil, fmt.Errorf("pipeline: locate %s on PID %d: %w", req.TimeRange, pid, err)
	}
	s.log.Debug("time range located", "range", req.TimeRange.String(), "clock_pid", pid, "start", start, "end", end)
	return &extract.IndexRange{Start: start, End: end}, nil
}

func rangeAttr(r *extract.IndexRange) string {
	if r == nil {
		return "all"
	}
	return r.String()
}
