// Package extract writes a PID-filtered subsequence of a packet sequence.
// Selected packets are copied byte for byte, so the output is itself a valid
// transport stream.
package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// ErrInvalidRange is returned for index ranges with a negative start or a
// start past the end.
var ErrInvalidRange = errors.New("extract: invalid index range")

// PIDSet is a set of PIDs to keep.
type PIDSet map[uint16]struct{}

// NewPIDSet returns a set holding pids.
func NewPIDSet(pids ...uint16) PIDSet {
	s := make(PIDSet, len(pids))
	s.Add(pids...)
	return s
}

// Add inserts pids into the set.
func (s PIDSet) Add(pids ...uint16) {
	for _, pid := range pids {
		s[pid] = struct{}{}
	}
}

// Has reports whether pid is in the set.
func (s PIDSet) Has(pid uint16) bool {
	_, ok := s[pid]
	return ok
}

// Sorted returns the set's PIDs in ascending order.
func (s PIDSet) Sorted() []uint16 {
	pids := make([]uint16, 0, len(s))
	for pid := range s {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

// IndexRange is an inclusive packet index range.
type IndexRange struct {
	Start int
	End   int
}

func (r IndexRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// clamp limits the range to a sequence of n packets.
func (r IndexRange) clamp(n int) (start, end int, err error) {
	if r.Start < 0 || r.Start > r.End {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidRange, r)
	}
	end = r.End
	if end > n-1 {
		end = n - 1
	}
	return r.Start, end, nil
}

type options struct {
	progressEvery int
	progress      func(done, total int)
}

// Option configures Extract.
type Option func(*options)

// WithProgress calls fn after every `every` scanned packets and once at the
// end.
func WithProgress(every int, fn func(done, total int)) Option {
	return func(o *options) {
		o.progressEvery = every
		o.progress = fn
	}
}

// Extract writes every packet whose PID is in pids to w, in sequence order.
// With a non-nil rng only packets inside the inclusive index range are
// considered; an End past the sequence is clamped. It returns the number of
// packets written. Writing nothing is not an error.
func Extract(w io.Writer, packets []*mpegts.Packet, pids PIDSet, rng *IndexRange, opts ...Option) (int, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	start, end := 0, len(packets)-1
	if rng != nil {
		var err error
		start, end, err = rng.clamp(len(packets))
		if err != nil {
			return 0, err
		}
	}

	bw := bufio.NewWriterSize(w, 64*mpegts.PacketSize)
	written := 0
	total := end - start + 1
	if total < 0 {
		total = 0
	}
	for i := start; i <= end; i++ {
		pkt := packets[i]
		if pids.Has(pkt.Header.PID) {
			if _, err := bw.Write(pkt.Bytes()); err != nil {
				return written, fmt.Errorf("extract: write packet %d: %w", i, err)
			}
			written++
		}
		if o.progress != nil && o.progressEvery > 0 && (i-start+1)%o.progressEvery == 0 {
			o.progress(i-start+1, total)
		}
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("extract: flush: %w", err)
	}
	if o.progress != nil {
		o.progress(total, total)
	}
	return written, nil
}
