// Package clock maps wall-clock offsets to packet indices using the PCR
// samples carried in adaptation fields.
//
// Only the 33-bit 90 kHz base is compared; the 27 MHz extension is ignored
// and 33-bit wraparound is not handled, so ranges on captures longer than
// about 26.5 hours are undefined.
package clock

import (
	"errors"
	"fmt"
	"time"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// TicksPerSecond is the PCR base clock rate.
const TicksPerSecond = 90000

// ErrTimestampNotFound means no PCR sample at or after the target exists.
var ErrTimestampNotFound = errors.New("clock: timestamp not found")

// Ticks converts a duration to 90 kHz ticks, truncating.
func Ticks(d time.Duration) int64 {
	sec, frac := d/time.Second, d%time.Second
	return int64(sec)*TicksPerSecond + int64(frac)*TicksPerSecond/int64(time.Second)
}

// Duration converts 90 kHz ticks to a duration.
func Duration(ticks int64) time.Duration {
	sec, rem := ticks/TicksPerSecond, ticks%TicksPerSecond
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/TicksPerSecond)
}

// Locator finds packet indices by PCR time.
type Locator struct {
	// Relative measures targets from the first PCR sample on the PID
	// instead of from PCR zero.
	Relative bool
}

// FindIndex is Locator{}.FindIndex.
func FindIndex(target time.Duration, pid uint16, packets []*mpegts.Packet) (int, error) {
	return Locator{}.FindIndex(target, pid, packets)
}

// sample returns the PCR base of a packet that may be used for lookup:
// it must be on pid, start a payload unit and carry a PCR.
func sample(pkt *mpegts.Packet, pid uint16) (int64, bool) {
	if pkt.Header.PID != pid || !pkt.Header.PayloadUnitStartIndicator {
		return 0, false
	}
	pcr, ok := pkt.PCR()
	if !ok {
		return 0, false
	}
	return pcr.Base, true
}

// FindIndex returns the index of the first packet on pid whose PCR is at or
// after target.
func (l Locator) FindIndex(target time.Duration, pid uint16, packets []*mpegts.Packet) (int, error) {
	want := Ticks(target)
	var origin int64
	haveOrigin := !l.Relative
	for i, pkt := range packets {
		base, ok := sample(pkt, pid)
		if !ok {
			continue
		}
		if !haveOrigin {
			origin, haveOrigin = base, true
		}
		if base-origin >= want {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s on PID %d", ErrTimestampNotFound, target, pid)
}

// LocateRange returns the inclusive packet index range covering r.
func (l Locator) LocateRange(r Range, pid uint16, packets []*mpegts.Packet) (start, end int, err error) {
	start, err = l.FindIndex(r.Start, pid, packets)
	if err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	end, err = l.FindIndex(r.End, pid, packets)
	if err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

// Bounds returns the first and last PCR base on pid.
func Bounds(pid uint16, packets []*mpegts.Packet) (first, last int64, ok bool) {
	for _, pkt := range packets {
		base, found := sample(pkt, pid)
		if !found {
			continue
		}
		if !ok {
			first, ok = base, true
		}
		last = base
	}
	return first, last, ok
}
