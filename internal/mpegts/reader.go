package mpegts

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Reader reads consecutive packets from an io.Reader. Malformed packets are
// skipped and counted; they never end the read.
type Reader struct {
	ctx       context.Context
	reader    io.Reader
	log       *slog.Logger
	malformed int
	eof       bool
}

// NewReader creates a packet reader over r.
func NewReader(ctx context.Context, r io.Reader, opts ...func(*Reader)) *Reader {
	rd := &Reader{
		ctx:    ctx,
		reader: r,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// ReaderOptLogger sets the logger used for skipped-packet diagnostics.
func ReaderOptLogger(log *slog.Logger) func(*Reader) {
	return func(rd *Reader) {
		if log != nil {
			rd.log = log
		}
	}
}

// Next returns the next well-formed packet. Returns io.EOF when the input is
// exhausted.
func (rd *Reader) Next() (*Packet, error) {
	for {
		if rd.eof {
			return nil, io.EOF
		}
		if err := rd.ctx.Err(); err != nil {
			return nil, err
		}

		// Each packet owns its buffer since packets alias what they decode.
		buf := make([]byte, PacketSize)
		n, err := io.ReadFull(rd.reader, buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				rd.eof = true
				continue
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				rd.eof = true
				rd.malformed++
				rd.log.Debug("trailing partial packet", "bytes", n)
				continue
			}
			return nil, err
		}

		pkt, err := DecodePacket(buf)
		if err != nil {
			rd.malformed++
			rd.log.Debug("skipping packet", "error", err)
			continue
		}
		return pkt, nil
	}
}

// Malformed returns how many packets were skipped so far.
func (rd *Reader) Malformed() int {
	return rd.malformed
}

// ReadAll reads every packet from r into an ordered sequence.
func ReadAll(ctx context.Context, r io.Reader, opts ...func(*Reader)) ([]*Packet, int, error) {
	rd := NewReader(ctx, r, opts...)
	var packets []*Packet
	for {
		pkt, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return packets, rd.Malformed(), nil
		}
		if err != nil {
			return packets, rd.Malformed(), err
		}
		packets = append(packets, pkt)
	}
}

// DecodeAll splits an in-memory buffer into packets. The packets alias data.
func DecodeAll(data []byte) ([]*Packet, int) {
	packets := make([]*Packet, 0, len(data)/PacketSize)
	malformed := 0
	for off := 0; off < len(data); off += PacketSize {
		end := off + PacketSize
		if end > len(data) {
			malformed++
			break
		}
		pkt, err := DecodePacket(data[off:end])
		if err != nil {
			malformed++
			continue
		}
		packets = append(packets, pkt)
	}
	return packets, malformed
}
