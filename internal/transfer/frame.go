// Package transfer implements the peer-to-peer tile transfer protocol
// (spec §4.2, §6.3): a length-prefixed binary frame carrying one tile,
// and the TCP server/client that exchange it.
package transfer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hamersaw/stip-sub000/internal/model"
)

// Op identifies the transfer operation. Only Write is implemented; Read is
// reserved by the protocol (spec §6.3) for future use.
type Op uint8

const (
	OpRead  Op = 0
	OpWrite Op = 1
)

// maxRasterPayload bounds the u64 raster_payload length ReadFrame accepts,
// so a garbage length prefix is rejected before any allocation. The
// u8-length-prefixed string fields need no such bound: one length byte
// already caps them at 255 bytes.
const maxRasterPayload = 512 << 20 // 512MiB, generous for one tile+subdataset

// Frame is one decoded tile-write request (spec §4.2).
type Frame struct {
	Op                Op
	Album             string
	Geocode           string
	Platform          string
	Source            model.TileSource
	TileID            string
	Subdataset        uint8
	Timestamp         int64
	PixelCoverage     float64
	CloudCoverage     *float64 // nil when the flag byte is 0
	RasterPayload     []byte
}

// WriteFrame serializes f onto w in the exact wire layout of spec §4.2/§6.3.
func WriteFrame(w io.Writer, f Frame) error {
	if err := writeByte(w, byte(f.Op)); err != nil {
		return err
	}
	for _, s := range []string{f.Album, f.Geocode, f.Platform, string(f.Source), f.TileID} {
		if err := writeLenPrefixed(w, s); err != nil {
			return err
		}
	}
	if err := writeByte(w, f.Subdataset); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, f.Timestamp); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, f.PixelCoverage); err != nil {
		return err
	}
	if f.CloudCoverage != nil {
		if err := writeByte(w, 1); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, *f.CloudCoverage); err != nil {
			return err
		}
	} else {
		if err := writeByte(w, 0); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint64(len(f.RasterPayload))); err != nil {
		return err
	}
	_, err := w.Write(f.RasterPayload)
	return err
}

// ReadFrame deserializes one Frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var f Frame

	opByte, err := readByte(r)
	if err != nil {
		return f, fmt.Errorf("transfer: read op: %w", err)
	}
	f.Op = Op(opByte)

	fields := make([]string, 5)
	for i := range fields {
		s, err := readLenPrefixed(r)
		if err != nil {
			return f, fmt.Errorf("transfer: read field %d: %w", i, err)
		}
		fields[i] = s
	}
	f.Album, f.Geocode, f.Platform = fields[0], fields[1], fields[2]
	f.Source = model.TileSource(fields[3])
	f.TileID = fields[4]

	subdataset, err := readByte(r)
	if err != nil {
		return f, fmt.Errorf("transfer: read subdataset: %w", err)
	}
	f.Subdataset = subdataset

	if err := binary.Read(r, binary.BigEndian, &f.Timestamp); err != nil {
		return f, fmt.Errorf("transfer: read timestamp: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &f.PixelCoverage); err != nil {
		return f, fmt.Errorf("transfer: read pixel_coverage: %w", err)
	}

	flag, err := readByte(r)
	if err != nil {
		return f, fmt.Errorf("transfer: read cloud_coverage_flag: %w", err)
	}
	if flag == 1 {
		var cc float64
		if err := binary.Read(r, binary.BigEndian, &cc); err != nil {
			return f, fmt.Errorf("transfer: read cloud_coverage: %w", err)
		}
		f.CloudCoverage = &cc
	}

	var payloadLen uint64
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return f, fmt.Errorf("transfer: read raster_payload length: %w", err)
	}
	if payloadLen > maxRasterPayload {
		return f, fmt.Errorf("transfer: raster_payload length %d exceeds limit %d", payloadLen, maxRasterPayload)
	}
	f.RasterPayload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, f.RasterPayload); err != nil {
		return f, fmt.Errorf("transfer: read raster_payload: %w", err)
	}

	return f, nil
}

// ackOK/ackError are the single status byte the server writes back after
// processing a frame (spec §4.2 step 3): a clean close means ackOK, any
// storage/handler error means ackError followed by a length-prefixed reason.
const (
	ackOK    byte = 0
	ackError byte = 1
)

// RemoteError is what ReadAck returns when the remote reported a handler
// failure (as opposed to a connection-level failure): the write reached the
// peer, which tried and failed to store the tile. Callers use this to
// distinguish a fatal storage failure from a skippable transport failure
// (spec §7 policy).
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("transfer: remote storage failure: %s", e.Reason)
}

// WriteAck writes the server's acknowledgement for a handled frame: a clean
// success, or an error with its reason string.
func WriteAck(w io.Writer, handlerErr error) error {
	if handlerErr == nil {
		return writeByte(w, ackOK)
	}
	if err := writeByte(w, ackError); err != nil {
		return err
	}
	return writeLenPrefixed(w, handlerErr.Error())
}

// ReadAck reads the server's acknowledgement, returning an error built from
// the reason string if the server reported a failure.
func ReadAck(r io.Reader) error {
	status, err := readByte(r)
	if err != nil {
		return fmt.Errorf("transfer: read ack: %w", err)
	}
	if status == ackOK {
		return nil
	}
	reason, err := readLenPrefixed(r)
	if err != nil {
		return fmt.Errorf("transfer: read ack reason: %w", err)
	}
	return &RemoteError{Reason: reason}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

func writeLenPrefixed(w io.Writer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("transfer: field %q exceeds 255-byte length prefix", s)
	}
	if err := writeByte(w, byte(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLenPrefixed(r io.Reader) (string, error) {
	n, err := readByte(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
