package transfer

import (
	"context"
	"fmt"
	"net"
)

// Send dials addr and writes a single write-tile frame, the client half of
// the protocol used by the tiling pipeline to push split/filled tiles to
// their owning node (spec §4.2).
func Send(ctx context.Context, addr string, f Frame) error {
	f.Op = OpWrite

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}

	if err := WriteFrame(conn, f); err != nil {
		return fmt.Errorf("transfer: send frame to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	if err := ReadAck(conn); err != nil {
		return fmt.Errorf("transfer: %s: %w", addr, err)
	}
	return nil
}
