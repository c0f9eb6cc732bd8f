package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamersaw/stip-sub000/internal/model"
)

type fakeHandler struct {
	err error
	got []Frame
}

func (h *fakeHandler) WriteTile(ctx context.Context, f Frame) error {
	h.got = append(h.got, f)
	return h.err
}

func startTestServer(t *testing.T, handler Handler) string {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", handler)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	go srv.Serve(ctx)
	return srv.Addr()
}

func testSendFrame() Frame {
	return Frame{
		Album:         "landsat",
		Geocode:       "9q8yyk",
		Platform:      "landsat8",
		Source:        model.SourceRaw,
		TileID:        "LC08_TEST",
		Timestamp:     1700000000,
		PixelCoverage: 1.0,
		RasterPayload: []byte{1, 2, 3},
	}
}

func TestSendAcksSuccess(t *testing.T) {
	h := &fakeHandler{}
	addr := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Send(ctx, addr, testSendFrame()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(h.got) != 1 || h.got[0].TileID != "LC08_TEST" {
		t.Fatalf("expected the handler to receive the frame, got %+v", h.got)
	}
}

func TestSendSurfacesRemoteStorageFailure(t *testing.T) {
	h := &fakeHandler{err: errors.New("disk full")}
	addr := startTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Send(ctx, addr, testSendFrame())
	if err == nil {
		t.Fatal("expected Send to surface the handler's storage failure")
	}
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected a *RemoteError, got %T: %v", err, err)
	}
}
