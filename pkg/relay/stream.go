package relay

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// relayBufferSize is the chunk copy buffer size. Upstream chunk boundaries
// below this size are preserved because each Read is flushed before the
// next one is issued.
const relayBufferSize = 32 * 1024

// Relay copies the committed upstream response body to w chunk by chunk,
// flushing after every chunk when w supports it. Reads and writes
// alternate, so a slow client paces consumption from the upstream instead
// of buffering the stream in memory.
//
// A stall longer than the idle-chunk deadline, an upstream read error, or
// a failed write to the client all terminate the relay; the Result is
// closed in every case. The returned error is nil only when the upstream
// body was delivered to completion.
func (e *Engine) Relay(ctx context.Context, w io.Writer, result *Result, deployment string) error {
	defer result.Close()

	flusher, _ := w.(http.Flusher)

	var idleExpired atomic.Bool
	var idleTimer *time.Timer
	if e.idleChunkTimeout > 0 {
		idleTimer = time.AfterFunc(e.idleChunkTimeout, func() {
			idleExpired.Store(true)
			result.cancel()
		})
		defer idleTimer.Stop()
	}

	buf := make([]byte, relayBufferSize)
	for {
		n, readErr := result.Body.Read(buf)
		if idleTimer != nil && !idleExpired.Load() {
			idleTimer.Reset(e.idleChunkTimeout)
		}

		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				result.cancel()
				return &StreamError{
					Deployment: deployment,
					Endpoint:   result.Endpoint,
					ClientGone: true,
					Cause:      writeErr,
				}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			if idleExpired.Load() {
				return &StreamError{
					Deployment:  deployment,
					Endpoint:    result.Endpoint,
					TimedOut:    true,
					IdleTimeout: e.idleChunkTimeout,
					Cause:       readErr,
				}
			}
			if ctx.Err() != nil {
				// The caller went away; the upstream exchange was
				// cancelled through the shared context.
				return &StreamError{
					Deployment: deployment,
					Endpoint:   result.Endpoint,
					ClientGone: true,
					Cause:      ctx.Err(),
				}
			}
			return &StreamError{
				Deployment: deployment,
				Endpoint:   result.Endpoint,
				Cause:      readErr,
			}
		}
	}
}
