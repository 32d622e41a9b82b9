// Package worker implements the multipart upload state machine shared by
// the URL worker and the File/Link worker: both pump bytes from a source
// reader into a resumable upload session in fixed-size parts, persisting
// progress after each one.
package worker

import (
	"context"
	"io"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/progress"
	"github.com/basket/goclaw-bridge/internal/store"
	bridgeotel "github.com/basket/goclaw-bridge/internal/otel"
)

const maxPartRetries = 5

const partRetryDelay = time.Second

// Deps are the collaborators a Transfer needs to persist progress as it
// runs.
type Deps struct {
	Store    *store.Store
	Progress *progress.View
	Logger   *slog.Logger
	// Tracer wraps each part upload in a client span. Nil falls back to a
	// no-op tracer so callers that don't care about tracing (most tests)
	// don't have to construct one.
	Tracer trace.Tracer
}

// Transfer drives one task's multipart upload to completion, reading from
// src and writing through session. currentLength is the byte offset to
// resume from (0 for a fresh session, or the session's reported next
// expected range after a restart). It returns the final DriveItem once the
// last part completes.
func Transfer(ctx context.Context, deps Deps, task *store.Task, src io.Reader, session *graphclient.Session, currentLength, totalLength int64) (*graphclient.DriveItem, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(bridgeotel.TracerName)
	}

	buf := make([]byte, 0, graphclient.PartSize)
	current := currentLength

	flush := func(final bool) (*graphclient.DriveItem, error) {
		if len(buf) == 0 && !final {
			return nil, nil
		}
		var item *graphclient.DriveItem
		var err error
		for attempt := 0; attempt <= maxPartRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, bridgeerr.Transport(err, "task cancelled before part at offset %d", current)
			}
			partCtx, span := bridgeotel.StartClientSpan(ctx, tracer, "graphclient.UploadPart",
				bridgeotel.AttrTaskID.Int64(task.ID),
				bridgeotel.AttrPartOffset.Int64(current),
				bridgeotel.AttrPartSize.Int(len(buf)),
			)
			item, err = session.UploadPart(partCtx, buf, current, totalLength)
			if err != nil {
				span.RecordError(err)
			}
			span.End()
			if err == nil {
				break
			}
			if attempt == maxPartRetries {
				return nil, bridgeerr.Transport(err, "upload part at offset %d failed after %d attempts", current, maxPartRetries+1)
			}
			logger.Warn("part upload failed, retrying", "task_id", task.ID, "offset", current, "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return nil, bridgeerr.Transport(ctx.Err(), "task cancelled during retry backoff")
			case <-time.After(partRetryDelay):
			}
		}

		current += int64(len(buf))
		buf = buf[:0]

		if err := deps.Store.SetCurrentLength(ctx, task.ID, current, totalLength); err != nil {
			logger.Warn("failed to persist current_length", "task_id", task.ID, "error", err)
		}
		deps.Progress.SetCurrentLength(task.ID, current, totalLength)

		return item, nil
	}

	// A source whose length is an exact multiple of PartSize completes the
	// session on a full-sized part, so the DriveItem can arrive from an
	// interior flush rather than the EOF one.
	var finished *graphclient.DriveItem

	chunk := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			_ = session.Cancel(context.Background())
			return nil, bridgeerr.Transport(err, "task cancelled")
		}

		n, readErr := src.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for int64(len(buf)) >= graphclient.PartSize {
				part := append([]byte(nil), buf[:graphclient.PartSize]...)
				remainder := append([]byte(nil), buf[graphclient.PartSize:]...)
				buf = part
				item, err := flush(false)
				if err != nil {
					return nil, err
				}
				if item != nil {
					finished = item
				}
				buf = remainder
			}
		}

		if readErr == io.EOF {
			if len(buf) == 0 && finished != nil {
				return finished, nil
			}
			item, err := flush(true)
			if err != nil {
				return nil, err
			}
			if item == nil {
				return nil, bridgeerr.Protocol(nil, "upload session did not return a drive item on the final part")
			}
			return item, nil
		}
		if readErr != nil {
			return nil, bridgeerr.Transport(readErr, "read source stream")
		}
	}
}
