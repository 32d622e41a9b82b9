package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/coordination"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/progress"
	"github.com/basket/goclaw-bridge/internal/store"
	"github.com/basket/goclaw-bridge/internal/telegram"
	"github.com/basket/goclaw-bridge/internal/worker"
)

// Dispatch implements scheduler.Dispatcher: it drives one Started
// task — whichever cmd_type it is — through the shared multipart upload
// state machine in internal/worker to Completed or Failed, registering it
// in the progress view and the cancellation registry for the duration of
// the transfer. The scheduler calls this in its own goroutine, already
// holding one semaphore permit; release is called exactly once, on every
// return path.
func (d *Dispatcher) Dispatch(ctx context.Context, task *store.Task, release func()) {
	defer release()

	taskCtx, aborter := coordination.NewAborter(ctx, task.ID, task.Filename)
	d.deps.Aborters.Register(task.ChatID, task.MessageIndicatorID, aborter, task.MessageID)
	defer d.deps.Aborters.Unregister(task.ChatID, task.MessageIndicatorID)

	d.deps.View.Insert(task.ID, progress.Item{
		CurrentLength: task.CurrentLength,
		TotalLength:   task.TotalLength,
		Filename:      task.Filename,
		ChatBotHex:    task.ChatBotHex,
		ChatID:        task.ChatID,
		MessageID:     task.MessageID,
	})

	if err := d.runTransfer(taskCtx, task); err != nil {
		d.deps.Logger.Warn("handlers: transfer failed", "task_id", task.ID, "cmd_type", task.CmdType, "error", err)
		if serr := d.deps.Tasks.SetStatus(ctx, task.ID, store.StatusFailed); serr != nil {
			d.deps.Logger.Warn("handlers: mark task failed failed", "task_id", task.ID, "error", serr)
		}
		return
	}

	if err := d.deps.Tasks.SetStatus(ctx, task.ID, store.StatusCompleted); err != nil {
		d.deps.Logger.Warn("handlers: mark task completed failed", "task_id", task.ID, "error", err)
	}
}

// runTransfer opens the task's byte source, reattaches its upload session,
// and hands both to worker.Transfer, writing the effective filename back
// on success (rename-on-conflict means it may differ from the one
// submitted).
func (d *Dispatcher) runTransfer(ctx context.Context, task *store.Task) error {
	acc, err := d.deps.Sessions.RefreshIfExpired(ctx, d.deps.HTTPClient, d.deps.GraphOAuth)
	if err != nil {
		return bridgeerr.Authorization("refresh storage token: %v", err)
	}

	src, err := d.openSource(ctx, task)
	if err != nil {
		return err
	}
	defer src.Close()

	uploadSession := graphclient.NewSession(d.deps.HTTPClient, task.UploadURL)
	offset, err := uploadSession.NextExpectedOffset(ctx)
	if err != nil {
		return err
	}
	_ = acc // access token already applied when the session was first created

	item, err := worker.Transfer(ctx, worker.Deps{
		Store:    d.deps.Tasks,
		Progress: d.deps.View,
		Logger:   d.deps.Logger,
		Tracer:   d.deps.Tracer,
	}, task, src, uploadSession, offset, task.TotalLength)
	if err != nil {
		return err
	}

	if item.Name != "" && item.Name != task.Filename {
		if err := d.deps.Tasks.UpdateFilename(ctx, task.ID, item.Name); err != nil {
			d.deps.Logger.Warn("handlers: update filename failed", "task_id", task.ID, "error", err)
		}
	}
	return nil
}

// openSource returns the byte stream a transfer reads from, per cmd_type:
// a streaming GET for Url, the chat platform's attachment download for
// File and Link (a prior forwarding step already gave the bot identity a
// readable copy for Link, per internal/handlers/links.go).
func (d *Dispatcher) openSource(ctx context.Context, task *store.Task) (io.ReadCloser, error) {
	switch task.CmdType {
	case store.CmdTypeURL:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
		if err != nil {
			return nil, bridgeerr.Validation("malformed url %q", task.URL)
		}
		resp, err := d.deps.HTTPClient.Do(req)
		if err != nil {
			return nil, bridgeerr.Transport(err, "GET %s", task.URL)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, bridgeerr.Transport(nil, "GET %s: status %s", task.URL, resp.Status)
		}
		return resp.Body, nil
	case store.CmdTypeFile, store.CmdTypeLink:
		return d.deps.BotClient.OpenAttachment(ctx, telegram.Attachment{
			FileID:   task.SourceFileID,
			FileName: task.Filename,
			FileSize: task.TotalLength,
		})
	default:
		return nil, bridgeerr.Internal(nil, "unknown cmd_type %q", task.CmdType)
	}
}
