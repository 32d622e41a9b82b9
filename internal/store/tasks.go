package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
)

// CmdType identifies how a task's payload was submitted.
type CmdType string

const (
	CmdTypeFile CmdType = "file"
	CmdTypeLink CmdType = "link"
	CmdTypeURL  CmdType = "url"
)

func (c CmdType) Valid() bool {
	switch c {
	case CmdTypeFile, CmdTypeLink, CmdTypeURL:
		return true
	}
	return false
}

// TaskStatus is the task's position in the Waiting -> Fetched -> Started ->
// {Completed, Failed} lifecycle.
type TaskStatus string

const (
	StatusWaiting   TaskStatus = "waiting"
	StatusFetched   TaskStatus = "fetched"
	StatusStarted   TaskStatus = "started"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// allowedTransitions enumerates the legal status DAG edges. A transition
// not present here is rejected by SetStatus.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	StatusWaiting: {StatusFetched, StatusFailed},
	StatusFetched: {StatusStarted, StatusFailed},
	StatusStarted: {StatusCompleted, StatusFailed},
}

func canTransition(from, to TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is a single queued or in-flight transfer.
type Task struct {
	ID                  int64
	CmdType             CmdType
	Filename            string
	RootPath            string
	URL                 string
	UploadURL           string
	CurrentLength       int64
	TotalLength         int64
	ChatID              int64
	ChatBotHex          string
	ChatUserHex         string
	ChatOriginHex       string
	MessageID           int
	MessageIndicatorID  int
	MessageOriginID     int
	Status              TaskStatus
	AutoDelete          bool
	ContentType         string
	// TriggerText is a snapshot of the triggering message's original text,
	// taken at insertion time so the aggregator's Completed/Failed suffix
	// can append to it without re-reading the message.
	TriggerText string
	// SourceFileID is the chat-platform file identifier backing File/Link
	// tasks, resolved once at insertion time so a worker picking the task
	// up later (or after a restart) can re-open the byte stream without
	// re-parsing the triggering message.
	SourceFileID string
}

// InsertFields carries the subset of Task columns a caller supplies when
// enqueueing a new transfer; the rest are server-assigned or zero-valued.
type InsertFields struct {
	CmdType            CmdType
	Filename           string
	RootPath           string
	URL                string
	ChatID             int64
	ChatBotHex         string
	ChatUserHex        string
	ChatOriginHex      string
	MessageID          int
	MessageIndicatorID int
	MessageOriginID    int
	AutoDelete         bool
	ContentType        string
	TriggerText        string
	SourceFileID       string
	// TotalLength is known before the worker runs (a HEAD Content-Length
	// for Url tasks, the chat platform's reported file size for File/Link).
	TotalLength int64
}

// InsertTask enqueues a new task in the Waiting state. (chat_id, message_id)
// is unique among live tasks, so a duplicate insert first deletes any prior
// task sharing that key before writing the new row.
func (s *Store) InsertTask(ctx context.Context, f InsertFields) (int64, error) {
	if !f.CmdType.Valid() {
		return 0, fmt.Errorf("insert task: invalid cmd_type %q", f.CmdType)
	}
	if err := ValidateRootPath(f.RootPath); err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	if _, err := s.DeleteByMessage(ctx, f.ChatID, f.MessageID); err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}

	var id int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (
				cmd_type, filename, root_path, url, upload_url, total_length,
				chat_id, chat_bot_hex, chat_user_hex, chat_origin_hex,
				message_id, message_indicator_id, message_origin_id,
				status, auto_delete, content_type, trigger_text, source_file_id
			) VALUES (?, ?, ?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.CmdType, f.Filename, f.RootPath, nullString(f.URL), f.TotalLength,
			f.ChatID, f.ChatBotHex, f.ChatUserHex, nullString(f.ChatOriginHex),
			f.MessageID, f.MessageIndicatorID, nullInt(f.MessageOriginID),
			StatusWaiting, f.AutoDelete, f.ContentType, f.TriggerText, f.SourceFileID,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// FetchNext atomically selects the oldest Waiting task and moves it to
// Fetched, returning (nil, nil) if the queue is empty. The Waiting->Fetched
// handoff happens inside one transaction so a racing second call can never
// pick the same row before the first caller's status write lands.
func (s *Store) FetchNext(ctx context.Context) (*Task, error) {
	var t *Task
	err := retryOnBusy(ctx, 5, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, taskSelectColumns+`
				FROM tasks WHERE status = ? ORDER BY id ASC LIMIT 1
			`, StatusWaiting)
			task, err := scanTask(row)
			if errors.Is(err, sql.ErrNoRows) {
				t = nil
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, StatusFetched, task.ID); err != nil {
				return err
			}
			task.Status = StatusFetched
			t = task
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch next task: %w", err)
	}
	return t, nil
}

// GetTask returns the task with the given id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelectColumns+`FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bridgeerr.NotFound("task %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// SetStatus moves a task to a new status, validating the transition against
// the lifecycle DAG.
func (s *Store) SetStatus(ctx context.Context, id int64, to TaskStatus) error {
	return retryOnBusy(ctx, 5, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var from TaskStatus
			if err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&from); err != nil {
				return err
			}
			if !canTransition(from, to) {
				return fmt.Errorf("set status: illegal transition %s -> %s for task %d", from, to, id)
			}
			_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, to, id)
			return err
		})
	})
}

// SetCurrentLength updates the running byte counter for a task's upload.
func (s *Store) SetCurrentLength(ctx context.Context, id int64, current, total int64) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET current_length = ?, total_length = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, current, total, id)
		return err
	})
}

// SetUploadURL records the resumable upload session URL once the fetch
// step has obtained one.
func (s *Store) SetUploadURL(ctx context.Context, id int64, uploadURL string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET upload_url = ? WHERE id = ?`, uploadURL, id)
		return err
	})
}

// UpdateFilename overwrites the task's effective filename, used once the
// final upload response reports the name the provider actually stored.
func (s *Store) UpdateFilename(ctx context.Context, id int64, filename string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET filename = ? WHERE id = ?`, filename, id)
		return err
	})
}

// DeleteTask removes a single task row.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		return err
	})
}

// DeleteByMessage removes every task associated with a given chat/message
// pair, used when the originating chat message is deleted.
func (s *Store) DeleteByMessage(ctx context.Context, chatID int64, messageID int) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE chat_id = ? AND message_id = ?`, chatID, messageID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete by message: %w", err)
	}
	return affected, nil
}

// DeleteByChat removes every task row for chatID, used by /clear.
func (s *Store) DeleteByChat(ctx context.Context, chatID int64) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE chat_id = ?`, chatID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete by chat: %w", err)
	}
	return affected, nil
}

// PendingCount reports how many tasks for a given chat are still Waiting
// or Fetched (queued but not yet transferring), used by the aggregator's
// "N more tasks pending" trailer.
func (s *Store) PendingCount(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks WHERE chat_id = ? AND status IN (?, ?)
	`, chatID, StatusWaiting, StatusFetched).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// HasStartedTasks reports whether any task for the chat is currently in
// the Started state, used to gate destructive commands like /clear against
// an in-progress upload.
func (s *Store) HasStartedTasks(ctx context.Context, chatID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks WHERE chat_id = ? AND status = ?
	`, chatID, StatusStarted).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has started tasks: %w", err)
	}
	return n > 0, nil
}

// ActiveChatIDs returns the distinct chat_ids with at least one task row,
// terminal or not — the aggregator tick's starting point for discovering
// which chats need a sweep. Completed/Failed rows are deleted once the
// aggregator processes them, so this never accumulates stale chat ids.
func (s *Store) ActiveChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT chat_id FROM tasks ORDER BY chat_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("active chat ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("active chat ids: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GroupedByChat returns every non-terminal task for the given chat, ordered
// by id, for progress-view rebuilding after a restart.
func (s *Store) GroupedByChat(ctx context.Context, chatID int64) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+`
		FROM tasks WHERE chat_id = ? AND status NOT IN (?, ?) ORDER BY id ASC
	`, chatID, StatusCompleted, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("grouped by chat: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("grouped by chat: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TasksByStatus returns every task for chatID in a single status,
// ordered by id — used by the aggregator to pull the Completed and Failed
// rows GroupedByChat deliberately excludes.
func (s *Store) TasksByStatus(ctx context.Context, chatID int64, status TaskStatus) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+`
		FROM tasks WHERE chat_id = ? AND status = ? ORDER BY id ASC
	`, chatID, status)
	if err != nil {
		return nil, fmt.Errorf("tasks by status: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("tasks by status: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ResetStuckTasks resets every task in the Fetched or Started state back to
// Waiting. It exists independently of the truncate-on-Open behavior: a
// future mode that preserves the queue across restarts can call this
// instead of wiping the table, and it is exercised directly by tests that
// never go through Open's truncate path.
func (s *Store) ResetStuckTasks(ctx context.Context) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET status = ?, current_length = 0, updated_at = CURRENT_TIMESTAMP
			WHERE status IN (?, ?)
		`, StatusWaiting, StatusFetched, StatusStarted)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return affected, nil
}

func (s *Store) withTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const taskSelectColumns = `
	SELECT id, cmd_type, filename, root_path, COALESCE(url, ''), upload_url,
		current_length, total_length, chat_id, chat_bot_hex, chat_user_hex,
		COALESCE(chat_origin_hex, ''), message_id, message_indicator_id,
		COALESCE(message_origin_id, 0), status, auto_delete, content_type, trigger_text, source_file_id
	`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.CmdType, &t.Filename, &t.RootPath, &t.URL, &t.UploadURL,
		&t.CurrentLength, &t.TotalLength, &t.ChatID, &t.ChatBotHex, &t.ChatUserHex,
		&t.ChatOriginHex, &t.MessageID, &t.MessageIndicatorID,
		&t.MessageOriginID, &t.Status, &t.AutoDelete, &t.ContentType, &t.TriggerText, &t.SourceFileID,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
