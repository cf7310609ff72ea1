package taskmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyProgress(bookID, status string, progress int, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, status)
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func waitForStatus(t *testing.T, m *Manager, bookID string, want TaskStatus) *Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := m.GetTaskByBook(bookID)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("задача для книги %s не достигла статуса %s", bookID, want)
	return nil
}

func TestManager_Submit(t *testing.T) {
	t.Run("Успешная задача сохраняет результат", func(t *testing.T) {
		m := New(Config{MaxTasks: 2})

		_, err := m.Submit(context.Background(), "book-1", func(ctx context.Context, r Reporter) (interface{}, error) {
			r.Report(50, "halfway")
			return "script-id", nil
		})
		require.NoError(t, err)

		task := waitForStatus(t, m, "book-1", TaskStatusCompleted)
		assert.Equal(t, "script-id", task.Result)
		assert.Equal(t, 100, task.Progress)
	})

	t.Run("Ошибка задачи переводит ее в failed", func(t *testing.T) {
		m := New(Config{MaxTasks: 2})

		_, err := m.Submit(context.Background(), "book-2", func(ctx context.Context, r Reporter) (interface{}, error) {
			return nil, errors.New("boom")
		})
		require.NoError(t, err)

		task := waitForStatus(t, m, "book-2", TaskStatusFailed)
		assert.Contains(t, task.Message, "boom")
	})

	t.Run("Превышение лимита активных задач", func(t *testing.T) {
		m := New(Config{MaxTasks: 1})
		release := make(chan struct{})

		_, err := m.Submit(context.Background(), "book-3", func(ctx context.Context, r Reporter) (interface{}, error) {
			<-release
			return nil, nil
		})
		require.NoError(t, err)

		_, err = m.Submit(context.Background(), "book-4", func(ctx context.Context, r Reporter) (interface{}, error) {
			return nil, nil
		})
		assert.Error(t, err)
		close(release)
	})

	t.Run("Нотификатор получает обновления статуса", func(t *testing.T) {
		m := New(Config{MaxTasks: 2})
		notifier := &recordingNotifier{}
		m.SetNotifier(notifier)

		_, err := m.Submit(context.Background(), "book-5", func(ctx context.Context, r Reporter) (interface{}, error) {
			r.Report(30, "working")
			return nil, nil
		})
		require.NoError(t, err)

		waitForStatus(t, m, "book-5", TaskStatusCompleted)
		statuses := notifier.statuses()
		assert.Contains(t, statuses, string(TaskStatusRunning))
		assert.Equal(t, string(TaskStatusCompleted), statuses[len(statuses)-1])
	})
}

func TestManager_CleanupTasks(t *testing.T) {
	m := New(Config{MaxTasks: 2})

	_, err := m.Submit(context.Background(), "book-6", func(ctx context.Context, r Reporter) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, m, "book-6", TaskStatusCompleted)

	m.CleanupTasks(0)
	_, err = m.GetTaskByBook("book-6")
	assert.Error(t, err)
}
