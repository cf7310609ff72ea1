package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task представляет асинхронную задачу обработки книги
type Task struct {
	ID        uuid.UUID
	BookID    string
	Status    TaskStatus
	Progress  int
	Message   string
	Result    interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
	Cancel    context.CancelFunc
}

// Reporter позволяет задаче сообщать о своем прогрессе во время выполнения
type Reporter interface {
	Report(progress int, message string)
}

// TaskFunc представляет функцию, выполняемую в задаче. Через reporter задача
// сообщает промежуточный прогресс (0-100).
type TaskFunc func(ctx context.Context, reporter Reporter) (interface{}, error)

// Notifier интерфейс для отправки уведомлений о прогрессе задачи
type Notifier interface {
	NotifyProgress(bookID string, status string, progress int, message string)
}

// Manager управляет асинхронными задачами обработки книг
type Manager struct {
	tasks    map[uuid.UUID]*Task
	byBook   map[string]uuid.UUID
	mu       sync.RWMutex
	maxTasks int
	wg       sync.WaitGroup
	notifier Notifier
}

// Config содержит конфигурацию для Manager
type Config struct {
	MaxTasks int
}

// New создает новый экземпляр Manager
func New(cfg Config) *Manager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	return &Manager{
		tasks:    make(map[uuid.UUID]*Task),
		byBook:   make(map[string]uuid.UUID),
		maxTasks: maxTasks,
	}
}

// SetNotifier устанавливает получателя уведомлений о прогрессе
func (m *Manager) SetNotifier(notifier Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = notifier
}

// Submit создает и запускает новую задачу для книги. Задача получает
// независимый контекст: завершение HTTP-запроса не отменяет обработку.
func (m *Manager) Submit(ctx context.Context, bookID string, taskFunc TaskFunc) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, task := range m.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			active++
		}
	}
	if active >= m.maxTasks {
		return uuid.UUID{}, errors.New("превышено максимальное количество активных задач")
	}

	taskID := uuid.New()
	baseCtx, cancel := context.WithCancel(context.Background())
	taskCtx := log.Ctx(ctx).WithContext(baseCtx)

	task := &Task{
		ID:        taskID,
		BookID:    bookID,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Cancel:    cancel,
	}
	m.tasks[taskID] = task
	m.byBook[bookID] = taskID

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runTask(taskCtx, task, taskFunc)
	}()

	return taskID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (m *Manager) runTask(ctx context.Context, task *Task, taskFunc TaskFunc) {
	m.updateStatus(ctx, task, TaskStatusRunning, 0, "Задача запущена")

	result, err := taskFunc(ctx, &taskReporter{m: m, ctx: ctx, task: task})

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Msg("Контекст задачи был отменен")
			m.updateStatus(ctx, task, TaskStatusCancelled, 100, "Задача отменена")
		} else {
			log.Ctx(ctx).Error().Err(ctx.Err()).Str("taskID", task.ID.String()).Msg("Ошибка контекста задачи")
			m.updateStatus(ctx, task, TaskStatusFailed, 100, fmt.Sprintf("Ошибка контекста: %v", ctx.Err()))
		}
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("taskID", task.ID.String()).Msg("Задача завершилась с ошибкой")
		m.updateStatus(ctx, task, TaskStatusFailed, 100, fmt.Sprintf("Ошибка: %v", err))
		return
	}

	m.mu.Lock()
	task.Result = result
	m.mu.Unlock()
	log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Msg("Задача успешно выполнена")
	m.updateStatus(ctx, task, TaskStatusCompleted, 100, "Задача успешно выполнена")
}

type taskReporter struct {
	m    *Manager
	ctx  context.Context
	task *Task
}

func (r *taskReporter) Report(progress int, message string) {
	r.m.updateStatus(r.ctx, r.task, TaskStatusRunning, progress, message)
}

// updateStatus обновляет статус задачи и отправляет уведомления
func (m *Manager) updateStatus(ctx context.Context, task *Task, status TaskStatus, progress int, message string) {
	m.mu.Lock()
	task.Status = status
	task.Progress = progress
	task.Message = message
	task.UpdatedAt = time.Now()
	notifier := m.notifier
	m.mu.Unlock()

	if notifier != nil {
		notifier.NotifyProgress(task.BookID, string(status), progress, message)
	}

	log.Ctx(ctx).Info().
		Str("taskID", task.ID.String()).
		Str("bookID", task.BookID).
		Str("newStatus", string(status)).
		Int("progress", progress).
		Str("message", message).
		Msg("Статус задачи обновлен")
}

// GetTask возвращает снимок состояния задачи по ID
func (m *Manager) GetTask(taskID uuid.UUID) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("задача с ID %s не найдена", taskID)
	}
	cp := *task
	return &cp, nil
}

// GetTaskByBook возвращает снимок задачи, обрабатывающей указанную книгу
func (m *Manager) GetTaskByBook(bookID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	taskID, ok := m.byBook[bookID]
	if !ok {
		return nil, fmt.Errorf("для книги %s нет задачи", bookID)
	}
	cp := *m.tasks[taskID]
	return &cp, nil
}

// CancelTask отменяет выполнение задачи
func (m *Manager) CancelTask(taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("задача с ID %s не найдена", taskID)
	}
	if task.Status != TaskStatusPending && task.Status != TaskStatusRunning {
		return fmt.Errorf("невозможно отменить задачу в статусе %s", task.Status)
	}
	if task.Cancel != nil {
		task.Cancel()
	}
	task.Status = TaskStatusCancelled
	task.Message = "Задача отменена пользователем"
	task.UpdatedAt = time.Now()
	return nil
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (m *Manager) CleanupTasks(age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, task := range m.tasks {
		if (task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed || task.Status == TaskStatusCancelled) &&
			now.Sub(task.UpdatedAt) > age {
			delete(m.tasks, id)
			if m.byBook[task.BookID] == id {
				delete(m.byBook, task.BookID)
			}
		}
	}
}

// Shutdown ожидает завершения всех задач с таймаутом
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, task := range m.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			if task.Cancel != nil {
				task.Cancel()
			}
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("таймаут при ожидании завершения задач")
	}
}
