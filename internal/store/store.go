// Package store defines the Task Store contract (spec.md §4.4) and a
// fully tested in-memory implementation. The SQLite-backed production
// implementation is an external collaborator per spec.md §1's Non-goals;
// this package exists so the scheduler and worker can be exercised
// end-to-end against a real (if not persistent) TaskRepository, the same
// way the teacher's Storage[T] generic wraps a swappable disk-backed
// state object behind a narrow interface.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pipeguild/pipeline/internal/taskmodel"
)

// TaskRepository is the persistence contract the scheduler and worker
// depend on. Implementations must be safe for concurrent use.
type TaskRepository interface {
	CreateTask(ctx context.Context, title, description, repoPath, creator, notify string) (int64, error)
	GetTask(ctx context.Context, id int64) (taskmodel.Task, error)
	UpdateStatus(ctx context.Context, id int64, status taskmodel.Status) error
	FailTask(ctx context.Context, id int64, detail string) error
	RetryTask(ctx context.Context, id int64) error
	ListActiveTasks(ctx context.Context) ([]taskmodel.Task, error)

	GetSession(ctx context.Context, folder, persona string) (string, bool, error)
	SetSession(ctx context.Context, folder, persona, token string) error
	ExpireSessions(ctx context.Context, maxAgeHours uint64) error

	GetPipelineStats(ctx context.Context) (taskmodel.PipelineStats, error)
	GetUnansweredGroups(ctx context.Context, maxAgeSeconds int64, now time.Time) ([]taskmodel.UnansweredGroup, error)

	// RecordGroupMessage is a test/bootstrap hook for seeding chat history
	// that GetUnansweredGroups queries; production message ingestion is
	// owned by the messaging-bridge collaborators.
	RecordGroupMessage(ctx context.Context, msg taskmodel.GroupMessage) error
}

// MemoryStore is an in-memory TaskRepository. It is the reference
// implementation used by this module's own tests and is safe for
// concurrent access via a single coarse mutex, mirroring the teacher's
// Storage[T] preference for simplicity over fine-grained locking at this
// scale.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	tasks    map[int64]taskmodel.Task
	sessions map[sessionKey]taskmodel.AgentSession
	messages []taskmodel.GroupMessage
}

type sessionKey struct {
	folder  string
	persona string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[int64]taskmodel.Task),
		sessions: make(map[sessionKey]taskmodel.AgentSession),
	}
}

func (m *MemoryStore) CreateTask(_ context.Context, title, description, repoPath, creator, notify string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	now := time.Now()
	m.tasks[id] = taskmodel.Task{
		ID:            id,
		Title:         title,
		Description:   description,
		RepoPath:      repoPath,
		Creator:       creator,
		NotifyChannel: notify,
		Status:        taskmodel.StatusBacklog,
		ScheduledAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return id, nil
}

func (m *MemoryStore) GetTask(_ context.Context, id int64) (taskmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return taskmodel.Task{}, fmt.Errorf("store: task %d not found", id)
	}
	return t, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id int64, status taskmodel.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("store: task %d not found", id)
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) FailTask(_ context.Context, id int64, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("store: task %d not found", id)
	}
	t.Status = taskmodel.StatusFailed
	t.LastError = detail
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) RetryTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("store: task %d not found", id)
	}
	t.AttemptCount++
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) ListActiveTasks(_ context.Context) ([]taskmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []taskmodel.Task
	for _, t := range m.tasks {
		if t.Status.IsActive() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, folder, persona string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey{folder, persona}]
	if !ok {
		return "", false, nil
	}
	return s.SessionID, true, nil
}

func (m *MemoryStore) SetSession(_ context.Context, folder, persona, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey{folder, persona}] = taskmodel.AgentSession{
		FolderPath: folder,
		Persona:    persona,
		SessionID:  token,
		CreatedAt:  time.Now(),
	}
	return nil
}

// ExpireSessions deletes rows strictly older than now-maxAgeHours. Rows
// created at exactly the cutoff survive, per spec.md §4.4.
func (m *MemoryStore) ExpireSessions(_ context.Context, maxAgeHours uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)
	for key, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(m.sessions, key)
		}
	}
	return nil
}

func (m *MemoryStore) GetPipelineStats(_ context.Context) (taskmodel.PipelineStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats taskmodel.PipelineStats
	for _, t := range m.tasks {
		stats.Total++
		switch {
		case t.Status.IsActive():
			stats.Active++
		case t.Status == taskmodel.StatusMerged:
			stats.Merged++
		case t.Status == taskmodel.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *MemoryStore) RecordGroupMessage(_ context.Context, msg taskmodel.GroupMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// GetUnansweredGroups implements spec.md §4.4's definition: a group's
// newest user message must be strictly newer (lexicographically, on the
// stored ISO-8601 string) than its newest bot message, and that user
// message must be within maxAgeSeconds of now. Groups with no user
// messages never qualify.
func (m *MemoryStore) GetUnansweredGroups(_ context.Context, maxAgeSeconds int64, now time.Time) ([]taskmodel.UnansweredGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type latest struct {
		user string
		bot  string
		have bool
	}
	byChat := make(map[string]*latest)
	for _, msg := range m.messages {
		l, ok := byChat[msg.ChatID]
		if !ok {
			l = &latest{}
			byChat[msg.ChatID] = l
		}
		if msg.IsFromBot {
			if msg.Timestamp > l.bot {
				l.bot = msg.Timestamp
			}
		} else {
			if !l.have || msg.Timestamp > l.user {
				l.user = msg.Timestamp
				l.have = true
			}
		}
	}

	cutoff := now.Add(-time.Duration(maxAgeSeconds) * time.Second)
	cutoffStr := cutoff.Format(time.RFC3339)

	var out []taskmodel.UnansweredGroup
	for chatID, l := range byChat {
		if !l.have {
			continue
		}
		if l.user <= l.bot {
			continue
		}
		if l.user <= cutoffStr {
			continue
		}
		out = append(out, taskmodel.UnansweredGroup{ChatID: chatID, LastUserTS: l.user})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}
