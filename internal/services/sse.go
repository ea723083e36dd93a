package services

import (
	"errors"
	"sync"
	"time"
)

// Import task states published on the event hub.
const (
	ImportQueued    = "queued"
	ImportRunning   = "running"
	ImportCompleted = "completed"
	ImportFailed    = "failed"
)

// ImportEvent is a status update of an import task.
type ImportEvent struct {
	TaskID      string     `json:"task_id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	RequestedBy uint       `json:"requested_by"`
	Rows        int        `json:"rows,omitempty"`
	Answers     int        `json:"answers,omitempty"`
	Error       string     `json:"error,omitempty"`
	RowErrors   []RowError `json:"row_errors,omitempty"`
	At          time.Time  `json:"at"`
}

// ImportEventHub fans import events out to SSE subscribers.
type ImportEventHub struct {
	clients map[string]chan ImportEvent
	mu      sync.RWMutex
}

func NewImportEventHub() *ImportEventHub {
	return &ImportEventHub{
		clients: make(map[string]chan ImportEvent),
	}
}

// Subscribe registers a client and returns its event channel.
func (h *ImportEventHub) Subscribe(clientID string) <-chan ImportEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan ImportEvent, 100)
	h.clients[clientID] = ch
	return ch
}

func (h *ImportEventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts event. Clients with a full buffer miss it.
func (h *ImportEventHub) Publish(event ImportEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *ImportEventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var (
	globalImportHub *ImportEventHub
	importHubOnce   sync.Once
)

func GetImportHub() *ImportEventHub {
	importHubOnce.Do(func() {
		globalImportHub = NewImportEventHub()
	})
	return globalImportHub
}

// publishImport reports the state of task on the global hub.
func publishImport(task *ImportTask, status string, result *ImportResult, err error) {
	event := ImportEvent{
		TaskID:      task.ID,
		Type:        task.Type,
		Status:      status,
		RequestedBy: task.RequestedBy,
	}
	if result != nil {
		event.Rows = result.Rows
		event.Answers = result.Answers
	}
	if err != nil {
		event.Error = err.Error()
		var importErr *ImportError
		if errors.As(err, &importErr) {
			event.RowErrors = importErr.Rows
		}
	}
	GetImportHub().Publish(event)
}
