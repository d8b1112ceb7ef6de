package store

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"
)

// Memory is the in-process StatusStore used when no Redis URL is configured.
// Records older than ttl since their last write are dropped lazily.
type Memory struct {
    mu      sync.Mutex
    ttl     time.Duration
    now     func() time.Time
    entries map[string]memoryEntry
}

type memoryEntry struct {
    status  Status
    written time.Time
}

func NewMemory(ttl time.Duration) *Memory {
    return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Set(_ context.Context, jobID string, st Status) error {
    md, err := copyMetadata(st.Metadata)
    if err != nil {
        return err
    }
    st.Metadata = md
    m.mu.Lock()
    defer m.mu.Unlock()
    m.entries[jobID] = memoryEntry{status: st, written: m.now()}
    m.sweepLocked()
    return nil
}

func (m *Memory) Get(_ context.Context, jobID string) (Status, bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    e, ok := m.entries[jobID]
    if !ok {
        return Status{}, false, nil
    }
    if m.expired(e) {
        delete(m.entries, jobID)
        return Status{}, false, nil
    }
    st := e.status
    md, err := copyMetadata(st.Metadata)
    if err != nil {
        return Status{}, false, err
    }
    st.Metadata = md
    return st, true, nil
}

// Len returns the number of live records.
func (m *Memory) Len() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.sweepLocked()
    return len(m.entries)
}

func (m *Memory) expired(e memoryEntry) bool {
    return m.ttl > 0 && m.now().Sub(e.written) > m.ttl
}

func (m *Memory) sweepLocked() {
    for id, e := range m.entries {
        if m.expired(e) {
            delete(m.entries, id)
        }
    }
}

// copyMetadata deep-copies src through JSON, so callers see the same value
// types (float64 numbers, []interface{} lists) as from RedisStatus.
func copyMetadata(src map[string]interface{}) (map[string]interface{}, error) {
    if src == nil {
        return nil, nil
    }
    b, err := json.Marshal(src)
    if err != nil {
        return nil, fmt.Errorf("marshal metadata: %w", err)
    }
    var dst map[string]interface{}
    if err := json.Unmarshal(b, &dst); err != nil {
        return nil, fmt.Errorf("unmarshal metadata: %w", err)
    }
    return dst, nil
}
