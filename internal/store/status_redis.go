package store

import (
    "context"
    "encoding/json"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Job states recorded in Status.Status.
const (
    StatusQueued    = "queued"
    StatusRunning   = "running"
    StatusCompleted = "completed"
    StatusFailed    = "failed"
)

const DefaultPrefix = "pagecomposer:job:"

type Status struct {
    Status      string                 `json:"status"`
    Progress    int                    `json:"progress"`
    Message     string                 `json:"message"`
    CurrentPage int                    `json:"current_page"`
    TotalPages  int                    `json:"total_pages"`
    Start       *time.Time             `json:"start_time,omitempty"`
    End         *time.Time             `json:"end_time,omitempty"`
    Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Terminal reports whether the job has finished one way or the other.
func (s Status) Terminal() bool {
    return s.Status == StatusCompleted || s.Status == StatusFailed
}

// StatusStore keeps one status record per job id.
type StatusStore interface {
    Set(ctx context.Context, jobID string, st Status) error
    Get(ctx context.Context, jobID string) (Status, bool, error)
}

type RedisStatus struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(redisURL, prefix string, ttl time.Duration) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil {
        return nil, fmt.Errorf("parse redis url: %w", err)
    }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil {
        _ = c.Close()
        return nil, fmt.Errorf("ping redis: %w", err)
    }
    return newRedisStatus(c, prefix, ttl), nil
}

func newRedisStatus(c *redis.Client, prefix string, ttl time.Duration) *RedisStatus {
    if prefix == "" {
        prefix = DefaultPrefix
    }
    return &RedisStatus{client: c, keyNS: prefix, ttl: ttl}
}

func (s *RedisStatus) key(jobID string) string { return s.keyNS + jobID + ":status" }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    m, err := statusFields(st)
    if err != nil {
        return err
    }
    key := s.key(jobID)
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, key, m)
    if s.ttl > 0 {
        pipe.Expire(ctx, key, s.ttl)
    }
    if _, err := pipe.Exec(ctx); err != nil {
        return fmt.Errorf("store status %s: %w", jobID, err)
    }
    return nil
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil {
        return Status{}, false, fmt.Errorf("load status %s: %w", jobID, err)
    }
    if len(res) == 0 {
        return Status{}, false, nil
    }
    return parseStatus(res), true, nil
}

// statusFields flattens st into hash fields. Metadata is stored as one JSON
// field, so numbers in it read back as float64.
func statusFields(st Status) (map[string]interface{}, error) {
    m := map[string]interface{}{
        "status":       st.Status,
        "progress":     st.Progress,
        "message":      st.Message,
        "current_page": st.CurrentPage,
        "total_pages":  st.TotalPages,
    }
    if st.Start != nil {
        m["start"] = st.Start.Format(time.RFC3339Nano)
    }
    if st.End != nil {
        m["end"] = st.End.Format(time.RFC3339Nano)
    }
    if st.Metadata != nil {
        b, err := json.Marshal(st.Metadata)
        if err != nil {
            return nil, fmt.Errorf("marshal metadata: %w", err)
        }
        m["metadata"] = string(b)
    }
    return m, nil
}

func parseStatus(res map[string]string) Status {
    st := Status{
        Status:      res["status"],
        Message:     res["message"],
        Progress:    atoi(res["progress"]),
        CurrentPage: atoi(res["current_page"]),
        TotalPages:  atoi(res["total_pages"]),
    }
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
            st.Start = &t
        }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
            st.End = &t
        }
    }
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    return st
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// atoi parses a hash field, treating missing or malformed values as 0.
func atoi(v string) int {
    n, err := strconv.Atoi(v)
    if err != nil {
        return 0
    }
    return n
}
