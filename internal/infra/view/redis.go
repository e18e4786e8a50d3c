package view

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/widget"

	"github.com/redis/go-redis/v9"
)

// SessionScreen is a screen mirrored into Redis by another pdftrack process.
type SessionScreen struct {
	State     string
	JobID     string
	Screen    widget.Screen
	UpdatedAt time.Time
}

type redisView struct {
	rdb     redis.Cmdable
	session string
	ttl     time.Duration
}

// NewRedisView mirrors the screen of one CLI session into a hash that lives
// for ttl after the last render.
func NewRedisView(rdb redis.Cmdable, session string, ttl time.Duration) *redisView {
	return &redisView{rdb: rdb, session: session, ttl: ttl}
}

func (v *redisView) Render(ctx context.Context, m widget.Model) error {
	hk := screenKey(v.session)
	s := m.Screen

	pipe := v.rdb.TxPipeline()
	pipe.HSet(ctx, hk,
		"state", m.State.String(),
		"job_id", m.JobID,
		"file_label", s.FileLabel,
		"submit_enabled", s.SubmitEnabled,
		"progress_visible", s.ProgressVisible,
		"progress", s.Progress,
		"progress_message", s.ProgressMessage,
		"result_visible", s.ResultVisible,
		"download_url", s.DownloadURL,
		"error_visible", s.ErrorVisible,
		"error_message", s.ErrorMessage,
		"updated_at", time.Now().UnixNano(),
	)
	pipe.Expire(ctx, hk, v.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis render: %w", err)
	}
	return nil
}

// Alert stores the notification under a key that expires with the alert,
// so readers see it only while it would be on screen.
func (v *redisView) Alert(ctx context.Context, a domain.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := v.rdb.Set(ctx, alertKey(v.session), data, a.TTL).Err(); err != nil {
		return fmt.Errorf("redis alert: %w", err)
	}
	return nil
}

func LoadSessionScreen(ctx context.Context, rdb redis.Cmdable, session string) (SessionScreen, bool, error) {
	res, err := rdb.HGetAll(ctx, screenKey(session)).Result()
	if err != nil {
		return SessionScreen{}, false, fmt.Errorf("redis load screen: %w", err)
	}
	if len(res) == 0 {
		return SessionScreen{}, false, nil
	}

	ss := SessionScreen{
		State: res["state"],
		JobID: res["job_id"],
		Screen: widget.Screen{
			FileLabel:       res["file_label"],
			SubmitEnabled:   parseBool(res["submit_enabled"]),
			ProgressVisible: parseBool(res["progress_visible"]),
			ProgressMessage: res["progress_message"],
			ResultVisible:   parseBool(res["result_visible"]),
			DownloadURL:     res["download_url"],
			ErrorVisible:    parseBool(res["error_visible"]),
			ErrorMessage:    res["error_message"],
		},
	}

	if n, err := strconv.Atoi(res["progress"]); err == nil {
		ss.Screen.Progress = n
	}
	if n, err := strconv.ParseInt(res["updated_at"], 10, 64); err == nil {
		ss.UpdatedAt = time.Unix(0, n)
	}

	return ss, true, nil
}

// LoadAlert returns the alert still on screen for session, if any.
func LoadAlert(ctx context.Context, rdb redis.Cmdable, session string) (domain.Alert, bool, error) {
	data, err := rdb.Get(ctx, alertKey(session)).Bytes()
	if err == redis.Nil {
		return domain.Alert{}, false, nil
	}
	if err != nil {
		return domain.Alert{}, false, fmt.Errorf("redis load alert: %w", err)
	}

	var a domain.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Alert{}, false, fmt.Errorf("unmarshal alert: %w", err)
	}
	return a, true, nil
}

// go-redis stores bools as "1"/"0".
func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func screenKey(session string) string {
	return "pdftrack:screen:" + session
}

func alertKey(session string) string {
	return "pdftrack:alert:" + session
}
