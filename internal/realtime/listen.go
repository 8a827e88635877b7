package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ListenOptions configures one subscribe, wait, unsubscribe cycle
type ListenOptions struct {
	Channel     string        // channel name, joined as "realtime:<Channel>"
	Schema      string        // schema for postgres_changes, default "public"
	Table       string        // table for postgres_changes; empty subscribes to broadcast only
	AccessToken string        // JWT sent with the join
	Wait        time.Duration // observation window after the join is acknowledged
}

// ListenResult reports what happened while subscribed
type ListenResult struct {
	Topic  string
	Events int
	Waited time.Duration
}

// Listen dials url, joins the channel, waits for opts.Wait (or until ctx is
// done) counting channel events, then leaves and closes the connection.
// A missing event is not an error.
func Listen(ctx context.Context, url string, opts ListenOptions, logger *slog.Logger) (ListenResult, error) {
	if opts.Channel == "" {
		opts.Channel = "keepalive"
	}
	topic := "realtime:" + opts.Channel
	result := ListenResult{Topic: topic}

	conn, err := Dial(ctx, url, logger)
	if err != nil {
		return result, err
	}
	defer conn.Close()

	joinRef, early, err := conn.Join(ctx, topic, joinPayload(opts))
	if err != nil {
		return result, err
	}
	result.Events = early

	logger.Debug("Realtime channel joined", "topic", topic, "wait", opts.Wait.String())

	start := time.Now()
	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	var waitErr error
wait:
	for {
		select {
		case <-ctx.Done():
			waitErr = fmt.Errorf("realtime: wait interrupted: %w", ctx.Err())
			break wait
		case <-timer.C:
			break wait
		case <-heartbeat.C:
			if err := conn.Heartbeat(); err != nil {
				logger.Debug("Realtime heartbeat failed", "error", err)
			}
		case msg, ok := <-conn.incoming:
			if !ok {
				result.Waited = time.Since(start)
				return result, conn.closedErr()
			}
			if msg.Topic == topic && isChannelEvent(msg) {
				result.Events++
				logger.Debug("Realtime event", "topic", topic, "event", msg.Event)
			}
		}
	}
	result.Waited = time.Since(start)

	if err := conn.Leave(topic, joinRef); err != nil {
		return result, err
	}
	return result, waitErr
}

func joinPayload(opts ListenOptions) map[string]interface{} {
	changes := []interface{}{}
	if opts.Table != "" {
		schema := opts.Schema
		if schema == "" {
			schema = "public"
		}
		changes = append(changes, map[string]interface{}{
			"event":  "*",
			"schema": schema,
			"table":  opts.Table,
		})
	}

	payload := map[string]interface{}{
		"config": map[string]interface{}{
			"broadcast":        map[string]interface{}{"ack": false, "self": false},
			"presence":         map[string]interface{}{"key": ""},
			"postgres_changes": changes,
			"private":          false,
		},
	}
	if opts.AccessToken != "" {
		payload["access_token"] = opts.AccessToken
	}
	return payload
}
