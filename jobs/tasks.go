package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meridianfit/meridian/internal/push"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPushBroadcast fans a message out to every registered device, or to
	// a single client when ProfileID is set.
	TaskPushBroadcast = "push:broadcast"
	// TaskSendInvite delivers an invitation email with a one-time code.
	TaskSendInvite = "mail:invite"
	// CronCheckInReminder is the weekly check-in reminder schedule (Mondays 09:00 UTC).
	CronCheckInReminder = "0 9 * * 1"
)

// BroadcastPayload carries a push message through the queue.
type BroadcastPayload struct {
	ProfileID string       `json:"profile_id,omitempty"`
	Message   push.Message `json:"message"`
}

// InvitePayload carries an invitation email through the queue.
type InvitePayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// NewBroadcastTask constructs an Asynq task for a push fan-out.
func NewBroadcastTask(payload BroadcastPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPushBroadcast, data), nil
}

// NewInviteTask constructs an Asynq task for an invitation email.
func NewInviteTask(payload InvitePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendInvite, data), nil
}

// ReminderTask builds the recurring check-in reminder broadcast.
func ReminderTask() (*asynq.Task, error) {
	return NewBroadcastTask(BroadcastPayload{Message: push.Message{
		Title: "Weekly check-in",
		Body:  "Time for your weekly check-in. Log your weight, energy and adherence.",
		URL:   "/dashboard/check-in",
	}})
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueBroadcast enqueues a push fan-out to all devices.
func (c *Client) EnqueueBroadcast(ctx context.Context, msg push.Message) (*asynq.TaskInfo, error) {
	task, err := NewBroadcastTask(BroadcastPayload{Message: msg})
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueNotify enqueues a push delivery to one client's devices.
func (c *Client) EnqueueNotify(ctx context.Context, profileID string, msg push.Message) (*asynq.TaskInfo, error) {
	task, err := NewBroadcastTask(BroadcastPayload{ProfileID: profileID, Message: msg})
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// NotifyInvite enqueues the invitation email. Satisfies profiles.InviteNotifier.
func (c *Client) NotifyInvite(ctx context.Context, email, code string) error {
	task, err := NewInviteTask(InvitePayload{Email: email, Code: code})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
