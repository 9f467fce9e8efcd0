package scheduler

import "time"

// Trigger determines when a task fires: either a cron expression (recurring)
// or a single absolute timestamp (one-time). Exactly one is set.
type Trigger struct {
	Cron string     `json:"cron,omitempty"`
	At   *time.Time `json:"at,omitempty"`
}

// IsOneTime reports whether the trigger is a single absolute timestamp.
func (t Trigger) IsOneTime() bool { return t.At != nil }

func (t Trigger) String() string {
	if t.At != nil {
		return t.At.Format(time.RFC3339)
	}
	return t.Cron
}

// CronTrigger builds a recurring trigger from a cron expression.
func CronTrigger(expr string) Trigger { return Trigger{Cron: expr} }

// OnceTrigger builds a one-time trigger for an absolute timestamp.
func OnceTrigger(at time.Time) Trigger { return Trigger{At: &at} }

// Task is a persisted scheduled action bound to a channel.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Trigger     Trigger    `json:"trigger"`
	Instruction string     `json:"instruction"`
	ChannelID   string     `json:"channelId"`
	TenantID    string     `json:"tenantId"`
	Transport   string     `json:"transport"`
	OneTime     bool       `json:"oneTime"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
}
