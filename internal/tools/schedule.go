package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/steward-bot/steward/internal/scheduler"
	"github.com/steward-bot/steward/internal/timeparse"
)

// Scheduler is the task engine surface the schedule tool drives.
type Scheduler interface {
	Schedule(req scheduler.ScheduleRequest) (string, error)
	List() []scheduler.Task
	Remove(taskID string) error
	UpdateSchedule(taskID string, t scheduler.Trigger) error
	SetEnabled(taskID string, enabled bool) error
}

// ManageScheduleTool adds, lists, reschedules and removes channel tasks.
// One-time tasks accept a natural-language time phrase; recurring tasks take
// a cron expression.
type ManageScheduleTool struct {
	scheduler Scheduler
	timezone  string // default zone for phrases that do not carry one
}

func NewManageScheduleTool(s Scheduler, timezone string) *ManageScheduleTool {
	return &ManageScheduleTool{scheduler: s, timezone: timezone}
}

func (t *ManageScheduleTool) Name() string { return "manage_schedule" }

func (t *ManageScheduleTool) Description() string {
	return "Add, list, reschedule, remove, enable or disable scheduled tasks for this channel"
}

func (t *ManageScheduleTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["add_once", "add_recurring", "list", "remove", "reschedule", "enable", "disable"],
				"description": "Action to perform"
			},
			"name": {
				"type": "string",
				"description": "Human-readable task name (for add actions)"
			},
			"when": {
				"type": "string",
				"description": "Natural-language time, e.g. 'tomorrow at 9am' (for add_once or rescheduling a one-time task)"
			},
			"cron": {
				"type": "string",
				"description": "Cron expression, e.g. '0 9 * * 1-5' (for add_recurring or rescheduling a recurring task)"
			},
			"timezone": {
				"type": "string",
				"description": "IANA timezone for the 'when' phrase; defaults to the configured zone"
			},
			"instruction": {
				"type": "string",
				"description": "What the task should do when it fires (for add actions)"
			},
			"task_id": {
				"type": "string",
				"description": "Task id (for remove, reschedule, enable, disable)"
			}
		},
		"required": ["action"]
	}`)
}

type scheduleParams struct {
	Action      string `json:"action"`
	Name        string `json:"name"`
	When        string `json:"when"`
	Cron        string `json:"cron"`
	Timezone    string `json:"timezone"`
	Instruction string `json:"instruction"`
	TaskID      string `json:"task_id"`

	// Routing context, injected by the caller rather than the model.
	ChannelID string `json:"channel_id"`
	TenantID  string `json:"tenant_id"`
	Transport string `json:"transport"`
}

func (t *ManageScheduleTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p scheduleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	switch p.Action {
	case "add_once":
		if p.When == "" || p.Instruction == "" {
			return "", fmt.Errorf("when and instruction are required for add_once")
		}
		at, err := t.resolveWhen(p.When, p.Timezone)
		if err != nil {
			return "", err
		}
		id, err := t.scheduler.Schedule(scheduler.ScheduleRequest{
			Name:        p.Name,
			Trigger:     scheduler.OnceTrigger(at),
			Instruction: p.Instruction,
			ChannelID:   p.ChannelID,
			TenantID:    p.TenantID,
			Transport:   p.Transport,
		})
		if err != nil {
			return "", fmt.Errorf("failed to schedule task: %w", err)
		}
		return fmt.Sprintf("Task %s scheduled for %s", id, at.Format(time.RFC1123)), nil

	case "add_recurring":
		if p.Cron == "" || p.Instruction == "" {
			return "", fmt.Errorf("cron and instruction are required for add_recurring")
		}
		id, err := t.scheduler.Schedule(scheduler.ScheduleRequest{
			Name:        p.Name,
			Trigger:     scheduler.CronTrigger(p.Cron),
			Instruction: p.Instruction,
			ChannelID:   p.ChannelID,
			TenantID:    p.TenantID,
			Transport:   p.Transport,
		})
		if err != nil {
			return "", fmt.Errorf("failed to schedule task: %w", err)
		}
		return fmt.Sprintf("Task %s scheduled on %q", id, p.Cron), nil

	case "list":
		return t.listChannel(p.ChannelID), nil

	case "remove":
		if p.TaskID == "" {
			return "", fmt.Errorf("task_id is required for remove")
		}
		if err := t.scheduler.Remove(p.TaskID); err != nil {
			return "", fmt.Errorf("failed to remove task: %w", err)
		}
		return fmt.Sprintf("Task %s removed", p.TaskID), nil

	case "reschedule":
		if p.TaskID == "" {
			return "", fmt.Errorf("task_id is required for reschedule")
		}
		trigger, err := t.buildTrigger(p)
		if err != nil {
			return "", err
		}
		if err := t.scheduler.UpdateSchedule(p.TaskID, trigger); err != nil {
			return "", fmt.Errorf("failed to reschedule task: %w", err)
		}
		return fmt.Sprintf("Task %s rescheduled to %s", p.TaskID, trigger), nil

	case "enable", "disable":
		if p.TaskID == "" {
			return "", fmt.Errorf("task_id is required for %s", p.Action)
		}
		enabled := p.Action == "enable"
		if err := t.scheduler.SetEnabled(p.TaskID, enabled); err != nil {
			return "", fmt.Errorf("failed to %s task: %w", p.Action, err)
		}
		return fmt.Sprintf("Task %s %sd", p.TaskID, p.Action), nil

	default:
		return "", fmt.Errorf("invalid action: %s", p.Action)
	}
}

func (t *ManageScheduleTool) buildTrigger(p scheduleParams) (scheduler.Trigger, error) {
	switch {
	case p.When != "" && p.Cron != "":
		return scheduler.Trigger{}, fmt.Errorf("give either when or cron, not both")
	case p.When != "":
		at, err := t.resolveWhen(p.When, p.Timezone)
		if err != nil {
			return scheduler.Trigger{}, err
		}
		return scheduler.OnceTrigger(at), nil
	case p.Cron != "":
		return scheduler.CronTrigger(p.Cron), nil
	default:
		return scheduler.Trigger{}, fmt.Errorf("either when or cron is required")
	}
}

func (t *ManageScheduleTool) resolveWhen(when, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = t.timezone
	}
	at, err := timeparse.Resolve(when, timezone, time.Time{})
	if err != nil {
		return time.Time{}, fmt.Errorf("could not resolve %q: %w", when, err)
	}
	return at, nil
}

func (t *ManageScheduleTool) listChannel(channelID string) string {
	var b strings.Builder
	count := 0
	for _, task := range t.scheduler.List() {
		if channelID != "" && task.ChannelID != channelID {
			continue
		}
		count++
		state := "enabled"
		if !task.Enabled {
			state = "disabled"
		}
		lastRun := "never"
		if task.LastRun != nil {
			lastRun = task.LastRun.Format(time.RFC1123)
		}
		fmt.Fprintf(&b, "%s  %s  [%s]  %s  last run: %s\n",
			task.ID, task.Name, state, task.Trigger.String(), lastRun)
	}
	if count == 0 {
		return "No scheduled tasks for this channel."
	}
	return strings.TrimRight(b.String(), "\n")
}
