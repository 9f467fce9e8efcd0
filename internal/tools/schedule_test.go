package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-bot/steward/internal/scheduler"
)

type fakeScheduler struct {
	tasks     []scheduler.Task
	removed   []string
	updated   map[string]scheduler.Trigger
	enabled   map[string]bool
	schedErr  error
	nextID    string
	lastReq   scheduler.ScheduleRequest
	scheduled int
}

func (f *fakeScheduler) Schedule(req scheduler.ScheduleRequest) (string, error) {
	if f.schedErr != nil {
		return "", f.schedErr
	}
	f.scheduled++
	f.lastReq = req
	if f.nextID == "" {
		f.nextID = "task-1"
	}
	return f.nextID, nil
}

func (f *fakeScheduler) List() []scheduler.Task { return f.tasks }

func (f *fakeScheduler) Remove(taskID string) error {
	f.removed = append(f.removed, taskID)
	return nil
}

func (f *fakeScheduler) UpdateSchedule(taskID string, t scheduler.Trigger) error {
	if f.updated == nil {
		f.updated = make(map[string]scheduler.Trigger)
	}
	f.updated[taskID] = t
	return nil
}

func (f *fakeScheduler) SetEnabled(taskID string, enabled bool) error {
	if f.enabled == nil {
		f.enabled = make(map[string]bool)
	}
	f.enabled[taskID] = enabled
	return nil
}

func execTool(t *testing.T, tool *ManageScheduleTool, params map[string]any) (string, error) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return tool.Execute(context.Background(), raw)
}

func TestAddOnceResolvesNaturalLanguage(t *testing.T) {
	fake := &fakeScheduler{nextID: "t-abc"}
	tool := NewManageScheduleTool(fake, "UTC")

	out, err := execTool(t, tool, map[string]any{
		"action":      "add_once",
		"name":        "reminder",
		"when":        "in 2 hours",
		"instruction": "remind the team about standup",
		"channel_id":  "chan-1",
		"tenant_id":   "guild-1",
		"transport":   "discord",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "t-abc")

	require.NotNil(t, fake.lastReq.Trigger.At)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *fake.lastReq.Trigger.At, time.Minute)
	assert.Equal(t, "chan-1", fake.lastReq.ChannelID)
	assert.Equal(t, "guild-1", fake.lastReq.TenantID)
	assert.Equal(t, "discord", fake.lastReq.Transport)
}

func TestAddOnceRejectsUnparseablePhrase(t *testing.T) {
	tool := NewManageScheduleTool(&fakeScheduler{}, "UTC")

	_, err := execTool(t, tool, map[string]any{
		"action":      "add_once",
		"when":        "xyzzy plugh",
		"instruction": "do something",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xyzzy plugh")
}

func TestAddRecurringPassesCronThrough(t *testing.T) {
	fake := &fakeScheduler{}
	tool := NewManageScheduleTool(fake, "UTC")

	_, err := execTool(t, tool, map[string]any{
		"action":      "add_recurring",
		"cron":        "0 9 * * 1-5",
		"instruction": "post the standup prompt",
		"channel_id":  "chan-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1-5", fake.lastReq.Trigger.Cron)
	assert.False(t, fake.lastReq.Trigger.IsOneTime())
}

func TestAddRequiresInstruction(t *testing.T) {
	tool := NewManageScheduleTool(&fakeScheduler{}, "UTC")

	_, err := execTool(t, tool, map[string]any{"action": "add_recurring", "cron": "0 9 * * *"})
	assert.Error(t, err)
	_, err = execTool(t, tool, map[string]any{"action": "add_once", "when": "in 1 hour"})
	assert.Error(t, err)
}

func TestScheduleErrorSurfaces(t *testing.T) {
	fake := &fakeScheduler{schedErr: errors.New("invalid trigger")}
	tool := NewManageScheduleTool(fake, "UTC")

	_, err := execTool(t, tool, map[string]any{
		"action":      "add_recurring",
		"cron":        "bogus",
		"instruction": "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trigger")
}

func TestListFiltersByChannel(t *testing.T) {
	lastRun := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	fake := &fakeScheduler{tasks: []scheduler.Task{
		{ID: "t1", Name: "standup", ChannelID: "chan-1", Enabled: true,
			Trigger: scheduler.CronTrigger("0 9 * * 1-5"), LastRun: &lastRun},
		{ID: "t2", Name: "digest", ChannelID: "chan-2", Enabled: false,
			Trigger: scheduler.CronTrigger("0 18 * * *")},
	}}
	tool := NewManageScheduleTool(fake, "UTC")

	out, err := execTool(t, tool, map[string]any{"action": "list", "channel_id": "chan-1"})
	require.NoError(t, err)
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "standup")
	assert.NotContains(t, out, "t2")

	out, err = execTool(t, tool, map[string]any{"action": "list", "channel_id": "chan-3"})
	require.NoError(t, err)
	assert.Equal(t, "No scheduled tasks for this channel.", out)
}

func TestRescheduleBuildsTrigger(t *testing.T) {
	fake := &fakeScheduler{}
	tool := NewManageScheduleTool(fake, "UTC")

	_, err := execTool(t, tool, map[string]any{
		"action": "reschedule", "task_id": "t1", "cron": "30 8 * * *",
	})
	require.NoError(t, err)
	assert.Equal(t, "30 8 * * *", fake.updated["t1"].Cron)

	_, err = execTool(t, tool, map[string]any{
		"action": "reschedule", "task_id": "t1",
		"when": "in 1 hour", "cron": "0 9 * * *",
	})
	require.Error(t, err, "both when and cron is ambiguous")

	_, err = execTool(t, tool, map[string]any{"action": "reschedule", "task_id": "t1"})
	require.Error(t, err, "one of when or cron is required")
}

func TestEnableDisable(t *testing.T) {
	fake := &fakeScheduler{}
	tool := NewManageScheduleTool(fake, "UTC")

	_, err := execTool(t, tool, map[string]any{"action": "disable", "task_id": "t1"})
	require.NoError(t, err)
	_, err = execTool(t, tool, map[string]any{"action": "enable", "task_id": "t2"})
	require.NoError(t, err)

	assert.False(t, fake.enabled["t1"])
	assert.True(t, fake.enabled["t2"])
}

func TestUnknownAction(t *testing.T) {
	tool := NewManageScheduleTool(&fakeScheduler{}, "UTC")
	_, err := execTool(t, tool, map[string]any{"action": "explode"})
	require.Error(t, err)
}
