package orchestrator

import (
	"strings"
)

const helpText = `Task commands:
/task once <when> -- <instruction>     schedule a one-time task
/task every <cron> -- <instruction>    schedule a recurring task
/task list                             list this channel's tasks
/task remove <id>                      remove a task
/task enable <id>                      re-enable a disabled task
/task disable <id>                     disable a task without removing it
/task reschedule <id> at <when>        move a task to a new time
/task reschedule <id> cron <expr>      move a task to a new cron schedule`

// command is a parsed /task admin command, ready to hand to the
// manage_schedule tool. Help is set instead when the input asks for usage or
// cannot be parsed.
type command struct {
	params map[string]string
	help   string
}

// parseCommand recognizes /task admin commands. ok is false for ordinary
// conversational messages.
func parseCommand(content string) (command, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || fields[0] != "/task" {
		return command{}, false
	}
	if len(fields) == 1 {
		return command{help: helpText}, true
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), "/task"))

	switch fields[1] {
	case "once", "every":
		verb := fields[1]
		body := strings.TrimSpace(strings.TrimPrefix(rest, verb))
		trigger, instruction, found := strings.Cut(body, "--")
		trigger = strings.TrimSpace(trigger)
		instruction = strings.TrimSpace(instruction)
		if !found || trigger == "" || instruction == "" {
			return command{help: helpText}, true
		}
		if verb == "once" {
			return command{params: map[string]string{
				"action": "add_once", "when": trigger, "instruction": instruction,
			}}, true
		}
		return command{params: map[string]string{
			"action": "add_recurring", "cron": trigger, "instruction": instruction,
		}}, true

	case "list":
		return command{params: map[string]string{"action": "list"}}, true

	case "remove", "enable", "disable":
		if len(fields) != 3 {
			return command{help: helpText}, true
		}
		return command{params: map[string]string{
			"action": fields[1], "task_id": fields[2],
		}}, true

	case "reschedule":
		if len(fields) < 5 {
			return command{help: helpText}, true
		}
		taskID, mode := fields[2], fields[3]
		value := strings.Join(fields[4:], " ")
		switch mode {
		case "at":
			return command{params: map[string]string{
				"action": "reschedule", "task_id": taskID, "when": value,
			}}, true
		case "cron":
			return command{params: map[string]string{
				"action": "reschedule", "task_id": taskID, "cron": value,
			}}, true
		}
		return command{help: helpText}, true

	default:
		return command{help: helpText}, true
	}
}
