package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dohr-michael/taskchat/internal/resolver"
	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

// Canned replies.
const (
	EmptyInputReply = `Please type a message, for example "add buy milk" or "list my tasks".`
	GreetingReply   = `Hi! I can keep track of your tasks. Try "add buy milk" or "show my tasks".`
	HelpReply       = "Here is what I can do:\n" +
		"- add a task: \"add buy milk, high priority #shopping\"\n" +
		"- list tasks: \"show my pending tasks\"\n" +
		"- complete a task: \"mark task 3 done\"\n" +
		"- update a task: \"change task 3 to call mom\"\n" +
		"- delete a task: \"delete the groceries task\""
	NotUnderstoodReply = `Sorry, I didn't understand that. Try something like "add buy milk" or "mark task 3 done".`
	ApologyReply       = "Sorry, something went wrong while handling your request. Please try again."
)

// Confirm renders the templated confirmation for a successful tool result.
func Confirm(res *tools.Result, call tools.Call) string {
	switch res.Tool {
	case tools.CreateTaskTool:
		return confirmCreate(res.Task)
	case tools.ListTasksTool:
		return confirmList(res.Tasks, call)
	case tools.CompleteTaskTool:
		if res.AlreadyDone {
			return fmt.Sprintf("%q (#%d) was already completed.", res.Task.Title, res.Task.ID)
		}
		return fmt.Sprintf("Marked %q (#%d) as done.", res.Task.Title, res.Task.ID)
	case tools.UpdateTaskTool:
		return fmt.Sprintf("Updated task #%d: %q, %s priority%s.", res.Task.ID, res.Task.Title, res.Task.Priority, tagSuffix(res.Task.Tags))
	case tools.DeleteTaskTool:
		return fmt.Sprintf("Deleted %q (#%d).", res.Task.Title, res.Task.ID)
	default:
		return "Done."
	}
}

func confirmCreate(t *taskstore.Task) string {
	return fmt.Sprintf("Added %q as task #%d (%s priority%s).", t.Title, t.ID, t.Priority, tagSuffix(t.Tags))
}

func tagSuffix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return ", tags: " + strings.Join(tags, ", ")
}

func confirmList(tasks []*taskstore.Task, call tools.Call) string {
	if len(tasks) == 0 {
		if lt, ok := call.(tools.ListTasks); ok && (lt.Status != "" && lt.Status != taskstore.StatusAll || lt.Priority != "" || lt.Search != "") {
			return "No tasks match that."
		}
		return "You don't have any tasks yet."
	}

	var b strings.Builder
	if len(tasks) == 1 {
		b.WriteString("You have 1 task:")
	} else {
		fmt.Fprintf(&b, "You have %d tasks:", len(tasks))
	}
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n[%s] #%d %s (%s)", mark, t.ID, t.Title, t.Priority)
	}
	return b.String()
}

// failureReply turns a recovered pipeline error into a user message.
func failureReply(err error) string {
	var (
		rerr *resolver.ResolutionError
		verr *tools.ValidationError
		nerr *tools.NotFoundError
	)
	switch {
	case errors.Is(err, resolver.ErrEmptyInput):
		return EmptyInputReply
	case errors.As(err, &nerr):
		return fmt.Sprintf("I couldn't find task %d.", nerr.TaskID)
	case errors.As(err, &rerr):
		if rerr.Reference != "" {
			return fmt.Sprintf("I couldn't find a task matching %q.", rerr.Reference)
		}
		return NotUnderstoodReply
	case errors.As(err, &verr):
		return validationReply(verr)
	case errors.Is(err, tools.ErrUnknownTool):
		return NotUnderstoodReply
	default:
		return ApologyReply
	}
}

func validationReply(err *tools.ValidationError) string {
	switch err.Field {
	case "title":
		return "A task needs a title. What should I call it?"
	case "tags":
		return fmt.Sprintf("I couldn't use those tags: %s.", err.Reason)
	case "task_id":
		return "Which task do you mean? Please give its number."
	case "":
		return fmt.Sprintf("I couldn't do that: %s.", err.Reason)
	default:
		return fmt.Sprintf("I couldn't do that: %s %s.", err.Field, err.Reason)
	}
}
