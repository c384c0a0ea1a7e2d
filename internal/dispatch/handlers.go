package dispatch

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/valter-silva-au/taskdeck/internal/core"
	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// RegisterTaskTools installs every task_* method on the dispatcher.
func RegisterTaskTools(d *Dispatcher, tasks core.TaskService) {
	d.Register("task_create", func(args Args) (*Result, error) {
		var draft storage.TaskDraft
		if err := decodeArgs(args, &draft); err != nil {
			return nil, err
		}
		task, err := tasks.Create(draft)
		if err != nil {
			return nil, err
		}
		return &Result{
			Summary: fmt.Sprintf("created task %s (%s)", task.ID, task.Name),
			Data:    task,
		}, nil
	})

	d.Register("task_create_bulk", func(args Args) (*Result, error) {
		raw, ok := args["tasks"]
		if !ok {
			return nil, ParamError("tasks", "is required")
		}
		var drafts []storage.TaskDraft
		if err := reencode(raw, &drafts); err != nil {
			return nil, ParamError("tasks", "must be an array of task drafts")
		}
		result, err := tasks.CreateBulk(drafts)
		if err != nil {
			return nil, err
		}
		res := &Result{
			Summary: fmt.Sprintf("created %d of %d tasks", len(result.Created), len(drafts)),
			Data:    result,
		}
		for _, be := range result.Errors {
			res.Warnings = append(res.Warnings, fmt.Sprintf("entry %d: %s", be.Index, be.Error))
		}
		return res, nil
	})

	d.Register("task_list", func(args Args) (*Result, error) {
		filter, err := decodeFilter(args)
		if err != nil {
			return nil, err
		}
		list, err := tasks.List(filter)
		if err != nil {
			return nil, err
		}
		return &Result{
			Summary: fmt.Sprintf("%d tasks", len(list)),
			Data:    map[string]any{"tasks": list, "count": len(list)},
		}, nil
	})

	d.Register("task_get_by_id", func(args Args) (*Result, error) {
		id, err := requireString(args, "id")
		if err != nil {
			return nil, err
		}
		task, err := tasks.Get(id)
		if err != nil {
			return nil, err
		}
		return &Result{Summary: fmt.Sprintf("task %s", task.ID), Data: task}, nil
	})

	d.Register("task_get_next", func(args Args) (*Result, error) {
		pool := core.Pool(optionalString(args, "pool"))
		if pool != "" && !core.ValidPool(pool) {
			return nil, ParamError("pool", "must be analysed or todo")
		}
		selection, err := tasks.GetNext(pool)
		if err != nil {
			return nil, err
		}
		summary := "no eligible task"
		if selection.Task != nil {
			summary = fmt.Sprintf("next task %s (%s)", selection.Task.ID, selection.Task.Name)
		} else if selection.BlockedCount > 0 {
			summary = fmt.Sprintf("no eligible task (%d blocked)", selection.BlockedCount)
		}
		return &Result{Summary: summary, Data: selection}, nil
	})

	d.Register("task_get_stats", func(args Args) (*Result, error) {
		stats, err := tasks.Stats()
		if err != nil {
			return nil, err
		}
		return &Result{
			Summary: fmt.Sprintf("%d tasks, %.1f days remaining", stats.Total, stats.RemainingDays),
			Data:    stats,
		}, nil
	})

	registerMark := func(method string, run func(id string, args Args) (*models.Task, error)) {
		d.Register(method, func(args Args) (*Result, error) {
			id, err := requireString(args, "id")
			if err != nil {
				return nil, err
			}
			task, err := run(id, args)
			if err != nil {
				return nil, err
			}
			return &Result{
				Summary: fmt.Sprintf("task %s is now %s", task.ID, task.Status),
				Data:    task,
			}, nil
		})
	}

	registerMark("task_mark_analysing", func(id string, _ Args) (*models.Task, error) {
		return tasks.MarkAnalysing(id)
	})
	registerMark("task_mark_analysed", func(id string, args Args) (*models.Task, error) {
		var analysis *models.Analysis
		if raw, ok := args["analysis"]; ok {
			analysis = &models.Analysis{}
			if err := reencode(raw, analysis); err != nil {
				return nil, ParamError("analysis", "must be an analysis object")
			}
		}
		return tasks.MarkAnalysed(id, analysis)
	})
	registerMark("task_mark_in_progress", func(id string, _ Args) (*models.Task, error) {
		return tasks.MarkInProgress(id)
	})
	registerMark("task_mark_done", func(id string, _ Args) (*models.Task, error) {
		return tasks.MarkDone(id)
	})
	registerMark("task_mark_skipped", func(id string, args Args) (*models.Task, error) {
		reason, err := requireString(args, "reason")
		if err != nil {
			return nil, err
		}
		return tasks.MarkSkipped(id, reason)
	})
}

// RegisterSteeringTools installs the steering_* methods on the dispatcher.
func RegisterSteeringTools(d *Dispatcher, steering *core.SteeringService) {
	d.Register("steering_whisper", func(args Args) (*Result, error) {
		processID, err := requireString(args, "process_id")
		if err != nil {
			return nil, err
		}
		instruction, err := requireString(args, "instruction")
		if err != nil {
			return nil, err
		}
		priority := models.WhisperPriority(optionalString(args, "priority"))
		if err := steering.Whisper(processID, instruction, priority); err != nil {
			return nil, err
		}
		return &Result{Summary: fmt.Sprintf("whisper queued for %s", processID)}, nil
	})

	d.Register("steering_heartbeat", func(args Args) (*Result, error) {
		processID, err := requireString(args, "process_id")
		if err != nil {
			return nil, err
		}
		status := optionalString(args, "status")
		nextAction := optionalString(args, "next_action")

		result, err := steering.Heartbeat(processID, status, nextAction)
		if err != nil {
			return nil, err
		}
		return &Result{
			Summary: fmt.Sprintf("%d new whispers", result.WhisperCount),
			Data: map[string]any{
				"whispers":      result.Whispers,
				"whisper_count": result.WhisperCount,
			},
		}, nil
	})
}

// --- Argument decoding helpers ---

func requireString(args Args, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", ParamError(name, "is required")
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", ParamError(name, "must be a non-empty string")
	}
	return s, nil
}

func optionalString(args Args, name string) string {
	s, _ := args[name].(string)
	return s
}

// reencode converts a decoded JSON value into a typed struct by way of a
// marshal/unmarshal round trip.
func reencode(raw any, target any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// decodeArgs decodes the entire args object into a typed struct.
func decodeArgs(args Args, target any) error {
	if err := reencode(map[string]any(args), target); err != nil {
		return ParamError("arguments", "malformed arguments: "+err.Error())
	}
	return nil
}

func decodeFilter(args Args) (storage.TaskFilter, error) {
	var filter storage.TaskFilter

	if s := optionalString(args, "status"); s != "" {
		status := models.Status(s)
		if !models.ValidStatus(status) {
			return filter, ParamError("status", "unknown status "+s)
		}
		filter.Statuses = []models.Status{status}
	}
	if c := optionalString(args, "category"); c != "" {
		category := models.Category(c)
		if !models.ValidCategory(category) {
			return filter, ParamError("category", "unknown category "+c)
		}
		filter.Category = category
	}
	if e := optionalString(args, "effort"); e != "" {
		effort := models.Effort(e)
		if !models.ValidEffort(effort) {
			return filter, ParamError("effort", "unknown effort "+e)
		}
		filter.Effort = effort
	}

	for _, bound := range []struct {
		key    string
		target **int
	}{
		{"min_priority", &filter.MinPriority},
		{"max_priority", &filter.MaxPriority},
	} {
		if raw, ok := args[bound.key]; ok {
			n, err := toInt(raw)
			if err != nil {
				return filter, ParamError(bound.key, "must be an integer")
			}
			*bound.target = &n
		}
	}

	if raw, ok := args["limit"]; ok {
		n, err := toInt(raw)
		if err != nil || n < 0 {
			return filter, ParamError("limit", "must be a non-negative integer")
		}
		filter.Limit = n
	}

	return filter, nil
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	}
	return 0, fmt.Errorf("not an integer")
}
