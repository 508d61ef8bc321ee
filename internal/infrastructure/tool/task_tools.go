package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
)

// NewReadTaskListTool 创建 read_task_list 工具
func NewReadTaskListTool(tasks repository.TaskRepository) *domaintool.Tool {
	return domaintool.MustNew(
		"read_task_list",
		"List tasks from the task table, filtered by status. Defaults to open tasks, most urgent first.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"open", "in_progress", "done", "cancelled"},
					"description": "Filter by task status. Defaults to 'open'.",
				},
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one project.",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			status, _ := params["status"].(string)
			if status == "" {
				status = string(entity.TaskOpen)
			}
			projectID, _ := params["project_id"].(string)

			list, err := tasks.List(context.Background(), repository.TaskFilter{
				Status:    status,
				ProjectID: projectID,
			})
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]interface{}, 0, len(list))
			for _, t := range list {
				rows = append(rows, map[string]interface{}{
					"id":          t.ID,
					"title":       t.Title,
					"description": t.Description,
					"priority":    t.Priority,
					"status":      string(t.Status),
					"project_id":  t.ProjectID,
				})
			}
			return map[string]interface{}{
				"tasks": rows,
				"count": len(rows),
			}, nil
		},
	)
}

// NewWriteTaskTool 创建 write_task 工具
//
// Creates a task when task_id is omitted, updates one otherwise. New tasks
// require a title; updates change only the provided fields.
func NewWriteTaskTool(tasks repository.TaskRepository) *domaintool.Tool {
	return domaintool.MustNew(
		"write_task",
		"Create a new task (omit task_id) or update an existing one (provide task_id). "+
			"New tasks require a title. Priority runs 1 (highest) to 10 (lowest), default 5.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of an existing task to update. Omit to create new.",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Task title (required for new tasks).",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Detailed task description.",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Who created the task.",
				},
				"priority": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     10,
					"description": "Priority 1 (highest) to 10 (lowest). Default 5.",
				},
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"open", "in_progress", "done", "cancelled"},
					"description": "Task status (for updates).",
				},
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Project this task belongs to (for new tasks).",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			ctx := context.Background()
			now := time.Now().UTC()

			if taskID, ok := params["task_id"].(string); ok && taskID != "" {
				existing, err := tasks.FindByID(ctx, taskID)
				if err != nil {
					return nil, err
				}
				if title, ok := params["title"].(string); ok && title != "" {
					existing.Title = title
				}
				if desc, ok := params["description"].(string); ok {
					existing.Description = desc
				}
				if prio, ok := params["priority"].(float64); ok {
					existing.Priority = int(prio)
				}
				if status, ok := params["status"].(string); ok && status != "" {
					existing.Status = entity.TaskStatus(status)
				}
				existing.UpdatedAt = now
				if err := tasks.Update(ctx, existing); err != nil {
					return nil, err
				}
				return map[string]interface{}{"task_id": taskID, "action": "updated"}, nil
			}

			title, _ := params["title"].(string)
			if title == "" {
				return nil, fmt.Errorf("title is required when creating a task")
			}
			priority := entity.PriorityDefault
			if prio, ok := params["priority"].(float64); ok {
				priority = int(prio)
			}
			source, _ := params["source"].(string)
			if source == "" {
				source = "agent"
			}
			description, _ := params["description"].(string)
			projectID, _ := params["project_id"].(string)

			task := &entity.Task{
				ID:          "task_" + uuid.New().String()[:8],
				ProjectID:   projectID,
				Title:       title,
				Description: description,
				Source:      source,
				Priority:    priority,
				Status:      entity.TaskOpen,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tasks.Insert(ctx, task); err != nil {
				return nil, err
			}
			return map[string]interface{}{"task_id": task.ID, "action": "created"}, nil
		},
	)
}
