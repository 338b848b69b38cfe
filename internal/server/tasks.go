package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	taskdomain "github.com/smallbiznis/taskhub/internal/task/domain"
)

type createTaskRequest struct {
	Title    string `json:"title"`
	DueDate  string `json:"due_date"`
	Priority string `json:"priority"`
}

type updateTaskRequest struct {
	Title    string `json:"title"`
	DueDate  string `json:"due_date"`
	Priority string `json:"priority"`
}

func parseTaskFilter(c *gin.Context) (taskdomain.ListFilter, error) {
	var filter taskdomain.ListFilter
	completed, err := parseOptionalBool(c.Query("completed"))
	if err != nil {
		return filter, newValidationError("completed", "invalid_completed", "completed must be true or false")
	}
	filter.Completed = completed
	if raw := strings.TrimSpace(c.Query("priority")); raw != "" {
		priority, err := taskdomain.ParsePriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = priority
	}
	filter.SortBy = strings.TrimSpace(c.Query("sort_by"))
	filter.OrderBy = strings.TrimSpace(c.Query("order_by"))
	return filter, nil
}

func (s *Server) ListTasks(c *gin.Context) {
	scope := scopeFromContext(c)
	filter, err := parseTaskFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tasks, err := s.taskSvc.List(c.Request.Context(), scope.OrgID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   tasks,
	})
}

func (s *Server) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	task, err := s.taskSvc.Create(c.Request.Context(), scopeFromContext(c), taskdomain.CreateTaskRequest{
		Title:    req.Title,
		DueDate:  req.DueDate,
		Priority: req.Priority,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"task":    task,
	})
}

func (s *Server) UpdateTask(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, taskdomain.ErrTaskNotFound)
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	task, err := s.taskSvc.Update(c.Request.Context(), scopeFromContext(c), taskdomain.UpdateTaskRequest{
		ID:       id,
		Title:    req.Title,
		DueDate:  req.DueDate,
		Priority: req.Priority,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    task,
	})
}

func (s *Server) ToggleTask(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, taskdomain.ErrTaskNotFound)
		return
	}

	task, err := s.taskSvc.ToggleComplete(c.Request.Context(), scopeFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    task,
	})
}

func (s *Server) DeleteTask(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, taskdomain.ErrTaskNotFound)
		return
	}

	if err := s.taskSvc.Delete(c.Request.Context(), scopeFromContext(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) ExportTasks(c *gin.Context) {
	scope := scopeFromContext(c)
	report, err := s.taskSvc.Export(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := io.ReadAll(report)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("tasks-%s.pdf", scope.OrgID.String())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", body)
}
