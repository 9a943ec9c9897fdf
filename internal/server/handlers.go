package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/muaviaUsmani/opsconsole/internal/api"
)

func (s *Server) getSchedule(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.backend.GetSchedule(r.Context(), id)
}

func (s *Server) mutateSchedule(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	action := api.ScheduleAction(r.PathValue("action"))
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown schedule action %q", api.ErrInvalidArgument, action)
	}
	if err := s.backend.MutateSchedule(r.Context(), id, action); err != nil {
		return nil, err
	}
	return MutationResult{OK: true}, nil
}

func (s *Server) listTasks(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		return nil, err
	}
	size, err := queryInt(r, "size", defaultSize)
	if err != nil {
		return nil, err
	}
	if size > maxSize {
		size = maxSize
	}
	return s.backend.ListScheduleTasks(r.Context(), id, page, size)
}

func (s *Server) getTask(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		return nil, err
	}
	return s.backend.GetScheduleTask(r.Context(), id, taskID)
}

func (s *Server) mutateTask(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		return nil, err
	}
	action := api.TaskAction(r.PathValue("action"))
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown sub-task action %q", api.ErrInvalidArgument, action)
	}
	if err := s.backend.MutateTask(r.Context(), id, taskID, action); err != nil {
		return nil, err
	}
	return MutationResult{OK: true}, nil
}

func (s *Server) listOperations(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.backend.ListOperations(r.Context(), id)
}

func (s *Server) getFlow(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.backend.GetFlowDetail(r.Context(), id)
}

func (s *Server) approve(r *http.Request) (interface{}, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	action := api.ApprovalAction(r.PathValue("action"))
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown approval action %q", api.ErrInvalidArgument, action)
	}

	var req ApproveRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: malformed approval body: %v", api.ErrInvalidArgument, err)
		}
	}

	if err := s.backend.Approve(r.Context(), id, action, req.Comment); err != nil {
		return nil, err
	}
	return MutationResult{OK: true}, nil
}
