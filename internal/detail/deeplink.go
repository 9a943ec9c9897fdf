package detail

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// ErrStaleNavigation is returned when a deep link names a record the viewer cannot access
var ErrStaleNavigation = errors.New("stale navigation link")

// Query parameters recognised in a deep link
const (
	ParamScheduleID  = "scheduleId"
	ParamTaskID      = "subTaskId"
	ParamType        = "scheduleType"
	ParamProjectID   = "projectId"
	ParamOperationID = "operationId"
)

var linkParams = []string{ParamScheduleID, ParamTaskID, ParamType, ParamProjectID, ParamOperationID}

// DeepLink is the record reference carried by a navigation URL
type DeepLink struct {
	ScheduleID  int64
	TaskID      int64
	Type        model.ScheduleType
	ProjectID   int64
	OperationID string
}

// ParseDeepLink extracts a DeepLink from u. ok is false when u carries no schedule reference.
func ParseDeepLink(u *url.URL) (link DeepLink, ok bool, err error) {
	q := u.Query()
	raw := q.Get(ParamScheduleID)
	if raw == "" {
		return DeepLink{}, false, nil
	}

	if link.ScheduleID, err = parseID(ParamScheduleID, raw); err != nil {
		return DeepLink{}, false, err
	}
	if raw := q.Get(ParamTaskID); raw != "" {
		if link.TaskID, err = parseID(ParamTaskID, raw); err != nil {
			return DeepLink{}, false, err
		}
	}
	if raw := q.Get(ParamProjectID); raw != "" {
		if link.ProjectID, err = parseID(ParamProjectID, raw); err != nil {
			return DeepLink{}, false, err
		}
	}
	if raw := q.Get(ParamType); raw != "" {
		link.Type = model.ScheduleType(raw)
		if !link.Type.Valid() {
			return DeepLink{}, false, fmt.Errorf("%w: unknown %s %q", ErrStaleNavigation, ParamType, raw)
		}
	}
	link.OperationID = q.Get(ParamOperationID)

	return link, true, nil
}

func parseID(param, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrStaleNavigation, param, raw)
	}
	return id, nil
}

// StripDeepLink returns a copy of u without the deep-link parameters
func StripDeepLink(u *url.URL) *url.URL {
	out := *u
	q := out.Query()
	for _, p := range linkParams {
		q.Del(p)
	}
	out.RawQuery = q.Encode()
	return &out
}
