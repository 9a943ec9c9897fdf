package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/muaviaUsmani/opsconsole/internal/model"
)

func TestCodeRoundTrip(t *testing.T) {
	tests := []struct {
		err      error
		code     string
		sentinel error
	}{
		{fmt.Errorf("schedule 9: %w", ErrNotFound), CodeNotFound, ErrNotFound},
		{fmt.Errorf("cannot stop: %w", ErrConflict), CodeConflict, ErrConflict},
		{ErrInvalidArgument, CodeInvalidArgument, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			code := CodeOf(tt.err)
			if code != tt.code {
				t.Fatalf("CodeOf() = %s, want %s", code, tt.code)
			}
			back := FromBody(ErrorBody{Code: code, Message: tt.err.Error()})
			if !errors.Is(back, tt.sentinel) {
				t.Errorf("FromBody() = %v, want wrapping %v", back, tt.sentinel)
			}
		})
	}

	if code := CodeOf(errors.New("redis down")); code != CodeInternal {
		t.Errorf("expected INTERNAL, got %s", code)
	}
	internal := FromBody(ErrorBody{Code: CodeInternal, Message: "boom"})
	if errors.Is(internal, ErrNotFound) || errors.Is(internal, ErrConflict) {
		t.Errorf("internal error should not match a sentinel: %v", internal)
	}
}

func TestActionValidity(t *testing.T) {
	for _, a := range []ScheduleAction{ScheduleStop, ScheduleDisable, ScheduleEnable, ScheduleDelete} {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	for _, a := range []TaskAction{TaskExecute, TaskPause, TaskResume, TaskRetry, TaskStop} {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	for _, a := range []ApprovalAction{ApprovalPass, ApprovalRefuse, ApprovalRevoke} {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	if ScheduleAction("pause").Valid() || TaskAction("disable").Valid() || ApprovalAction("stop").Valid() {
		t.Error("unexpected valid action")
	}
}

func TestActorContext(t *testing.T) {
	if _, ok := ActorFrom(context.Background()); ok {
		t.Error("expected no actor")
	}
	ctx := WithActor(context.Background(), model.User{ID: 7, Name: "alice"})
	u, ok := ActorFrom(ctx)
	if !ok || u.ID != 7 {
		t.Errorf("ActorFrom() = %+v, %v", u, ok)
	}
}
