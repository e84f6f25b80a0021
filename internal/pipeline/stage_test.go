package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

func TestStage_DerivedName(t *testing.T) {
	tests := []struct {
		performer Performer
		want      string
	}{
		{&Authenticate{}, "authenticate"},
		{&Authorize{}, "authorize"},
		{&Action{}, "action"},
		{&Render{}, "render"},
		{NoOp{}, "no_op"},
		{PerformerFunc(func(context.Context, *domain.Context) domain.Result { return domain.Result{} }), "stage"},
	}

	for _, tt := range tests {
		if got := NewStage(tt.performer).Name(); got != tt.want {
			t.Errorf("NewStage(%T).Name() = %q, want %q", tt.performer, got, tt.want)
		}
	}

	if got := NamedStage("custom", NoOp{}).Name(); got != "custom" {
		t.Errorf("explicit name ignored: %q", got)
	}
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Authenticate": "authenticate",
		"NoOp":         "no_op",
		"APIKeyAuth":   "api_key_auth",
		"TagRequest":   "tag_request",
	}
	for in, want := range cases {
		if got := snakeCase(in); got != want {
			t.Errorf("snakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStage_Lifecycle(t *testing.T) {
	perf := &recordingStage{key: "done"}
	s := NamedStage("life", perf)

	if s.Performed() || s.Succeeded() || s.Failed() {
		t.Fatal("fresh stage should be not executed")
	}
	if s.Value() != nil || s.Err() != nil {
		t.Fatal("fresh stage should have no value or error")
	}

	res := s.Call(context.Background(), newTestContext())
	if !res.IsSuccess() || !s.Succeeded() || s.Value() == nil {
		t.Fatal("expected stored success")
	}

	s.Call(context.Background(), newTestContext())
	if perf.calls != 1 {
		t.Errorf("performed stage must not run again before reset, calls=%d", perf.calls)
	}

	s.Reset()
	if s.Performed() {
		t.Fatal("reset stage should be not executed")
	}
	s.Call(context.Background(), newTestContext())
	if perf.calls != 2 {
		t.Errorf("expected rerun after reset, calls=%d", perf.calls)
	}
}

func TestStage_RecoversPanics(t *testing.T) {
	tests := []struct {
		name     string
		panicVal func()
		wantCode string
		wantMsg  string
	}{
		{"string", func() { panic("kaboom") }, "panic", "kaboom"},
		{"error", func() { panic(errors.New("bad state")) }, "error", "bad state"},
		{"runtime", func() {
			var m map[string]int
			m["x"] = 1
		}, "runtime_error", "assignment to entry in nil map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NamedStage("explode", PerformerFunc(func(context.Context, *domain.Context) domain.Result {
				tt.panicVal()
				return domain.Result{}
			}))

			res := s.Call(context.Background(), newTestContext())
			if !res.IsFailure() {
				t.Fatal("expected failure")
			}
			err := res.Err()
			if err.Kind != domain.KindFault {
				t.Errorf("expected fault kind, got %q", err.Kind)
			}
			if err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", err.Code, tt.wantCode)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Stage != "explode" {
				t.Errorf("stage = %q", err.Stage)
			}
			if !s.Failed() {
				t.Error("stage should report failure")
			}
		})
	}
}

func TestStage_IdenticalStagesYieldIdenticalResults(t *testing.T) {
	run := func() domain.Result {
		s := NamedStage("authenticate", &Authenticate{})
		return s.Call(context.Background(), newTestContext())
	}

	a, b := run(), run()
	if diff := cmp.Diff(a.Err(), b.Err(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("results differ (-a +b):\n%s", diff)
	}
}
