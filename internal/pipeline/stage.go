package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

const tracerName = "github.com/tjfontaine/stageline/internal/pipeline"

// Performer is the unit of work a Stage wraps.
type Performer interface {
	Perform(ctx context.Context, sc *domain.Context) domain.Result
}

// PerformerFunc adapts a function to Performer.
type PerformerFunc func(ctx context.Context, sc *domain.Context) domain.Result

// Perform calls f.
func (f PerformerFunc) Perform(ctx context.Context, sc *domain.Context) domain.Result {
	return f(ctx, sc)
}

// Stage is a named unit of pipeline work with a lifecycle:
// not executed, then executed with a Success or a Failure.
//
// Call is the only place a panic raised by a performer is recovered; it is
// converted into a Failure carrying the panic message, the stage name and a
// short fault classification.
type Stage struct {
	name      string
	performer Performer
	result    *domain.Result
}

// NewStage wraps a performer. The name is derived from the performer's type
// name (Authenticate -> "authenticate", NoOp -> "no_op").
func NewStage(p Performer) *Stage {
	return &Stage{name: deriveName(p), performer: p}
}

// NamedStage wraps a performer under an explicit name.
func NamedStage(name string, p Performer) *Stage {
	if name == "" {
		name = deriveName(p)
	}
	return &Stage{name: name, performer: p}
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Call executes the stage once. A stage that has already been performed
// returns its stored result without running again until Reset is called.
func (s *Stage) Call(ctx context.Context, sc *domain.Context) domain.Result {
	if s.result != nil {
		return *s.result
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "stage "+s.name,
		trace.WithAttributes(attribute.String("stage.name", s.name)))
	defer span.End()

	res := s.perform(ctx, sc)
	if res.IsFailure() {
		err := res.Err()
		span.SetStatus(codes.Error, err.Message)
		span.SetAttributes(attribute.String("stage.error_code", err.Code))
	}

	s.result = &res
	return res
}

func (s *Stage) perform(ctx context.Context, sc *domain.Context) (res domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failure(faultError(r).WithStage(s.name))
		}
	}()

	if s.performer == nil {
		return domain.Failure(domain.ErrInvalidStageArgument().WithStage(s.name))
	}

	res = s.performer.Perform(ctx, sc)
	if res.IsFailure() && res.Err().Stage == "" {
		res = domain.Failure(res.Err().WithStage(s.name))
	}
	if res.IsSuccess() && res.Value() == nil {
		res = domain.Success(sc)
	}
	return res
}

// Performed reports whether the stage has run since construction or the
// last Reset.
func (s *Stage) Performed() bool { return s.result != nil }

// Succeeded reports whether the stage ran and returned Success.
func (s *Stage) Succeeded() bool { return s.result != nil && s.result.IsSuccess() }

// Failed reports whether the stage ran and returned Failure.
func (s *Stage) Failed() bool { return s.result != nil && s.result.IsFailure() }

// Value returns the context of a successful run, or nil.
func (s *Stage) Value() *domain.Context {
	if s.result == nil {
		return nil
	}
	return s.result.Value()
}

// Err returns the error of a failed run, or nil.
func (s *Stage) Err() *domain.StageError {
	if s.result == nil {
		return nil
	}
	return s.result.Err()
}

// Result returns the stored result and whether the stage has run.
func (s *Stage) Result() (domain.Result, bool) {
	if s.result == nil {
		return domain.Result{}, false
	}
	return *s.result, true
}

// Reset clears the stored result.
func (s *Stage) Reset() { s.result = nil }

// faultError classifies a recovered panic value.
func faultError(r any) *domain.StageError {
	var rtErr runtime.Error
	switch v := r.(type) {
	case error:
		code := "error"
		if errors.As(v, &rtErr) {
			code = "runtime_error"
		}
		return domain.NewStageError(domain.KindFault, code, v.Error())
	case string:
		return domain.NewStageError(domain.KindFault, "panic", v)
	default:
		return domain.NewStageError(domain.KindFault, "panic", fmt.Sprint(v))
	}
}

func deriveName(p Performer) string {
	if p == nil {
		return "stage"
	}
	t := reflect.TypeOf(p)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.Name() == "PerformerFunc" {
		return "stage"
	}
	return snakeCase(t.Name())
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
