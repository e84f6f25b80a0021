package domain

// Result is the outcome of a stage, hook or task: either Success holding the
// context or Failure holding a StageError.
type Result struct {
	ctx *Context
	err *StageError
}

// Success wraps a context as a successful result.
func Success(ctx *Context) Result {
	return Result{ctx: ctx}
}

// Failure wraps an error as a failed result. A nil error is replaced with a
// generic fault so a Failure never carries nothing.
func Failure(err *StageError) Result {
	if err == nil {
		err = &StageError{Kind: KindFault, Code: "unknown", Message: "unknown failure"}
	}
	return Result{err: err}
}

// IsSuccess reports whether the result is a Success.
func (r Result) IsSuccess() bool { return r.err == nil }

// IsFailure reports whether the result is a Failure.
func (r Result) IsFailure() bool { return r.err != nil }

// Value returns the context of a Success, or nil for a Failure.
func (r Result) Value() *Context {
	if r.err != nil {
		return nil
	}
	return r.ctx
}

// Err returns the error of a Failure, or nil for a Success.
func (r Result) Err() *StageError { return r.err }
