// Package pipeline provides the stage execution engine.
//
// A Task owns an ordered list of Stages and threads one domain.Context
// through them. Every stage returns a domain.Result; the first Failure stops
// the task and becomes its result.
//
// # Stages
//
// The four conventional slots run in this order:
//   - Authenticate: bearer credential -> identity
//   - Authorize: identity + (resource, action) -> permissions
//   - Action: business logic -> action result
//   - Render: action result -> response status, headers and body
//
// NoOp substitutes for Authenticate/Authorize when a handler skips them.
//
// # Fault boundary
//
// Stage.Call recovers panics raised by a performer and converts them into a
// Failure of kind "fault". Nothing else in the module recovers panics from
// pipeline code, so a Result is always the outcome of a stage call.
//
// # Conditional execution
//
// Task.RunConditional asks DetermineNextStage for the next index after each
// success, enabling skips and loops. Loops are bounded by MaxInvocations.
package pipeline
