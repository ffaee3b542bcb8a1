// Package dispatch routes command invocations to their handlers.
//
// Every transport (Discord gateway, HTTP API, CLI) builds a command.Invocation
// and hands it to Dispatcher.Dispatch, which runs it on the caller's
// goroutine. The dispatcher holds no per-invocation state, so concurrent
// invocations never share anything beyond the registry.
//
// For each invocation the dispatcher:
//   - assigns an invocation ID when the transport did not
//   - resolves the command in the static registry
//   - checks required parameters
//   - runs the handler, recovering panics
//   - logs the result and records metrics and history
//
// Error handling:
//   - Unknown command → ErrUnknownCommand, nothing recorded
//   - Missing required parameter → ErrMissingParams, nothing recorded
//   - Handler error or panic → generic reply, detail logged, result "error"
//   - History write failure → logged, reply unaffected
package dispatch
