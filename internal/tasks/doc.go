// Package tasks implements the client side of the asynchronous video generation lifecycle.
//
// # Generation Session
//
// [Session] is the state machine behind one generation dialog:
//
//	idle → creating → polling → succeeded | failed
//
// [Session.Start] validates and submits a [models.GenerationRequest]; [Session.Poll] queries the gateway under a
// [PollPolicy] until a terminal status, a timeout, or context cancellation. [Session.Reset] returns to idle and
// discards the result of any call still in flight.
//
// # Task Registry
//
// [Registry] tracks every job the user started, independent of any session, so results can be previewed and
// used after the dialog is gone. A single preview selection and a single [Handoff] slot hang off it.
// Registry state is guarded by a mutex that is never held across network calls.
//
// # Progress Reporting
//
// Long-running operations accept an optional channel of [ProgressUpdate]. Updates use select with default so a
// slow consumer never blocks the operation.
//
// # Client Session File
//
// One-shot CLI invocations share registry state through a [SessionFile], a JSON snapshot written with owner-only
// permissions. Losing it loses only tracking convenience; every job remains queryable by id.
package tasks
