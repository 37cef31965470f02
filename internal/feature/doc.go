// Package feature implements the unidirectional data flow pipeline that turns
// a stream of events into a stream of states plus a side stream of one-shot
// effects.
//
// ARCHITECTURE:
//
//	Events -> [EventToAction] -> Actions -> [ActionToResult] -> Results -> fold -> States
//	                                                                     \-> Effects
//
// Event intake:
// Process never blocks. With IntakeQueue (the default) every event is kept in
// an unbounded FIFO and delivered in order. With IntakeLatest the intake holds
// at most one pending event and further events are dropped until the pipeline
// consumes it.
//
// Interactors:
// EventToAction and ActionToResult are stream-to-stream transforms. They may
// fan out internally (route by variant, run branches concurrently) and fan
// back in. Ordering is guaranteed within a branch, never across branches.
//
// Single-writer fold:
// One goroutine folds results into state, strictly one at a time. Producers
// may be concurrent, but state is only ever written from the fold loop, so no
// lock is held across HandleResult.
//
// Lifecycle:
// The pipeline runs in the context handed to New. Cancelling that context (or
// calling Close) stops every interactor goroutine and freezes the state.
package feature
