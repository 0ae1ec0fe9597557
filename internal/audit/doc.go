// Package audit carries the step-up audit event model, sinks, and the
// asynchronous dispatcher the engine writes through.
//
// The dispatcher never blocks the calling operation when DropIfFull is set;
// dropped events are counted and exposed for monitoring.
package audit
