// Package restrictor bounds how many step-up events an account may produce
// within sliding time windows.
//
// Two policy tables apply: one to every event and one to failures only. Every
// window/limit pair must pass; an event that would break any of them is refused
// and never stored. Count-then-record runs under a per-key lock so concurrent
// callers for the same account cannot both observe "under limit". Stores that
// implement [AtomicStore] additionally make the sequence atomic in the backend,
// which keeps limits exact across processes.
package restrictor
