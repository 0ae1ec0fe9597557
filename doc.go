// Package goStepUp provides a step-up multi-factor engine: accounts that
// receive a one-time challenge over some channel (log, e-mail, SMS, or none
// for TOTP) and later prove possession by echoing it back.
//
// An [Engine] is built once by [Builder] and is safe for concurrent use.
// Methods ([PassThroughMethod], [KeyedMethod], [AttributeMethod]) are created
// per request from caller-supplied [Claims] and expose the accounts a user may
// step up with.
//
// # Architecture boundaries
//
// goStepUp is the public surface. Challenge generation and verification live
// in challenge, delivery channels in delivery, attempt restriction in
// restrictor, signed-request replay protection in replay and requestobject,
// persistence in storage, and field encryption in fieldcrypt. Audit dispatch
// and counters live under internal/.
//
// # Restriction
//
// Every challenge send and every verification is recorded against
// method + ":" + key. An event is refused when any window in the Total table
// already holds Max events, and a failed verification is refused when any
// window in the Failures table does. Refusals surface as errors matching
// [ErrLimitReached] and carry the offending window in a
// [restrictor.LimitError].
//
// # What this package must NOT do
//
//   - Log challenges or targets, except through the "log" kind's sender.
//   - Close Redis clients or databases handed to [Builder].
//   - Create database tables; see storage.PostgresSchema and restrictor.EventsSchema.
package goStepUp
