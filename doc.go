// Package auth implements the account and session layer for a campus
// posting board: JWT issuance and verification, one-time email
// verification codes, password reset tokens, and the request
// authentication pipeline.
//
// Account lifecycle:
//   - Users carry an enabled flag plus two challenge slots (verification
//     code and reset token) persisted via Bun. Standing is derived from
//     those columns: pending until the first code is consumed, active
//     while enabled, suspended after moderation disables the account.
//   - UserStandingMachine centralizes the transition graph, timestamps,
//     hooks, and persistence. Invoke Transition with ActorRef metadata
//     whenever a moderator changes an account.
//
// Challenges:
//   - Verification codes and reset tokens are single use. Consumption is
//     a compare-and-clear UPDATE, so concurrent submissions of the same
//     code produce exactly one winner. Expired challenges stay in place
//     until a new request overwrites them.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     standing machine, and the challenge services to describe login,
//     verification, reset, and lifecycle events. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue
//     without blocking authentication.
package auth
