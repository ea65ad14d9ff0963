// Package credentials manages the credential lifecycle of user accounts:
// login validation with lockout, password recovery, account activation,
// administrative unlock, provisioning and first run seeding.
//
// Storage:
//   - Components talk to a RepositoryManager that exposes the credential,
//     role and password history stores. The memstore package keeps them in
//     memory and the repository package persists them through Bun.
//   - A RepositoryManager that also implements Commit is flushed once per
//     provisioning operation. Commit failures are logged, never returned.
//
// Tokens:
//   - Recovery, unlock and activation links carry an opaque secret. The
//     secret encodes an issue time and a provider token. The encoded token
//     is also stored as a claim on the account so a link is single use and
//     expires after the configured TTL.
//   - Provider tokens are HMAC signed JWTs bound to the account security
//     stamp. Rotating the stamp invalidates every outstanding link.
//
// Concurrency:
//   - Read, check and write sequences on one account run under an
//     AccountLocker. NewLocalLocker serializes within a process and the
//     redislock package across processes.
//
// Activity sinks:
//   - ActivitySink receives an event for every lifecycle transition. Sinks
//     run best-effort (errors are logged) so audit, metrics or queue
//     forwarding never block a login.
//
// Notifications:
//   - Notifier delivers activation, recovery and unlock links. Delivery
//     failures are logged and the operation still succeeds since the link
//     can be reissued.
package credentials
