// Package main hosts the clearance monitor entrypoint.
//
// Architecture overview:
//   - Scheduler & coordinator: internal/cycle runs one full collection cycle per interval (or exactly one with
//     -once). Each cycle fans ZIP workers out under a concurrency bound, aggregates per-ZIP results, records a
//     cycle summary, and publishes the latest-state snapshot when at least one ZIP completed.
//   - ZIP workers: internal/worker acquires a per-ZIP store context on an isolated reader session, paginates each
//     configured category, and pushes every card through validation and change detection. A store-context failure
//     fails the whole ZIP; a selector miss fails only that category; transient fetch errors are retried with
//     jittered backoff.
//   - Page readers: internal/reader/chromedp drives a shared headless browser allocator with per-session tabs;
//     internal/reader/static is a Colly-based alternative for server-rendered pages. Both extract raw card records
//     against per-retailer CSS selector profiles (internal/retailer).
//   - Validation & detection: internal/validate parses prices into integer cents and quarantines anything that
//     fails its invariants; internal/detect compares each observation to the stored latest state under sharded
//     locks and emits first_clearance / pct_drop / absolute_drop alert events.
//   - Persistence & delivery: internal/storage/postgres keeps observations, latest state, quarantine, alerts, and
//     cycle history (internal/storage/memory for DB-less runs). Alerts go to Telegram and/or Pub/Sub, falling back
//     to the log sink. The snapshot CSV is replaced atomically and optionally mirrored to GCS.
//   - Configuration & plumbing: Viper populates config from env/files (CLEARANCEWATCH_ prefix); zap provides
//     structured logging; Prometheus metrics are served on /metrics next to the read-only /v1 endpoints.
//
// Operational notes:
//   - Shutdown is coordinated via signal.NotifyContext; in-flight ZIP workers stop at the next page boundary.
//   - -once exits non-zero when a cycle completes with zero successful ZIPs, which makes cron alerting trivial.
//   - A healthcheck URL, when configured, is pinged only after ok cycles (dead-man's switch).
//
// Run locally: go run ./cmd/clearancewatch -config config.yaml -once
package main
