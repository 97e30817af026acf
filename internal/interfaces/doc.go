// Package interfaces holds compile-time checks that tie the lending packages
// together.
//
// # Interface Categories
//
// ## Service interfaces (declared by their consumers)
//
//   - BorrowAPI, ReservationAPI, CatalogAPI: what the HTTP adapter calls (internal/http/stores.go)
//   - OverdueScanner, ExpiryScanner: what the scan scheduler runs (internal/scheduler/scans.go)
//   - QueueProcessor: what the reservation queue task runs (internal/tasks/process_queue.go)
//
// ## Hooks called by the lending services
//
//   - QueueTrigger: told when a copy becomes available (internal/lending/options.go)
//   - Notifier: told about ready, overdue and expired records (internal/lending/options.go)
//
// # Adding a New Notification Transport
//
//  1. Implement notify.Publisher:
//
//     type SQSPublisher struct { queueURL string }
//
//     func (p *SQSPublisher) Publish(ctx context.Context, key string, body []byte) error
//     func (p *SQSPublisher) Close() error
//
//  2. Add a compile-time check to checks.go:
//
//     var _ notify.Publisher = (*SQSPublisher)(nil)
//
//  3. Select it in entrypoint.NewApp.
//
// # Adding a New Background Job
//
//  1. Define the task and its queue in internal/tasks/ (Config() returns a
//     backlite.QueueConfig with a unique name).
//  2. Register the queue in entrypoint.NewApp.
//  3. Schedule it from internal/scheduler if it runs on a cron expression.
//
// # Compile-Time Interface Checks
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go.
package interfaces
