package interfaces

// Compile-time checks that the concrete types satisfy the interfaces their
// consumers declare.

import (
	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/http"
	"github.com/mrlokans/lending/internal/lending"
	"github.com/mrlokans/lending/internal/notify"
	"github.com/mrlokans/lending/internal/scheduler"
	"github.com/mrlokans/lending/internal/tasks"
)

// =============================================================================
// Lending services
// =============================================================================

var _ http.BorrowAPI = (*lending.BorrowService)(nil)
var _ http.CatalogAPI = (*lending.BorrowService)(nil)
var _ http.ReservationAPI = (*lending.ReservationService)(nil)

var _ scheduler.OverdueScanner = (*lending.BorrowService)(nil)
var _ scheduler.ExpiryScanner = (*lending.ReservationService)(nil)

var _ tasks.QueueProcessor = (*lending.ReservationService)(nil)

// =============================================================================
// Hooks the services call out to
// =============================================================================

var _ lending.QueueTrigger = (*tasks.Dispatcher)(nil)
var _ lending.Notifier = (*notify.Notifier)(nil)

var _ notify.Publisher = (*notify.Rabbit)(nil)
var _ notify.Publisher = notify.Discard{}

// =============================================================================
// Background work and audit
// =============================================================================

var _ http.ScanRunner = (*scheduler.ScanScheduler)(nil)
var _ http.TaskStatus = (*tasks.Client)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
