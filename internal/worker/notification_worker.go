package worker

import (
	"github.com/spec-kit/helpdesk-sync/internal/service"
)

// StartNotificationWorker registers notification handlers so ticket events
// land in the outbound delivery queue.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
