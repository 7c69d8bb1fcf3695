package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-sync/internal/events"
)

// SourceTagPrefix marks values this service writes into ClickUp. Inbound
// events carrying it were caused by our own outbound writes.
const SourceTagPrefix = "helpdesk-sync"

// commentMarker prefixes comments mirrored from the helpdesk to ClickUp.
const commentMarker = "[" + SourceTagPrefix + "]"

func newSourceTag() string {
	return SourceTagPrefix + ":" + uuid.NewString()
}

func isSourceTag(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), SourceTagPrefix)
}

func mirrorCommentText(author, content string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return fmt.Sprintf("%s %s", commentMarker, strings.TrimSpace(content))
	}
	return fmt.Sprintf("%s %s: %s", commentMarker, author, strings.TrimSpace(content))
}

func hasCommentMarker(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), commentMarker)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, now func() time.Time, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
