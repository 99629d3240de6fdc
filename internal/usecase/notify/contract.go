package notify

import (
	"context"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
)

// Sender delivers one alert to one recipient. Errors wrapping
// domain.ErrRecipientUnreachable are recoverable; any other error is unexpected.
type Sender interface {
	Send(ctx context.Context, recipient string, a alert.Alert) error
}
