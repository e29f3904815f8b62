package tabs

import (
	"context"
	"errors"
	"net/url"

	"smartlauncher/internal/models"
)

var (
	ErrUnknownTab = errors.New("unknown tab")
	ErrTabClosed  = errors.New("tab closed")
)

// Tab is a destination page opened by the launcher.
type Tab struct {
	ID  string
	URL string
}

// Browser opens destination tabs and pushes messages into them.
type Browser interface {
	Open(ctx context.Context, rawURL string) (Tab, error)
	// WaitLoaded blocks until the tab finished loading or ctx ends.
	WaitLoaded(ctx context.Context, tabID string) error
	// Send delivers one message and waits for the page's acknowledgement.
	Send(ctx context.Context, tabID string, msg models.TabMessage) (models.TabAck, error)
}

// withTabParam appends tab=<id> so the page can find its channel.
func withTabParam(rawURL, id string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("tab", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
