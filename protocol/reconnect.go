package protocol

import (
	"context"
	"io"

	"github.com/cenkalti/backoff/v4"

	"github.com/nextgraph-org/ng-repo-go/common/logging"
)

// Dialer opens a fresh transport for a reconnect attempt.
type Dialer func(ctx context.Context) (io.ReadWriter, error)

// DialWithBackoff dials, authenticates, and starts a Connection, retrying
// with exponential backoff on failure (spec §4.8 "On connection loss, the
// remote broker client retries with backoff"). It returns once a
// Connection is authenticated and running; onDisconnect (passed through
// to the Connection) fires on any later drop, but does not itself trigger
// a further reconnect — callers that want persistent reconnection call
// DialWithBackoff again from their onDisconnect callback.
func DialWithBackoff(ctx context.Context, dial Dialer, auth *ClientAuth, handler Handler, onDisconnect func()) (*Connection, error) {
	logger := logging.GetLogger(moduleName)

	var conn *Connection
	attempt := func() error {
		rw, err := dial(ctx)
		if err != nil {
			logger.Warn("dial failed, retrying", "err", err)
			return err
		}
		c := NewConnection(rw, handler, onDisconnect)
		c.Start()
		if err := c.Authenticate(ctx, auth); err != nil {
			logger.Warn("authenticate failed, retrying", "err", err)
			c.Close()
			return err
		}
		conn = c
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		return nil, err
	}
	return conn, nil
}
