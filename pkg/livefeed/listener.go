package livefeed

import (
	"context"
	"net/url"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
	"github.com/gorilla/websocket"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second
)

// FeedURL builds the websocket URL of a meter_reader instance.
func FeedURL(host string, tls bool) string {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if tls {
		u.Scheme = "wss"
	}
	return u.String()
}

// Listen keeps a subscription to feedURL alive, reconnecting with
// exponential backoff. It returns when ctx is done or after maxRetries
// consecutive failed dials.
func Listen(ctx context.Context, feedURL string, funcToCall func(reading *types.MeterReadings)) {
	retryCount := 0

	for {
		if retryCount > 0 {
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<(retryCount-1)) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			_lg.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		_lg.Infof("Connecting to %s", feedURL)
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, feedURL, nil)
		if err != nil {
			_lg.Warnf("Connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				_lg.Errorf("Max retries (%d) reached. Giving up.", maxRetries)
				return
			}
			continue
		}

		_lg.Info("Connected! Accepting meter readings.")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, funcToCall)
		c.Close()
		if !connectionBroken {
			return
		}
		_lg.Warn("Connection lost, will retry...")
		retryCount = 1
	}
}

// handleConnection reads readings until the connection breaks (true) or ctx
// is cancelled (false).
func handleConnection(ctx context.Context, c *websocket.Conn, funcToCall func(reading *types.MeterReadings)) bool {
	done := make(chan struct{})

	// A poll cycle every interval plus pongs keep the deadline moving
	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					_lg.Warnf("WebSocket error: %v", err)
				} else {
					_lg.Infof("Connection closed: %v", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				_lg.Debugf("Received unexpected message type: %d", messageType)
				continue
			}
			if reading := types.MeterReadingsFromJsonBytes(message); reading != nil {
				funcToCall(reading)
			} else {
				_lg.Warnf("Failed to parse meter reading: %s", string(message))
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_lg.Warnf("Failed to send ping: %v", err)
			}
		case <-ctx.Done():
			_lg.Info("Shutting down, closing connection...")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				_lg.Debugf("Error sending close message: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
