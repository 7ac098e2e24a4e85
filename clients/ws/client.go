// Package ws provides a WebSocket client for the taskchat gateway.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/dohr-michael/taskchat/internal/dispatch"
	wsprotocol "github.com/dohr-michael/taskchat/internal/gateway/ws"
	"github.com/dohr-michael/taskchat/internal/identity"
)

// Client is a WebSocket client for the taskchat gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	// OnEvent, when set, receives event frames read while waiting for a
	// response.
	OnEvent func(wsprotocol.Frame)
}

// Dial connects to the gateway WebSocket endpoint as userID.
func Dial(ctx context.Context, url, userID string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{identity.Header: []string{userID}},
	})
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// SendMessage sends a chat message and returns the request id.
func (c *Client) SendMessage(ctx context.Context, content, conversationID string) (string, error) {
	id := fmt.Sprintf("req-%d", atomic.AddUint64(&c.reqSeq, 1))

	frame, err := wsprotocol.NewRequestFrame(id, wsprotocol.MethodSendMessage, wsprotocol.SendMessageParams{
		Content:        content,
		ConversationID: conversationID,
	})
	if err != nil {
		return "", err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	return id, c.conn.Write(ctx, websocket.MessageText, data)
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame(ctx context.Context) (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Ask sends content and waits for its response.
func (c *Client) Ask(ctx context.Context, content, conversationID string) (*dispatch.Response, error) {
	id, err := c.SendMessage(ctx, content, conversationID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	for {
		frame, err := c.ReadFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		switch frame.Type {
		case wsprotocol.FrameTypeEvent:
			if c.OnEvent != nil {
				c.OnEvent(frame)
			}
			continue
		case wsprotocol.FrameTypeResponse:
		default:
			continue
		}
		if frame.ID != id {
			continue
		}
		if frame.OK == nil || !*frame.OK {
			return nil, fmt.Errorf("gateway: %s", frame.Error)
		}
		var resp dispatch.Response
		if err := json.Unmarshal(frame.Payload, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &resp, nil
	}
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
