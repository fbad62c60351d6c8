package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/engine"
	"github.com/DevWeb3Jogja/batch-5-fe/executor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// conn is one websocket client and its conversation.
type conn struct {
	srv            *Server
	ws             *websocket.Conn
	userID         string
	token          string
	conversationID string
	log            zerolog.Logger

	writeMu sync.Mutex

	// history is only touched by the worker goroutine.
	history []core.Message
}

func newConn(srv *Server, ws *websocket.Conn, userID, token string) *conn {
	conversationID := uuid.New().String()
	if userID == "" {
		userID = "anon-" + conversationID[:8]
	}
	return &conn{
		srv:            srv,
		ws:             ws,
		userID:         userID,
		token:          token,
		conversationID: conversationID,
		log:            srv.log.With().Str("user_id", userID).Str("conversation_id", conversationID).Logger(),
	}
}

// serve reads frames until the client goes away. Frames are handled in
// order by a single worker so the conversation history stays linear.
func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.ws.Close()

	if c.token != "" {
		ctx = executor.WithAuthToken(ctx, c.token)
	}

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	inbox := make(chan ClientMessage, 8)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.work(ctx, inbox)
	}()
	go func() {
		defer wg.Done()
		c.keepalive(ctx)
	}()
	if c.srv.cfg.Session != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.pushOperations(ctx)
		}()
	}

	c.log.Info().Msg("client connected")
	defer c.log.Info().Msg("client disconnected")

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			break
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message: " + err.Error())
			continue
		}
		select {
		case inbox <- msg:
		default:
			c.sendError("too many messages in flight, wait for a reply")
		}
	}

	cancel()
	close(inbox)
	wg.Wait()
}

func (c *conn) work(ctx context.Context, inbox <-chan ClientMessage) {
	for msg := range inbox {
		if ctx.Err() != nil {
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *conn) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case TypeMessage:
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			c.sendError("message content required")
			return
		}
		input := c.input()
		input.UserMessage = content
		out, err := c.srv.engine.Run(ctx, input)
		c.deliver(out, err)

	case TypeConfirm:
		if msg.ActionID == "" {
			c.sendError("action_id required")
			return
		}
		out, err := c.srv.engine.Confirm(ctx, c.input(), msg.ActionID)
		c.deliver(out, err)

	case TypeCancel:
		if msg.ActionID == "" {
			c.sendError("action_id required")
			return
		}
		reply, err := c.srv.engine.Cancel(c.userID, msg.ActionID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.history = append(c.history, *reply)
		c.send(ServerMessage{Type: TypeText, Content: "Cancelled. Nothing was sent."})

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *conn) input() *engine.Input {
	in := &engine.Input{
		Context: &core.Context{
			UserID:         c.userID,
			ConversationID: c.conversationID,
			Limits: &core.ExecutionLimits{
				MaxTurns:   c.srv.cfg.MaxTurns,
				CanConfirm: true,
				Timeout:    c.srv.cfg.RunTimeout,
			},
		},
		History:      c.history,
		SystemPrompt: c.srv.cfg.SystemPrompt,
		Model:        c.srv.cfg.Model,
		MaxTokens:    c.srv.cfg.MaxTokens,
		AgentName:    "vault-agent",
	}
	if c.srv.cfg.Stream {
		in.StreamCallback = func(chunk string, done bool) {
			if !done && chunk != "" {
				c.send(ServerMessage{Type: TypeTextChunk, Content: chunk})
			}
		}
	}
	return in
}

func (c *conn) deliver(out *engine.Output, err error) {
	if out == nil {
		if err != nil {
			c.sendError(err.Error())
		}
		return
	}
	if out.History != nil {
		c.history = out.History
	}

	switch out.Type {
	case engine.OutputComplete:
		c.send(ServerMessage{Type: TypeText, Content: out.Text, ConversationID: c.conversationID})

	case engine.OutputConfirmationNeeded:
		if out.Text != "" {
			c.send(ServerMessage{Type: TypeText, Content: out.Text, ConversationID: c.conversationID})
		}
		action := out.PendingAction
		c.send(ServerMessage{
			Type:      TypeConfirmRequest,
			ActionID:  action.ID,
			Tool:      action.Tool,
			Summary:   action.Summary,
			ExpiresAt: action.ExpiresAt,
		})

	case engine.OutputError:
		msg := "agent run failed"
		if out.Error != nil {
			msg = out.Error.Error()
		}
		c.sendError(msg)
	}
}

func (c *conn) pushOperations(ctx context.Context) {
	states, stop := c.srv.cfg.Session.Watch(16)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			c.send(ServerMessage{Type: TypeOperation, Operation: &st})
		}
	}
}

func (c *conn) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *conn) send(msg ServerMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.log.Debug().Err(err).Str("type", msg.Type).Msg("write failed")
	}
}

func (c *conn) sendError(content string) {
	c.send(ServerMessage{Type: TypeError, Content: content})
}
