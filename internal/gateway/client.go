package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/portalchat/internal/chat"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in the hot path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client is one WebSocket connection bound to one chat session. It is the
// session's Sink: every session outcome becomes an outgoing event.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [readPump, writePump] ->
// Close -> Wait.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *chat.Session
	send    chan OutgoingEvent
	userID  string
	role    model.Role

	// done guards non-blocking enqueue after shutdown.
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, role model.Role, deps chat.SessionDeps) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan OutgoingEvent, sendBufSize),
		userID: userID,
		role:   role,
		done:   make(chan struct{}),
	}
	c.session = chat.NewSession(deps, userID, role, c)
	return c
}

// Start launches both pumps and the session's initial load.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)

	go func() {
		if err := c.session.Start(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Errorf("gateway session start user=%s: %v", c.userID, err)
				c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "failed to load contacts"}})
			}
		}
	}()
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close tears the connection and session down. Safe to call multiple times
// from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.session.Close()
		c.conn.Close()
	})
}

// enqueue hands an event to the write pump without blocking. A full buffer
// means the client cannot keep up; dropping the connection is cheaper than
// stalling, the browser reconnects and re-syncs from fresh queries.
func (c *Client) enqueue(ev OutgoingEvent) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		logger.Errorf("gateway send buffer full user=%s, closing", c.userID)
		go c.Close()
	}
}

// --- chat.Sink ---

func (c *Client) ContactsChanged(contacts []model.Contact, newlyAppeared []string) {
	c.enqueue(OutgoingEvent{Type: EventContacts, Payload: ContactsPayload{
		Contacts:      contacts,
		ContactRole:   c.role.Counterpart(),
		NewlyAppeared: newlyAppeared,
	}})
}

func (c *Client) ConversationOpened(conversationID string) {
	c.enqueue(OutgoingEvent{Type: EventConversationOpened, Payload: ConversationOpenedPayload{
		ConversationID: conversationID,
		Draft:          c.session.Draft(),
	}})
}

func (c *Client) MessagesChanged(conversationID string, messages []model.Message) {
	c.enqueue(OutgoingEvent{Type: EventMessages, Payload: MessagesPayload{
		ConversationID: conversationID,
		Messages:       chat.RenderMessages(messages, c.userID),
	}})
}

func (c *Client) SendFailed(conversationID, restoredDraft, reason string) {
	c.enqueue(OutgoingEvent{Type: EventSendFailed, Payload: SendFailedPayload{
		ConversationID: conversationID,
		RestoredDraft:  restoredDraft,
		Reason:         reason,
	}})
}

func (c *Client) ConversationNotFound(conversationID string) {
	c.enqueue(OutgoingEvent{Type: EventConversationNotFound, Payload: ConversationNotFoundPayload{
		ConversationID: conversationID,
	}})
}

// --- pumps ---

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("gateway set read deadline user=%s: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("gateway read error user=%s: %v", c.userID, err)
			}
			return
		}

		var ev IncomingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Errorf("gateway unmarshal error user=%s: %v", c.userID, err)
			continue
		}

		c.handleEvent(ctx, ev)
	}
}

func (c *Client) handleEvent(ctx context.Context, ev IncomingEvent) {
	switch ev.Type {
	case EventOpenContact:
		if err := c.session.OpenContact(ctx, ev.ContactID); err != nil && ctx.Err() == nil {
			logger.Errorf("gateway open contact user=%s: %v", c.userID, err)
			c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "failed to open conversation"}})
		}
	case EventOpenConversation:
		if err := c.session.OpenConversation(ctx, ev.ConversationID); err != nil && ctx.Err() == nil {
			logger.Errorf("gateway open conv user=%s: %v", c.userID, err)
			c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "failed to open conversation"}})
		}
	case EventCompose:
		c.session.SetDraft(ev.Content)
	case EventSendMessage:
		// Send errors reach the browser via SendFailed; validation errors are
		// client bugs worth a direct error event.
		switch err := c.session.SubmitText(ctx, ev.Content); err {
		case nil, chat.ErrSendInFlight:
		case chat.ErrEmptyMessage:
			c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "message is empty"}})
		case chat.ErrNoConversation:
			c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "no conversation open"}})
		}
	case EventSendAttachment:
		att := &model.Attachment{URL: ev.AttachmentURL, Name: ev.AttachmentName, SizeBytes: ev.AttachmentSize}
		kind := model.ContentTypeFile
		if ev.AttachmentKind == string(model.ContentTypeImage) {
			kind = model.ContentTypeImage
		}
		if err := c.session.SubmitAttachment(ctx, att, kind); err != nil && ctx.Err() == nil {
			switch err {
			case chat.ErrEmptyMessage:
				c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "attachment reference is missing"}})
			case chat.ErrNoConversation:
				c.enqueue(OutgoingEvent{Type: EventError, Payload: ErrorPayload{Message: "no conversation open"}})
			}
		}
	case EventMarkRead:
		c.session.MarkRead(ctx, ev.MessageID)
	default:
		logger.Errorf("gateway unknown event %q user=%s", ev.Type, c.userID)
	}
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Errorf("gateway close message user=%s: %v", c.userID, err)
			}
			return
		case ev := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("gateway set write deadline user=%s: %v", c.userID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(ev); err != nil {
				bufPool.Put(buf)
				logger.Errorf("gateway marshal error user=%s: %v", c.userID, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text frames.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("gateway set write deadline user=%s: %v", c.userID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
