package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"stock-cache/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub owns client registration until Stop.
func (s *APIServer) runHub() {
	for {
		select {
		case client := <-s.register:
			s.stateMutex.Lock()
			s.clients[client] = struct{}{}
			s.stateMutex.Unlock()
			s.Logger.Debug("Client connected (%d total)", s.Connections())

		case client := <-s.unregister:
			s.stateMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.closeSend()
			}
			s.stateMutex.Unlock()

		case <-s.quit:
			s.stateMutex.Lock()
			for client := range s.clients {
				s.Subscriptions.UnsubscribeAll(client)
				client.closeSend()
				delete(s.clients, client)
			}
			s.stateMutex.Unlock()
			return
		}
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)
	select {
	case s.register <- client:
	case <-s.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies one subscribe or unsubscribe command. Invalid
// commands are answered with an errors message and leave the client connected.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	s.Logger.Debug("Received WS message: %s", message)

	var cmd models.MLatestPriceCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		client.enqueue(models.MErrorsMessage{Errors: []string{fmt.Sprintf("invalid JSON: %v", err)}})
		return
	}
	cmd.Normalize()
	cmd.Action = strings.ToLower(cmd.Action)

	if err := s.validate.Struct(cmd); err != nil {
		client.enqueue(models.MErrorsMessage{Errors: validationMessages(err)})
		return
	}

	instruments, err := s.Stocks.ListInstruments(client.ctx, cmd.Names)
	if err != nil {
		s.Logger.Error("Resolving %v failed: %v", cmd.Names, err)
		client.enqueue(models.MErrorsMessage{Errors: []string{"internal error"}})
		return
	}
	if len(instruments) == 0 {
		client.enqueue(models.MErrorsMessage{Errors: []string{fmt.Sprintf("no instrument matches %v", cmd.Names)}})
		return
	}

	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		symbols = append(symbols, inst.Symbol)
	}

	switch cmd.Action {
	case "subscribe":
		s.Subscriptions.Subscribe(symbols, client)
	case "unsubscribe":
		s.Subscriptions.Unsubscribe(symbols, client)
	}
}
