package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/avolkov/slotcore/internal/control"
	"github.com/avolkov/slotcore/internal/database"
	"github.com/avolkov/slotcore/internal/ledger"
	"github.com/avolkov/slotcore/internal/settlement"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string              `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// WSClient represents a WebSocket client connection pinned to one game.
type WSClient struct {
	conn     *websocket.Conn
	send     chan []byte
	playerID int64
	gameID   int64
	mu       sync.Mutex
}

// HandleWebSocket upgrades an authenticated request into an interactive
// round session on one game.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	gameID, err := strconv.ParseInt(mux.Vars(r)["game_id"], 10, 64)
	if err != nil {
		http.Error(w, "Game id must be numeric", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetGame(r.Context(), gameID); err != nil {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	if err := h.control.CheckAccess(r.Context(), account.ID, gameID); err != nil {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:     conn,
		send:     make(chan []byte, 256),
		playerID: account.ID,
		gameID:   gameID,
	}

	go client.writePump()
	go h.readPump(client)
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the handler
func (h *Handler) readPump(c *WSClient) {
	defer func() {
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	h.sendMessage(c, "connected", map[string]interface{}{
		"game_id": c.gameID,
		"message": "Connected to game",
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read failed", zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(c, "INVALID_MESSAGE", "Invalid message format")
			continue
		}

		h.handleWSMessage(c, &msg)
	}
}

// handleWSMessage processes incoming WebSocket messages
func (h *Handler) handleWSMessage(c *WSClient, msg *WSMessage) {
	ctx := context.Background()

	switch msg.Type {
	case "spin", "play":
		h.handleSpinMessage(c, msg)

	case "balance":
		balance, err := h.store.PlayerBalance(ctx, c.playerID)
		if err != nil {
			h.sendError(c, "BALANCE_ERROR", "Failed to get balance")
			return
		}
		h.sendMessage(c, "balance", balance)

	case "history":
		history, err := h.store.RoundHistory(ctx, c.playerID, 10)
		if err != nil {
			h.sendError(c, "HISTORY_ERROR", "Failed to get history")
			return
		}
		h.sendMessage(c, "history", history)

	case "ping":
		h.sendMessage(c, "pong", map[string]interface{}{
			"timestamp": time.Now().Unix(),
		})

	default:
		h.sendError(c, "UNKNOWN_MESSAGE", "Unknown message type: "+msg.Type)
	}
}

// handleSpinMessage settles one round for the connected player.
func (h *Handler) handleSpinMessage(c *WSClient, msg *WSMessage) {
	ctx := context.Background()

	var req SpinRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.sendError(c, "INVALID_PAYLOAD", "Invalid spin payload")
		return
	}
	if req.SlotEvent == "" {
		req.SlotEvent = "bet"
	}
	if req.WinType == "" {
		req.WinType = "normal"
	}

	if err := h.control.CheckAccess(ctx, c.playerID, c.gameID); err != nil {
		switch {
		case errors.Is(err, control.ErrGamingDisabled):
			h.sendError(c, "GAMING_DISABLED", "Gaming is currently disabled")
		case errors.Is(err, control.ErrGameDisabled):
			h.sendError(c, "GAME_DISABLED", "Game is currently disabled")
		default:
			h.sendError(c, "PLAYER_DISABLED", "Player account is disabled")
		}
		return
	}

	result, err := h.store.RoundTx(ctx, c.playerID, c.gameID,
		func(snap *settlement.Snapshot) (*settlement.Result, error) {
			snap.BetLevel = req.BetLevel
			snap.Lines = req.Lines
			snap.Denomination = req.Denomination
			snap.SlotEvent = req.SlotEvent
			snap.WinType = req.WinType
			snap.BonusSubtype = req.BonusSubtype
			snap.BonusRound = req.BonusRound
			return h.settlement.Settle(snap)
		})
	if err != nil {
		var iv *ledger.InvariantViolation
		switch {
		case errors.As(err, &iv) && iv.Kind == "balance":
			h.sendError(c, "INSUFFICIENT_BALANCE", "Insufficient balance")
		case errors.As(err, &iv):
			h.sendError(c, "BANK_UNDERFUNDED", "Round cannot settle against the bank pool")
		case errors.Is(err, settlement.ErrRoundInactive):
			h.sendError(c, "ROUND_INACTIVE", "Game, shop or player is not active")
		case errors.Is(err, database.ErrGameNotFound):
			h.sendError(c, "GAME_NOT_FOUND", "Game not found")
		default:
			h.sendError(c, "ROUND_ERROR", err.Error())
		}
		return
	}

	h.sendMessage(c, "outcome", result)
}

// sendMessage sends a message to the client
func (h *Handler) sendMessage(c *WSClient, msgType string, payload interface{}) {
	payloadBytes, _ := json.Marshal(payload)
	msg := WSMessage{
		Type:    msgType,
		Payload: payloadBytes,
	}
	msgBytes, _ := json.Marshal(msg)

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case c.send <- msgBytes:
	default:
		// Channel full, drop message
	}
}

// sendError sends an error message to the client
func (h *Handler) sendError(c *WSClient, code, message string) {
	h.sendMessage(c, "error", map[string]string{
		"code":    code,
		"message": message,
	})
}
