package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/choislab/hanisearch/internal/chat"
	"github.com/choislab/hanisearch/internal/store"
)

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rooms, err := s.deps.Chat.Rooms()
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load rooms")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})

	case http.MethodPost:
		var body struct {
			Title string `json:"title"`
			Owner string `json:"owner"`
		}
		if err := decodeJSONBody(r, &body); err != nil || body.Owner == "" {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "title and owner are required")
			return
		}
		room, err := s.deps.Chat.CreateRoom(body.Title, body.Owner)
		if err != nil {
			if errors.Is(err, chat.ErrDuplicateTitle) {
				writeAPIError(w, http.StatusConflict, "DUPLICATE_TITLE", "room title already in use")
				return
			}
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, room)

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	roomID, sub, _ := strings.Cut(rest, "/")
	if roomID == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "room id is required")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		room, err := s.deps.Chat.Room(roomID)
		if err != nil {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "room not found")
			return
		}
		writeJSON(w, http.StatusOK, room)

	case sub == "messages" && r.Method == http.MethodGet:
		msgs, err := s.deps.Chat.Messages(roomID)
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load messages")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

// --- Websocket chat ---

type wsClientMessage struct {
	Type    string `json:"type"` // "message"
	Content string `json:"content,omitempty"`
}

type wsServerMessage struct {
	Type    string        `json:"type"` // "message", "error", "joined"
	Code    string        `json:"code,omitempty"`
	Message *chat.Message `json:"message,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	Time    time.Time     `json:"time,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// chatHub fans room messages out to connected sockets.
type chatHub struct {
	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]struct{}
}

func newChatHub() *chatHub {
	return &chatHub{rooms: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *chatHub) add(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*websocket.Conn]struct{})
	}
	h.rooms[roomID][conn] = struct{}{}
}

func (h *chatHub) remove(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[roomID], conn)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
}

// broadcast sends a message to every socket in a room. Direct messages
// are not filtered here; clients render them only for the sender and
// target, matching the stored record visibility.
func (h *chatHub) broadcast(roomID string, msg wsServerMessage) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[roomID]))
	for conn := range h.rooms[roomID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			webLog.Debug("chat broadcast write failed", "room", roomID, "error", err)
		}
	}
}

func (h *chatHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.rooms {
		for conn := range conns {
			_ = conn.Close()
		}
	}
	h.rooms = make(map[string]map[*websocket.Conn]struct{})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/ws/chat/")
	if roomID == "" || strings.Contains(roomID, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "room id is required")
		return
	}
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "user is required")
		return
	}

	if _, err := s.deps.Chat.Room(roomID); err != nil {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "room not found")
		return
	}
	if err := s.deps.Chat.Join(roomID, user); err != nil {
		if errors.Is(err, chat.ErrRoomClosed) {
			writeAPIError(w, http.StatusGone, "ROOM_CLOSED", "room is closed")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "join failed")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		webLog.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.add(roomID, conn)
	defer func() {
		s.hub.remove(roomID, conn)
		conn.Close()
	}()

	_ = conn.WriteJSON(wsServerMessage{Type: "joined", Time: time.Now()})

	for {
		var in wsClientMessage
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Type != "message" || strings.TrimSpace(in.Content) == "" {
			_ = conn.WriteJSON(wsServerMessage{Type: "error", Code: "INVALID_MESSAGE"})
			continue
		}

		msg, err := s.deps.Chat.Post(roomID, user, in.Content)
		if err != nil {
			_ = conn.WriteJSON(wsServerMessage{
				Type:   "error",
				Code:   chatErrorCode(err),
				Detail: err.Error(),
			})
			continue
		}
		s.hub.broadcast(roomID, wsServerMessage{Type: "message", Message: msg, Time: msg.Created})
	}
}

func chatErrorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotMember):
		return "NOT_MEMBER"
	case errors.Is(err, chat.ErrNotOwner):
		return "NOT_OWNER"
	case errors.Is(err, chat.ErrRoomClosed):
		return "ROOM_CLOSED"
	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
