// Package chat implements the room and message layer over the record
// store. Rooms carry a member list and an owner; messages are typed so
// clients can render notices, direct messages, and system events apart
// from plain traffic.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/choislab/hanisearch/internal/logging"
	"github.com/choislab/hanisearch/internal/store"
)

var chatLog = logging.ForComponent(logging.CompChat)

var (
	ErrDuplicateTitle = errors.New("chat: room title already in use")
	ErrNotMember      = errors.New("chat: user is not a room member")
	ErrNotOwner       = errors.New("chat: only the room owner may do this")
	ErrRoomClosed     = errors.New("chat: room is closed")
)

// Room mirrors one rooms record.
type Room struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Active  bool      `json:"active"`
	Owner   string    `json:"owner"`
	Members []string  `json:"members"`
	Created time.Time `json:"created"`
}

// Message mirrors one messages record. Type is a Command kind string,
// or "system" / "invitation" for service-generated events.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room"`
	User       string    `json:"user"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	TargetUser string    `json:"target_user,omitempty"`
	Created    time.Time `json:"created"`
}

type roomData struct {
	Title   string   `json:"title"`
	Active  bool     `json:"active"`
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

type messageData struct {
	Room       string `json:"room"`
	User       string `json:"user"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	TargetUser string `json:"target_user,omitempty"`
}

// Service exposes room and message operations.
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateRoom opens a new active room owned by its creator. Titles are
// unique across open and closed rooms.
func (s *Service) CreateRoom(title, owner string) (*Room, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("chat: empty room title")
	}
	rooms, err := s.Rooms()
	if err != nil {
		return nil, err
	}
	for _, r := range rooms {
		if r.Title == title {
			return nil, ErrDuplicateTitle
		}
	}

	rec, err := s.store.Create(store.CollRooms, "", title, roomData{
		Title:   title,
		Active:  true,
		Owner:   owner,
		Members: []string{owner},
	})
	if err != nil {
		return nil, err
	}
	chatLog.Info("room created", "room", rec.ID, "title", title, "owner", owner)
	return roomFromRecord(rec)
}

// Rooms lists every room in creation order.
func (s *Service) Rooms() ([]*Room, error) {
	records, err := s.store.List(store.CollRooms)
	if err != nil {
		return nil, err
	}
	rooms := make([]*Room, 0, len(records))
	for _, rec := range records {
		r, err := roomFromRecord(rec)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

// Room fetches one room.
func (s *Service) Room(id string) (*Room, error) {
	rec, err := s.store.Get(store.CollRooms, id)
	if err != nil {
		return nil, err
	}
	return roomFromRecord(rec)
}

func roomFromRecord(rec *store.Record) (*Room, error) {
	var data roomData
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return nil, fmt.Errorf("chat: decode room %s: %w", rec.ID, err)
	}
	return &Room{
		ID:      rec.ID,
		Title:   data.Title,
		Active:  data.Active,
		Owner:   data.Owner,
		Members: data.Members,
		Created: rec.Created,
	}, nil
}

func (s *Service) saveRoom(r *Room) error {
	_, err := s.store.Update(store.CollRooms, r.ID, roomData{
		Title:   r.Title,
		Active:  r.Active,
		Owner:   r.Owner,
		Members: r.Members,
	})
	return err
}

// Join adds a user to a room and posts a system message.
func (s *Service) Join(roomID, user string) error {
	r, err := s.Room(roomID)
	if err != nil {
		return err
	}
	if !r.Active {
		return ErrRoomClosed
	}
	if slices.Contains(r.Members, user) {
		return nil
	}
	r.Members = append(r.Members, user)
	if err := s.saveRoom(r); err != nil {
		return err
	}
	_, err = s.appendMessage(roomID, "", user+" 님이 입장했습니다", "system", "")
	return err
}

// Leave removes a user from a room and posts a system message.
func (s *Service) Leave(roomID, user string) error {
	r, err := s.Room(roomID)
	if err != nil {
		return err
	}
	i := slices.Index(r.Members, user)
	if i < 0 {
		return ErrNotMember
	}
	r.Members = slices.Delete(r.Members, i, i+1)
	if err := s.saveRoom(r); err != nil {
		return err
	}
	_, err = s.appendMessage(roomID, "", user+" 님이 퇴장했습니다", "system", "")
	return err
}

// Invite adds a user on the owner's behalf and posts an invitation
// message addressed to them.
func (s *Service) Invite(roomID, owner, invitee string) error {
	r, err := s.Room(roomID)
	if err != nil {
		return err
	}
	if r.Owner != owner {
		return ErrNotOwner
	}
	if !r.Active {
		return ErrRoomClosed
	}
	if !slices.Contains(r.Members, invitee) {
		r.Members = append(r.Members, invitee)
		if err := s.saveRoom(r); err != nil {
			return err
		}
	}
	_, err = s.appendMessage(roomID, owner, invitee+" 님을 초대했습니다", "invitation", invitee)
	return err
}

// Close deactivates a room. Only the owner may close it.
func (s *Service) Close(roomID, user string) error {
	r, err := s.Room(roomID)
	if err != nil {
		return err
	}
	if r.Owner != user {
		return ErrNotOwner
	}
	r.Active = false
	return s.saveRoom(r)
}

// Post parses raw input and appends the resulting message. Direct
// messages and emails require the target to be a member; notices are
// owner-only.
func (s *Service) Post(roomID, user, raw string) (*Message, error) {
	r, err := s.Room(roomID)
	if err != nil {
		return nil, err
	}
	if !r.Active {
		return nil, ErrRoomClosed
	}
	if !slices.Contains(r.Members, user) {
		return nil, ErrNotMember
	}

	cmd := ParseCommand(raw)
	switch cmd.Kind {
	case KindDirectMessage, KindEmail:
		if !slices.Contains(r.Members, cmd.Target) {
			return nil, fmt.Errorf("%w: %s", ErrNotMember, cmd.Target)
		}
	case KindNotice:
		if r.Owner != user {
			return nil, ErrNotOwner
		}
	}
	return s.appendMessage(roomID, user, cmd.Body, cmd.Kind.String(), cmd.Target)
}

// Messages returns a room's messages in order.
func (s *Service) Messages(roomID string) ([]*Message, error) {
	records, err := s.store.List(store.CollMessages)
	if err != nil {
		return nil, err
	}
	var msgs []*Message
	for _, rec := range records {
		var data messageData
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return nil, fmt.Errorf("chat: decode message %s: %w", rec.ID, err)
		}
		if data.Room != roomID {
			continue
		}
		msgs = append(msgs, &Message{
			ID:         rec.ID,
			RoomID:     data.Room,
			User:       data.User,
			Content:    data.Content,
			Type:       data.Type,
			TargetUser: data.TargetUser,
			Created:    rec.Created,
		})
	}
	return msgs, nil
}

func (s *Service) appendMessage(roomID, user, content, typ, target string) (*Message, error) {
	rec, err := s.store.Create(store.CollMessages, "", "", messageData{
		Room:       roomID,
		User:       user,
		Content:    content,
		Type:       typ,
		TargetUser: target,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:         rec.ID,
		RoomID:     roomID,
		User:       user,
		Content:    content,
		Type:       typ,
		TargetUser: target,
		Created:    rec.Created,
	}, nil
}
