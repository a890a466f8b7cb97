package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/naveenspark/chatsync/pkg/domain"
)

// DefaultPageSize is the number of items requested per page when the caller passes 0.
const DefaultPageSize = 50

// Reaction toggle actions.
const (
	ReactionAdd    = "add"
	ReactionRemove = "remove"
)

// CreateGroupRequest is the payload for creating a group room.
type CreateGroupRequest struct {
	Name           string   `json:"name" validate:"required,max=100"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required"`
}

// SendMessageRequest is the payload for posting a message to a room.
type SendMessageRequest struct {
	RoomID  string             `json:"-" validate:"required"`
	Content string             `json:"content" validate:"required_without=File,max=4000"`
	Type    domain.MessageType `json:"type" validate:"required,oneof=text file image"`
	ReplyTo string             `json:"reply_to,omitempty"`
	File    *FileUpload        `json:"-"`
}

// FileUpload is a binary attachment sent as multipart form data.
type FileUpload struct {
	Name     string    `validate:"required"`
	MimeType string    `validate:"omitempty"`
	Reader   io.Reader `validate:"required"`
}

// RoomPage is one page of the room listing.
type RoomPage struct {
	Items   []domain.Room `json:"items"`
	Page    int           `json:"page"`
	HasMore bool          `json:"has_more"`
}

// Client is the chat API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Rooms ---

// ListRooms fetches one page of the caller's rooms.
func (c *Client) ListRooms(ctx context.Context, page, pageSize int) (*RoomPage, error) {
	var out RoomPage
	if err := c.get(ctx, "/api/chat/rooms?"+pageParams(page, pageSize).Encode(), &out); err != nil {
		return nil, fmt.Errorf("client.ListRooms: %w", err)
	}
	return &out, nil
}

// ListAllRooms follows has_more until every page of rooms is fetched.
func (c *Client) ListAllRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	for page := 1; ; page++ {
		p, err := c.ListRooms(ctx, page, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, p.Items...)
		if !p.HasMore || len(p.Items) == 0 {
			return rooms, nil
		}
	}
}

// GetRoom fetches a single room's canonical state.
func (c *Client) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	if err := c.get(ctx, roomPath(id), &room); err != nil {
		return nil, fmt.Errorf("client.GetRoom: %w", err)
	}
	return &room, nil
}

// CreateDirectRoom creates or retrieves the direct room with userID.
func (c *Client) CreateDirectRoom(ctx context.Context, userID string) (*domain.Room, error) {
	if userID == "" {
		return nil, fmt.Errorf("client.CreateDirectRoom: %w", &ValidationError{Fields: []string{"user_id is required"}})
	}
	var room domain.Room
	if err := c.post(ctx, "/api/chat/rooms/direct", map[string]string{"user_id": userID}, &room); err != nil {
		return nil, fmt.Errorf("client.CreateDirectRoom: %w", err)
	}
	return &room, nil
}

// CreateGroupRoom creates a named group room.
func (c *Client) CreateGroupRoom(ctx context.Context, req CreateGroupRequest) (*domain.Room, error) {
	if err := validateStruct(req); err != nil {
		return nil, fmt.Errorf("client.CreateGroupRoom: %w", err)
	}
	var room domain.Room
	if err := c.post(ctx, "/api/chat/rooms/group", req, &room); err != nil {
		return nil, fmt.Errorf("client.CreateGroupRoom: %w", err)
	}
	return &room, nil
}

// LeaveRoom removes the caller from a room.
func (c *Client) LeaveRoom(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodPost, roomPath(id)+"/leave", nil, nil); err != nil {
		return fmt.Errorf("client.LeaveRoom: %w", err)
	}
	return nil
}

// MarkRead marks every message in a room as read by the caller.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodPost, roomPath(id)+"/read", nil, nil); err != nil {
		return fmt.Errorf("client.MarkRead: %w", err)
	}
	return nil
}

// --- Messages ---

// GetMessages returns one page of a room's history, newest first.
func (c *Client) GetMessages(ctx context.Context, roomID string, page, pageSize int) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.get(ctx, roomPath(roomID)+"/messages?"+pageParams(page, pageSize).Encode(), &msgs); err != nil {
		return nil, fmt.Errorf("client.GetMessages: %w", err)
	}
	return msgs, nil
}

// SendMessage posts a message and returns the server's record of it.
// When req.File is set the message is sent as multipart form data.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*domain.Message, error) {
	if req.Type == "" {
		req.Type = domain.MessageText
	}
	if err := validateStruct(req); err != nil {
		return nil, fmt.Errorf("client.SendMessage: %w", err)
	}
	var msg domain.Message
	if req.File != nil {
		if err := c.postMultipart(ctx, roomPath(req.RoomID)+"/messages", req, &msg); err != nil {
			return nil, fmt.Errorf("client.SendMessage: %w", err)
		}
		return &msg, nil
	}
	if err := c.post(ctx, roomPath(req.RoomID)+"/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("client.SendMessage: %w", err)
	}
	return &msg, nil
}

// EditMessage replaces a message's content and returns the updated record.
func (c *Client) EditMessage(ctx context.Context, roomID, messageID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("client.EditMessage: %w", &ValidationError{Fields: []string{"content is required"}})
	}
	var msg domain.Message
	if err := c.doRequest(ctx, http.MethodPatch, messagePath(roomID, messageID), map[string]string{"content": content}, &msg); err != nil {
		return nil, fmt.Errorf("client.EditMessage: %w", err)
	}
	return &msg, nil
}

// DeleteMessage soft-deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, messagePath(roomID, messageID), nil, nil); err != nil {
		return fmt.Errorf("client.DeleteMessage: %w", err)
	}
	return nil
}

// ToggleReaction adds or removes the caller's emoji reaction and returns the
// message's full reactions map after the change.
func (c *Client) ToggleReaction(ctx context.Context, roomID, messageID, emoji, action string) (domain.Reactions, error) {
	req := struct {
		Emoji  string `json:"emoji" validate:"required"`
		Action string `json:"action" validate:"required,oneof=add remove"`
	}{Emoji: emoji, Action: action}
	if err := validateStruct(req); err != nil {
		return nil, fmt.Errorf("client.ToggleReaction: %w", err)
	}
	var out struct {
		Reactions domain.Reactions `json:"reactions"`
	}
	if err := c.post(ctx, messagePath(roomID, messageID)+"/reactions", req, &out); err != nil {
		return nil, fmt.Errorf("client.ToggleReaction: %w", err)
	}
	if out.Reactions == nil {
		out.Reactions = domain.Reactions{}
	}
	return out.Reactions, nil
}

func roomPath(id string) string {
	return "/api/chat/rooms/" + url.PathEscape(id)
}

func messagePath(roomID, messageID string) string {
	return roomPath(roomID) + "/messages/" + url.PathEscape(messageID)
}

func pageParams(page, pageSize int) url.Values {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	return params
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, req SendMessageRequest, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"content":  req.Content,
		"type":     string(req.Type),
		"reply_to": req.ReplyTo,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	mimeType := req.File.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.File.Name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, req.File.Reader); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reqBody, contentType, out)
}

func (c *Client) send(ctx context.Context, method, path string, reqBody io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}
