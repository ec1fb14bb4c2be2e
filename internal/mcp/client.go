package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/usecase"
)

// Client is the HTTP client for the facilitator admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new admin API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// StatusReport is a facilitator status with the stuck flag computed by the server
type StatusReport struct {
	Status domain.FacilitatorStatus `json:"status"`
	Stuck  bool                     `json:"stuck"`
}

// ActionResult is the outcome of an operator action that may post a message
type ActionResult struct {
	Text string `json:"text"`
	Sent bool   `json:"sent"`
}

// ============ Lobbies ============

// ListLobbies gets every open lobby
func (c *Client) ListLobbies() ([]usecase.Summary, error) {
	var result struct {
		Lobbies []usecase.Summary `json:"lobbies"`
	}
	if err := c.get("/api/lobbies", &result); err != nil {
		return nil, err
	}
	return result.Lobbies, nil
}

// GetLobby gets one lobby
func (c *Client) GetLobby(code string) (*usecase.Summary, error) {
	var summary usecase.Summary
	if err := c.get("/api/lobbies/"+url.PathEscape(code), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// CloseLobby closes a lobby and all of its chatrooms
func (c *Client) CloseLobby(code string) error {
	return c.delete("/api/lobbies/" + url.PathEscape(code))
}

// ListLobbyRecords gets persisted lobby records, newest first
func (c *Client) ListLobbyRecords() ([]domain.LobbyRecord, error) {
	var result struct {
		Lobbies []domain.LobbyRecord `json:"lobbies"`
	}
	if err := c.get("/api/records/lobbies", &result); err != nil {
		return nil, err
	}
	return result.Lobbies, nil
}

// ============ Chatrooms ============

// FacilitatorStatus gets the status of a chatroom facilitator
func (c *Client) FacilitatorStatus(code, room string) (*StatusReport, error) {
	var report StatusReport
	if err := c.get(roomPath(code, room, "/status"), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RetryFacilitator re-runs initialization of a stuck facilitator
func (c *Client) RetryFacilitator(code, room string) (*ActionResult, error) {
	var result ActionResult
	if err := c.post(roomPath(code, room, "/initialize"), nil, &result); err != nil {
		return nil, err
	}
	result.Sent = result.Text != ""
	return &result, nil
}

// RequestConclusion asks a chatroom to wrap up
func (c *Client) RequestConclusion(code, room string, minutesLeft int) (*ActionResult, error) {
	var result ActionResult
	body := map[string]int{"minutes_left": minutesLeft}
	if err := c.post(roomPath(code, room, "/conclude"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestInactivityCheck runs an inactivity scan in a chatroom
func (c *Client) RequestInactivityCheck(code, room string) (*ActionResult, error) {
	var result ActionResult
	if err := c.post(roomPath(code, room, "/inactivity"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AbandonChatroom closes one chatroom's facilitator
func (c *Client) AbandonChatroom(code, room string) error {
	return c.delete(roomPath(code, room, ""))
}

// GetMessages gets the logged messages of a chatroom
func (c *Client) GetMessages(code, room string, limit int) ([]domain.MessageRecord, error) {
	var result struct {
		Messages []domain.MessageRecord `json:"messages"`
	}
	if err := c.get(fmt.Sprintf("%s?limit=%d", roomPath(code, room, "/messages"), limit), &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

func roomPath(code, room, suffix string) string {
	return fmt.Sprintf("/api/lobbies/%s/chatrooms/%s%s", url.PathEscape(code), url.PathEscape(room), suffix)
}

// ============ HTTP Helpers ============

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, result)
}

func (c *Client) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP DELETE failed: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, nil)
}

func decode(resp *http.Response, result interface{}) error {
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
