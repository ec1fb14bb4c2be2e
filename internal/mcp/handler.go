package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool names
const (
	ToolListLobbies            = "list_lobbies"
	ToolGetLobby               = "get_lobby"
	ToolCloseLobby             = "close_lobby"
	ToolFacilitatorStatus      = "facilitator_status"
	ToolRetryFacilitator       = "retry_facilitator"
	ToolRequestConclusion      = "request_conclusion"
	ToolRequestInactivityCheck = "request_inactivity_check"
	ToolAbandonChatroom        = "abandon_chatroom"
	ToolGetMessages            = "get_messages"
	ToolListLobbyRecords       = "list_lobby_records"
)

// Handler handles MCP tool calls using the HTTP client
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// HandleToolCall handles a tool call and returns the result
func (h *Handler) HandleToolCall(name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case ToolListLobbies:
		return h.handleListLobbies(args)
	case ToolGetLobby:
		return h.handleGetLobby(args)
	case ToolCloseLobby:
		return h.handleCloseLobby(args)
	case ToolListLobbyRecords:
		return h.handleListLobbyRecords(args)
	case ToolFacilitatorStatus:
		return h.handleFacilitatorStatus(args)
	case ToolRetryFacilitator:
		return h.handleRetryFacilitator(args)
	case ToolRequestConclusion:
		return h.handleRequestConclusion(args)
	case ToolRequestInactivityCheck:
		return h.handleRequestInactivityCheck(args)
	case ToolAbandonChatroom:
		return h.handleAbandonChatroom(args)
	case ToolGetMessages:
		return h.handleGetMessages(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// ============ Lobby Handlers ============

func (h *Handler) handleListLobbies(args map[string]interface{}) (interface{}, error) {
	lobbies, err := h.client.ListLobbies()
	if err != nil {
		return nil, err
	}

	// chatrooms whose facilitator never came up
	stuck := []string{}
	for _, l := range lobbies {
		for room := range l.Chatrooms {
			report, err := h.client.FacilitatorStatus(l.Code, room)
			if err == nil && report.Stuck {
				stuck = append(stuck, l.Code+"/"+room)
			}
		}
	}

	return map[string]interface{}{
		"lobbies":         lobbies,
		"count":           len(lobbies),
		"stuck_chatrooms": stuck,
	}, nil
}

func (h *Handler) handleGetLobby(args map[string]interface{}) (interface{}, error) {
	code, err := requireStringArg(args, "lobby")
	if err != nil {
		return nil, err
	}
	return h.client.GetLobby(code)
}

func (h *Handler) handleCloseLobby(args map[string]interface{}) (interface{}, error) {
	code, err := requireStringArg(args, "lobby")
	if err != nil {
		return nil, err
	}
	if err := h.client.CloseLobby(code); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Lobby %s closed", code),
	}, nil
}

func (h *Handler) handleListLobbyRecords(args map[string]interface{}) (interface{}, error) {
	records, err := h.client.ListLobbyRecords()
	if err != nil {
		return nil, err
	}
	limit := getIntArg(args, "limit", 20)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return map[string]interface{}{"lobbies": records}, nil
}

// ============ Chatroom Handlers ============

func (h *Handler) handleFacilitatorStatus(args map[string]interface{}) (interface{}, error) {
	code, room, err := roomArgs(args)
	if err != nil {
		return nil, err
	}
	return h.client.FacilitatorStatus(code, room)
}

func (h *Handler) handleRetryFacilitator(args map[string]interface{}) (interface{}, error) {
	code, room, err := roomArgs(args)
	if err != nil {
		return nil, err
	}
	return h.client.RetryFacilitator(code, room)
}

func (h *Handler) handleRequestConclusion(args map[string]interface{}) (interface{}, error) {
	code, room, err := roomArgs(args)
	if err != nil {
		return nil, err
	}
	return h.client.RequestConclusion(code, room, getIntArg(args, "minutes_left", 1))
}

func (h *Handler) handleRequestInactivityCheck(args map[string]interface{}) (interface{}, error) {
	code, room, err := roomArgs(args)
	if err != nil {
		return nil, err
	}
	return h.client.RequestInactivityCheck(code, room)
}

func (h *Handler) handleAbandonChatroom(args map[string]interface{}) (interface{}, error) {
	code, room, err := roomArgs(args)
	if err != nil {
		return nil, err
	}
	if err := h.client.AbandonChatroom(code, room); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Facilitator of %s closed", room),
	}, nil
}

func (h *Handler) handleGetMessages(args map[string]interface{}) (interface{}, error) {
	code, room, err := roomArgs(args)
	if err != nil {
		return nil, err
	}
	messages, err := h.client.GetMessages(code, room, getIntArg(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"messages": messages}, nil
}

// ============ Helpers ============

func roomArgs(args map[string]interface{}) (string, string, error) {
	code, err := requireStringArg(args, "lobby")
	if err != nil {
		return "", "", err
	}
	room, err := requireStringArg(args, "chatroom")
	if err != nil {
		return "", "", err
	}
	return code, room, nil
}

func requireStringArg(args map[string]interface{}, key string) (string, error) {
	v := strings.TrimSpace(getStringArg(args, key, ""))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func getStringArg(args map[string]interface{}, key, defaultValue string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

func getIntArg(args map[string]interface{}, key string, defaultValue int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return defaultValue
}

// FormatToolResult renders a tool result as JSON text
func FormatToolResult(result interface{}) string {
	if result == nil {
		return ""
	}
	if jsonBytes, err := json.Marshal(result); err == nil {
		return string(jsonBytes)
	}
	return fmt.Sprintf("%v", result)
}
