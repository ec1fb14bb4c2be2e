package mcp

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// LobbyInput selects a lobby
type LobbyInput struct {
	Lobby string `json:"lobby" jsonschema:"the lobby code"`
}

// ChatroomInput selects a chatroom of a lobby
type ChatroomInput struct {
	Lobby    string `json:"lobby" jsonschema:"the lobby code"`
	Chatroom string `json:"chatroom" jsonschema:"the chatroom code"`
}

// ConclusionInput asks a chatroom to wrap up
type ConclusionInput struct {
	Lobby       string `json:"lobby" jsonschema:"the lobby code"`
	Chatroom    string `json:"chatroom" jsonschema:"the chatroom code"`
	MinutesLeft int    `json:"minutes_left,omitempty" jsonschema:"minutes announced to the students (default 1)"`
}

// MessagesInput reads a chatroom log
type MessagesInput struct {
	Lobby    string `json:"lobby" jsonschema:"the lobby code"`
	Chatroom string `json:"chatroom" jsonschema:"the chatroom code"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of messages to return (default 20)"`
}

// ListInput limits a listing
type ListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of entries to return (default 20)"`
}

// NewServer creates an MCP server exposing the operator tools
func NewServer(h *Handler, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{
		Name:    "facilitator-tools",
		Version: version,
	}, nil)

	addTool[struct{}](server, h, ToolListLobbies,
		"List open lobbies with their members, chatrooms and remaining session time. Also flags chatrooms whose facilitator never came up.")
	addTool[LobbyInput](server, h, ToolGetLobby,
		"Get one lobby: host, members, chat settings, chatroom assignment and countdown.")
	addTool[LobbyInput](server, h, ToolCloseLobby,
		"Close a lobby. Stops the countdown and every facilitator and tells all connected students.")
	addTool[ListInput](server, h, ToolListLobbyRecords,
		"List persisted lobby records, newest first, including closed lobbies.")
	addTool[ChatroomInput](server, h, ToolFacilitatorStatus,
		"Get the facilitator state of a chatroom: lifecycle state, init attempts, last error, pending intervention and participation.")
	addTool[ChatroomInput](server, h, ToolRetryFacilitator,
		"Retry initialization of a stuck facilitator. On success the opening question is posted to the chatroom.")
	addTool[ConclusionInput](server, h, ToolRequestConclusion,
		"Ask a chatroom to wrap up now. Has no effect if the chatroom was already told to conclude.")
	addTool[ChatroomInput](server, h, ToolRequestInactivityCheck,
		"Run an inactivity check in a chatroom now and post a nudge if students have gone quiet.")
	addTool[ChatroomInput](server, h, ToolAbandonChatroom,
		"Close the facilitator of one chatroom without affecting the others.")
	addTool[MessagesInput](server, h, ToolGetMessages,
		"Get recent logged messages of a chatroom, oldest first.")

	return server
}

func addTool[In any](server *sdk.Server, h *Handler, name, description string) {
	sdk.AddTool(server, &sdk.Tool{Name: name, Description: description},
		func(ctx context.Context, req *sdk.CallToolRequest, in In) (*sdk.CallToolResult, any, error) {
			args, err := toArgs(in)
			if err != nil {
				return errorResult(err), nil, nil
			}
			result, err := h.HandleToolCall(name, args)
			if err != nil {
				return errorResult(err), nil, nil
			}
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: FormatToolResult(result)}},
			}, nil, nil
		})
}

func toArgs(in any) (map[string]interface{}, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	args := map[string]interface{}{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func errorResult(err error) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
	}
}
