// MCP transport for the order engine using the official MCP Go SDK.
// Exposes conversation and order operations as MCP tools.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"order-engine/internal/model"
)

// HandleInteractionInput is the input schema for the handle_interaction tool.
type HandleInteractionInput struct {
	Tenant       string       `json:"tenant" jsonschema:"tenant identifier"`
	Conversation string       `json:"conversation" jsonschema:"conversation identifier"`
	Event        EventRequest `json:"event" jsonschema:"the inbound chat event"`
}

// ConversationInput is the input schema for the get_conversation tool.
type ConversationInput struct {
	Tenant       string `json:"tenant" jsonschema:"tenant identifier"`
	Conversation string `json:"conversation" jsonschema:"conversation identifier"`
}

// OrderInput is the input schema for get_order and reconcile_order.
type OrderInput struct {
	Tenant string `json:"tenant" jsonschema:"tenant identifier"`
	ID     string `json:"id" jsonschema:"order id or local order number"`
}

// NewMCPServer creates an MCP server with the engine's tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "order-engine",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Conversational order engine. Feed chat events to handle_interaction " +
				"and inspect the resulting conversations and orders.",
		},
	)

	// Out is any: results carry decimals that marshal as strings, so the
	// tools return JSON text instead of an inferred output schema.
	mcp.AddTool[HandleInteractionInput, any](server, &mcp.Tool{
		Name:        "handle_interaction",
		Description: "Classify a chat event and advance the conversation. Returns the outbound directive.",
	}, h.mcpHandleInteraction)

	mcp.AddTool[ConversationInput, any](server, &mcp.Tool{
		Name:        "get_conversation",
		Description: "Get the current stage and cart of a conversation.",
	}, h.mcpGetConversation)

	mcp.AddTool[OrderInput, any](server, &mcp.Tool{
		Name:        "get_order",
		Description: "Get a persisted order by id or local number.",
	}, h.mcpGetOrder)

	mcp.AddTool[OrderInput, any](server, &mcp.Tool{
		Name:        "reconcile_order",
		Description: "Compare an order with its remote copy and record any discrepancies.",
	}, h.mcpReconcileOrder)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpHandleInteraction(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input HandleInteractionInput,
) (*mcp.CallToolResult, any, error) {
	if input.Tenant == "" || input.Conversation == "" {
		return nil, nil, errors.New("tenant and conversation are required")
	}
	out, err := h.engine.Handle(ctx, input.Tenant, input.Conversation, input.Event.event())
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return jsonResult(out)
}

func (h *Handler) mcpGetConversation(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ConversationInput,
) (*mcp.CallToolResult, any, error) {
	view, cart, ok := h.engine.State(input.Tenant, input.Conversation)
	if !ok {
		return nil, nil, h.mcpError(model.NewNotFoundError("conversation"))
	}
	return jsonResult(ConversationResponse{
		TenantID:       input.Tenant,
		ConversationID: input.Conversation,
		State:          view,
		Cart:           cart,
	})
}

func (h *Handler) mcpGetOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OrderInput,
) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return nil, nil, errors.New("id is required")
	}
	ord, err := h.orders.Get(ctx, input.Tenant, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return jsonResult(ord)
}

func (h *Handler) mcpReconcileOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input OrderInput,
) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return nil, nil, errors.New("id is required")
	}
	res, err := h.reconciler.Reconcile(ctx, input.Tenant, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return jsonResult(newReconcileResponse(res))
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

// mcpError converts engine errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	if apiErr != nil {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return errors.New("internal error")
}
