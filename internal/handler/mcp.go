// MCP transport handler for the POS service using the official MCP Go SDK.
// Exposes cart, selection and order operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"square-pos/internal/cart"
	"square-pos/internal/model"
	"square-pos/internal/negotiation"
	"square-pos/internal/session"
)

// === MCP Meta Types ===
// meta carries what REST callers send as headers:
// - Authorization header → meta["access-token"]
// - POS-Client header → meta["pos-client"]
// - Idempotency-Key header → meta["idempotency-key"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	AccessToken    string          `json:"access-token,omitempty" jsonschema:"Square access token"`
	Client         *ClientMetaInfo `json:"pos-client,omitempty" jsonschema:"calling client identification"`
	IdempotencyKey string          `json:"idempotency-key,omitempty" jsonschema:"key reused when retrying a submission"`
}

// ClientMetaInfo mirrors the POS-Client header fields.
type ClientMetaInfo struct {
	Name    string `json:"name,omitempty" jsonschema:"client name"`
	Version string `json:"version" jsonschema:"client semantic version"`
}

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart tool.
type GetCartInput struct {
	Meta   MCPMeta `json:"meta" jsonschema:"request metadata"`
	CartID string  `json:"cart_id" jsonschema:"cart ID"`
}

// AddItemInput is the input schema for add_item tool.
type AddItemInput struct {
	Meta   MCPMeta        `json:"meta" jsonschema:"request metadata"`
	CartID string         `json:"cart_id,omitempty" jsonschema:"cart ID; a new cart is created when empty"`
	Item   model.CartItem `json:"item" jsonschema:"item to add; an existing id increases its quantity"`
}

// SetOrderSelectionInput is the input schema for set_order_selection tool.
type SetOrderSelectionInput struct {
	Meta        MCPMeta `json:"meta" jsonschema:"request metadata"`
	CartID      string  `json:"cart_id" jsonschema:"cart ID"`
	DiscountUID *string `json:"discount_uid,omitempty" jsonschema:"order discount uid; empty clears, absent leaves unchanged"`
	TaxUID      *string `json:"tax_uid,omitempty" jsonschema:"order tax uid; empty clears, absent leaves unchanged"`
}

// PreviewOrderInput is the input schema for preview_order tool.
type PreviewOrderInput struct {
	Meta   MCPMeta `json:"meta" jsonschema:"request metadata"`
	CartID string  `json:"cart_id" jsonschema:"cart ID"`
}

// SubmitOrderInput is the input schema for submit_order tool.
type SubmitOrderInput struct {
	Meta   MCPMeta `json:"meta" jsonschema:"request metadata"`
	CartID string  `json:"cart_id" jsonschema:"cart ID"`
}

// ListOrderOptionsInput is the input schema for list_order_options tool.
type ListOrderOptionsInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata"`
}

// NewMCPServer creates an MCP server with the POS tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "square-pos",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Point-of-sale cart pricing backed by Square Orders. " +
				"Build a cart with add_item, choose order-level options with set_order_selection, " +
				"check totals with preview_order and place the order with submit_order.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get a cart with its items, order-level selection, local totals and preview state.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add an item to a cart, creating the cart when no cart_id is given.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_order_options",
		Description: "List the order-level discounts and taxes that can be selected.",
	}, h.mcpListOrderOptions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_order_selection",
		Description: "Select or clear the order-level discount and tax by option uid.",
	}, h.mcpSetOrderSelection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_order",
		Description: "Price the cart with Square and wait for the result.",
	}, h.mcpPreviewOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_order",
		Description: "Create the order in Square. Retries must reuse meta.idempotency-key.",
	}, h.mcpSubmitOrder)

	return server
}

// NewMCPHandler returns an http.Handler for the MCP streamable HTTP transport.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, *CartView, error) {
	s, err := h.mcpSession(ctx, &input.Meta, input.CartID)
	if err != nil {
		return nil, nil, err
	}
	view := h.cartView(s)
	return nil, &view, nil
}

func (h *Handler) mcpAddItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, *CartView, error) {
	if err := h.mcpCheckClient(&input.Meta); err != nil {
		return nil, nil, err
	}
	if input.Item.ID == "" {
		return nil, nil, fmt.Errorf("item.id is required")
	}

	var s *session.Session
	if input.CartID == "" {
		s = h.sessions.Create()
		if input.Meta.AccessToken != "" {
			s.SetAccessToken(input.Meta.AccessToken)
		}
	} else {
		var err error
		if s, err = h.mcpSession(ctx, &input.Meta, input.CartID); err != nil {
			return nil, nil, err
		}
	}

	item := input.Item
	if err := s.Update(ctx, func(c *cart.Store) error {
		c.Add(item)
		return nil
	}); err != nil {
		return nil, nil, h.mcpError(err)
	}
	view := h.cartView(s)
	return nil, &view, nil
}

func (h *Handler) mcpListOrderOptions(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListOrderOptionsInput,
) (*mcp.CallToolResult, *model.OrderOptions, error) {
	if err := h.mcpCheckClient(&input.Meta); err != nil {
		return nil, nil, err
	}
	opts := h.orderOptions()
	return nil, &opts, nil
}

func (h *Handler) mcpSetOrderSelection(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetOrderSelectionInput,
) (*mcp.CallToolResult, *CartView, error) {
	s, err := h.mcpSession(ctx, &input.Meta, input.CartID)
	if err != nil {
		return nil, nil, err
	}
	sel := selectionRequest{DiscountUID: input.DiscountUID, TaxUID: input.TaxUID}
	if err := h.applySelection(s, sel); err != nil {
		return nil, nil, h.mcpError(err)
	}
	view := h.cartView(s)
	return nil, &view, nil
}

func (h *Handler) mcpPreviewOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PreviewOrderInput,
) (*mcp.CallToolResult, *PreviewView, error) {
	s, err := h.mcpSession(ctx, &input.Meta, input.CartID)
	if err != nil {
		return nil, nil, err
	}
	view := h.previewView(h.awaitPreview(ctx, s, s.Recalculate()))
	return nil, &view, nil
}

func (h *Handler) mcpSubmitOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SubmitOrderInput,
) (*mcp.CallToolResult, *SubmitView, error) {
	s, err := h.mcpSession(ctx, &input.Meta, input.CartID)
	if err != nil {
		return nil, nil, err
	}

	key := input.Meta.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	order, err := s.Submit(ctx, key)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	h.logger.Info("order submitted", "cart_id", s.ID, "order_id", order.OrderID, "transport", "mcp")
	return nil, &SubmitView{CartID: s.ID, IdempotencyKey: key, Order: order}, nil
}

// mcpSession checks the client version, resolves the cart and applies the
// access token from meta.
func (h *Handler) mcpSession(ctx context.Context, meta *MCPMeta, cartID string) (*session.Session, error) {
	if err := h.mcpCheckClient(meta); err != nil {
		return nil, err
	}
	if cartID == "" {
		return nil, fmt.Errorf("cart_id is required")
	}
	s, err := h.sessions.Get(ctx, cartID)
	if err != nil {
		return nil, h.mcpError(err)
	}
	if meta.AccessToken != "" {
		s.SetAccessToken(meta.AccessToken)
	}
	return s, nil
}

// mcpError converts domain errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// mcpCheckClient applies the minimum client version to meta.pos-client.
// A missing client entry passes, matching the REST middleware.
func (h *Handler) mcpCheckClient(meta *MCPMeta) error {
	if meta == nil || meta.Client == nil {
		return nil
	}
	if err := negotiation.CheckVersion(meta.Client.Version, h.cfg.MinClientVersion); err != nil {
		var verErr *negotiation.VersionError
		if errors.As(err, &verErr) {
			return fmt.Errorf("%s: %s", verErr.Code, verErr.Message)
		}
		return err
	}
	return nil
}
