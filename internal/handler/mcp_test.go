package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"square-pos/internal/adapter"
	"square-pos/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// text returns the first text content block.
func (r callToolResult) text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// testMeta returns request metadata carrying the test access token.
func testMeta() map[string]any {
	return map[string]any{
		"access-token": testToken,
		"pos-client":   map[string]any{"name": "register", "version": "1.4.0"},
	}
}

// callTool invokes an MCP tool and returns its decoded result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]any) callToolResult {
	t.Helper()

	rawArgs, _ := json.Marshal(args)
	callReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: rawArgs},
	}

	body, _ := json.Marshal(callReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httpReq)

	// MCP returns 200 OK even for tool errors, error is in the result
	if w.Code != http.StatusOK {
		t.Fatalf("%s: status = %d\nBody: %s", name, w.Code, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Fatalf("%s: unexpected JSON-RPC error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

// addItemViaMCP creates a cart holding two lattes and returns its id.
func addItemViaMCP(t *testing.T, mux *http.ServeMux, sessionID string) string {
	t.Helper()
	result := callTool(t, mux, sessionID, "add_item", map[string]any{
		"meta": testMeta(),
		"item": map[string]any{
			"id": "latte", "name": "Latte", "price": 450, "quantity": 2, "variation_id": "VAR-LATTE",
		},
	})
	if result.IsError {
		t.Fatalf("add_item failed: %s", result.text())
	}
	var view CartView
	if err := json.Unmarshal([]byte(result.text()), &view); err != nil {
		t.Fatalf("Failed to parse cart from result: %v", err)
	}
	return view.ID
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(&adapter.Mock{})
	if server := h.NewMCPServer(); server == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test-client", "version": "1.0.0"},
			"capabilities":    map[string]any{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	listReq := jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"}
	body, _ := json.Marshal(listReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httpReq)

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	var toolsResult struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expected := map[string]bool{
		"get_cart":            false,
		"add_item":            false,
		"list_order_options":  false,
		"set_order_selection": false,
		"preview_order":       false,
		"submit_order":        false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expected[tool.Name]; ok {
			expected[tool.Name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPAddItemAndGetCart(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)
	cartID := addItemViaMCP(t, mux, sessionID)

	result := callTool(t, mux, sessionID, "get_cart", map[string]any{
		"meta":    testMeta(),
		"cart_id": cartID,
	})
	if result.IsError {
		t.Fatalf("get_cart failed: %s", result.text())
	}

	var view CartView
	if err := json.Unmarshal([]byte(result.text()), &view); err != nil {
		t.Fatalf("Failed to parse cart: %v", err)
	}
	if view.ID != cartID || len(view.Items) != 1 || view.Summary.Total != 900 {
		t.Errorf("cart = %+v", view)
	}
}

func TestMCPGetCartNotFound(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "get_cart", map[string]any{
		"meta":    testMeta(),
		"cart_id": "nonexistent",
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(result.text(), "NOT_FOUND") {
		t.Errorf("error text = %q, want NOT_FOUND", result.text())
	}
}

func TestMCPSetOrderSelection(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)
	cartID := addItemViaMCP(t, mux, sessionID)

	result := callTool(t, mux, sessionID, "set_order_selection", map[string]any{
		"meta":         testMeta(),
		"cart_id":      cartID,
		"discount_uid": "disc-summer",
	})
	if result.IsError {
		t.Fatalf("set_order_selection failed: %s", result.text())
	}
	var view CartView
	json.Unmarshal([]byte(result.text()), &view)
	if view.Selection.Discount == nil || view.Summary.Subtotal != 810 {
		t.Errorf("selection = %+v, summary = %+v", view.Selection, view.Summary)
	}

	result = callTool(t, mux, sessionID, "set_order_selection", map[string]any{
		"meta":    testMeta(),
		"cart_id": cartID,
		"tax_uid": "unknown",
	})
	if !result.IsError || !strings.Contains(result.text(), "VALIDATION_ERROR") {
		t.Errorf("unknown uid result = %+v", result)
	}
}

func TestMCPListOrderOptions(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "list_order_options", map[string]any{"meta": testMeta()})
	var opts model.OrderOptions
	if err := json.Unmarshal([]byte(result.text()), &opts); err != nil {
		t.Fatalf("Failed to parse options: %v", err)
	}
	if len(opts.Discounts) != 1 || len(opts.Taxes) != 1 {
		t.Errorf("options = %+v", opts)
	}
}

func TestMCPPreviewOrder(t *testing.T) {
	mock := &adapter.Mock{
		CalculateOrderFunc: func(ctx context.Context, token string, items []model.CartItem, sel model.Selection) (*model.OrderPreview, error) {
			if token != testToken {
				return nil, model.NewUnauthorizedError("bad token")
			}
			return &model.OrderPreview{Currency: "USD", Total: 900}, nil
		},
	}
	_, mux := testHandler(mock)
	sessionID := initMCPSession(t, mux)
	cartID := addItemViaMCP(t, mux, sessionID)

	result := callTool(t, mux, sessionID, "preview_order", map[string]any{
		"meta":    testMeta(),
		"cart_id": cartID,
	})
	if result.IsError {
		t.Fatalf("preview_order failed: %s", result.text())
	}
	var view PreviewView
	json.Unmarshal([]byte(result.text()), &view)
	if view.Status != "success" || view.Order == nil || view.Order.Total != 900 {
		t.Errorf("preview = %+v", view)
	}
}

func TestMCPSubmitOrder(t *testing.T) {
	var gotKey string
	mock := &adapter.Mock{
		CreateOrderFunc: func(ctx context.Context, token string, items []model.CartItem, sel model.Selection, key string) (*model.OrderPreview, error) {
			gotKey = key
			return &model.OrderPreview{OrderID: "ORDER-9", Total: 900}, nil
		},
	}
	_, mux := testHandler(mock)
	sessionID := initMCPSession(t, mux)
	cartID := addItemViaMCP(t, mux, sessionID)

	meta := testMeta()
	meta["idempotency-key"] = "mcp-key-1"
	result := callTool(t, mux, sessionID, "submit_order", map[string]any{
		"meta":    meta,
		"cart_id": cartID,
	})
	if result.IsError {
		t.Fatalf("submit_order failed: %s", result.text())
	}

	var view SubmitView
	json.Unmarshal([]byte(result.text()), &view)
	if gotKey != "mcp-key-1" || view.IdempotencyKey != "mcp-key-1" {
		t.Errorf("key sent = %q, returned = %q", gotKey, view.IdempotencyKey)
	}
	if view.Order == nil || view.Order.OrderID != "ORDER-9" {
		t.Errorf("order = %+v", view.Order)
	}
}

func TestMCPClientVersionGate(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		wantCode string
	}{
		{"outdated", "1.0.0", "client_version_unsupported"},
		{"malformed", "latest", "client_header_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := testHandler(&adapter.Mock{})
			sessionID := initMCPSession(t, mux)

			result := callTool(t, mux, sessionID, "list_order_options", map[string]any{
				"meta": map[string]any{"pos-client": map[string]any{"version": tt.version}},
			})
			if !result.IsError || !strings.Contains(result.text(), tt.wantCode) {
				t.Errorf("result = %+v, want error %s", result, tt.wantCode)
			}
		})
	}
}

func TestMCPMissingRequiredField(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	args, _ := json.Marshal(map[string]any{"cart_id": "123"})
	callReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: "get_cart", Arguments: args},
	}

	body, _ := json.Marshal(callReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httpReq)

	// Should still return 200, with error in the result
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	for line := range strings.SplitSeq(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]any{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}
	return w.Header().Get("Mcp-Session-Id")
}
