// posctl is a CLI tool for exercising the POS pricing service by hand.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	posctl create [-server URL]
//	posctl add -cart ID -item ID -variation ID -price CENTS [-qty N] [-name NAME]
//	posctl select -cart ID [-discount UID] [-tax UID]
//	posctl options
//	posctl preview -cart ID
//	posctl get -cart ID
//	posctl submit -cart ID [-key KEY]
//
// Examples:
//
//	CART=$(posctl create -q)
//	posctl add -cart $CART -item latte -variation VAR123 -price 450 -qty 2
//	posctl select -cart $CART -discount $(posctl options -q | head -1)
//	posctl preview -cart $CART
//	posctl submit -cart $CART
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"

	"square-pos/internal/model"
)

const clientName = "posctl"

// clientVersion is sent in the POS-Client header.
var clientVersion = "1.0.0"

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL   string
	accessToken string
	quiet       bool
	noColor     bool
	verbose     bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		runCreate(args)
	case "add":
		runAdd(args)
	case "select":
		runSelect(args)
	case "options":
		runOptions(args)
	case "preview":
		runPreview(args)
	case "get":
		runGet(args)
	case "submit":
		runSubmit(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `posctl - POS pricing service test tool

Usage:
  posctl <command> [options]

Commands:
  create    Create an empty cart
  add       Add an item to a cart
  select    Choose the order-level discount and tax
  options   List order-level discounts and taxes
  preview   Price the cart with Square
  get       Show cart contents and local totals
  submit    Create the order in Square

Examples:
  # Create a cart and capture its ID
  CART=$(posctl create -q)

  # Add two lattes
  posctl add -cart "$CART" -item latte -variation VAR123 -price 450 -qty 2

  # Apply an order-level discount, then price and submit
  posctl select -cart "$CART" -discount <uid>
  posctl preview -cart "$CART"
  posctl submit -cart "$CART"

The access token defaults to $SQUARE_ACCESS_TOKEN.
Run 'posctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command accepts.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("POS_SERVER", "http://localhost:8080"), "POS service base URL")
	fs.StringVar(&accessToken, "token", os.Getenv("SQUARE_ACCESS_TOKEN"), "Square access token")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: posctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cartPath(id string, parts ...string) string {
	return "/carts/" + url.PathEscape(id) + strings.Join(parts, "")
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCreate(args []string) {
	fs := newFlagSet("create", "create [options]")
	parseFlags(fs, args)

	resp, err := doRequest("POST", "/carts", nil, nil)
	if err != nil {
		fatal("Failed to create cart: %v", err)
	}

	cartID, _ := resp["id"].(string)
	if quiet {
		fmt.Println(cartID)
		return
	}
	printSuccess("Cart created")
	fmt.Printf("  ID: %s%s%s\n", colorCyan, cartID, colorReset)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -cart ID -item ID -price CENTS [options]")
	var cartID, itemID, variationID, name string
	var price int64
	var qty int
	fs.StringVar(&cartID, "cart", "", "Cart ID (required)")
	fs.StringVar(&itemID, "item", "", "Item ID (required)")
	fs.StringVar(&variationID, "variation", "", "Square catalog variation ID")
	fs.StringVar(&name, "name", "", "Display name (defaults to the item ID)")
	fs.Int64Var(&price, "price", 0, "Unit price in cents")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	parseFlags(fs, args)

	if cartID == "" || itemID == "" {
		fs.Usage()
		os.Exit(1)
	}
	if name == "" {
		name = itemID
	}

	body := map[string]any{
		"id":           itemID,
		"name":         name,
		"price":        price,
		"quantity":     qty,
		"variation_id": variationID,
	}
	resp, err := doRequest("POST", cartPath(cartID, "/items"), body, nil)
	if err != nil {
		fatal("Failed to add item: %v", err)
	}
	printSuccess("Item added")
	printSummary(resp)
}

func runSelect(args []string) {
	fs := newFlagSet("select", "select -cart ID [-discount UID] [-tax UID]")
	var cartID, discountUID, taxUID string
	var clearDiscount, clearTax bool
	fs.StringVar(&cartID, "cart", "", "Cart ID (required)")
	fs.StringVar(&discountUID, "discount", "", "Order-level discount uid")
	fs.StringVar(&taxUID, "tax", "", "Order-level tax uid")
	fs.BoolVar(&clearDiscount, "clear-discount", false, "Clear the order-level discount")
	fs.BoolVar(&clearTax, "clear-tax", false, "Clear the order-level tax")
	parseFlags(fs, args)

	if cartID == "" {
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]any{}
	switch {
	case clearDiscount:
		body["discount_uid"] = ""
	case discountUID != "":
		body["discount_uid"] = discountUID
	}
	switch {
	case clearTax:
		body["tax_uid"] = ""
	case taxUID != "":
		body["tax_uid"] = taxUID
	}

	resp, err := doRequest("PUT", cartPath(cartID, "/selection"), body, nil)
	if err != nil {
		fatal("Failed to update selection: %v", err)
	}
	printSuccess("Selection updated")
	printSummary(resp)
}

func runOptions(args []string) {
	fs := newFlagSet("options", "options [options]")
	parseFlags(fs, args)

	resp, err := doRequest("GET", "/order-options", nil, nil)
	if err != nil {
		fatal("Failed to list options: %v", err)
	}

	for _, kind := range []string{"discounts", "taxes"} {
		opts, _ := resp[kind].([]any)
		if !quiet {
			fmt.Printf("  %s%s:%s\n", colorYellow, kind, colorReset)
		}
		for _, opt := range opts {
			m, ok := opt.(map[string]any)
			if !ok {
				continue
			}
			if quiet {
				fmt.Println(m["uid"])
				continue
			}
			fmt.Printf("    - %s%s%s: %s (%s%%)\n", colorCyan, m["uid"], colorReset, m["name"], m["percentage"])
		}
	}
}

func runGet(args []string) {
	fs := newFlagSet("get", "get -cart ID [options]")
	var cartID string
	fs.StringVar(&cartID, "cart", "", "Cart ID (required)")
	parseFlags(fs, args)

	if cartID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("GET", cartPath(cartID), nil, nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}
	printSuccess("Cart retrieved")
	printSummary(resp)
}

// =============================================================================
// PRICING AND ORDER COMMANDS
// =============================================================================

func runPreview(args []string) {
	fs := newFlagSet("preview", "preview -cart ID [options]")
	var cartID string
	fs.StringVar(&cartID, "cart", "", "Cart ID (required)")
	parseFlags(fs, args)

	if cartID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", cartPath(cartID, "/preview"), nil, nil)
	if err != nil {
		fatal("Failed to preview order: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}
	switch status {
	case "success":
		printSuccess("Preview calculated")
		if order, ok := resp["order"].(map[string]any); ok {
			printOrderTotals(order)
		}
	case "failure":
		errBody, _ := resp["error"].(map[string]any)
		printError("Preview failed: %v", errBody["message"])
	default:
		printWarning("Status: %s", status)
	}
}

func runSubmit(args []string) {
	fs := newFlagSet("submit", "submit -cart ID [-key KEY]")
	var cartID, key string
	fs.StringVar(&cartID, "cart", "", "Cart ID (required)")
	fs.StringVar(&key, "key", "", "Idempotency key; reuse it to retry safely (generated if empty)")
	parseFlags(fs, args)

	if cartID == "" {
		fs.Usage()
		os.Exit(1)
	}
	if key == "" {
		key = uuid.NewString()
	}

	headerValue, err := httpsfv.Marshal(httpsfv.NewItem(key))
	if err != nil {
		fatal("Invalid idempotency key: %v", err)
	}
	headers := map[string]string{"Idempotency-Key": headerValue}

	resp, err := doRequest("POST", cartPath(cartID, "/orders"), nil, headers)
	if err != nil {
		printInfo("Retry with -key %s", key)
		fatal("Failed to submit order: %v", err)
	}

	order, _ := resp["order"].(map[string]any)
	orderID, _ := order["order_id"].(string)
	if quiet {
		fmt.Println(orderID)
		return
	}
	printSuccess("Order created")
	fmt.Printf("  Order ID: %s%s%s\n", colorGreen, orderID, colorReset)
	printOrderTotals(order)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// posClientHeader renders the POS-Client structured field dictionary.
func posClientHeader() string {
	dict := httpsfv.NewDictionary()
	dict.Add("name", httpsfv.NewItem(clientName))
	dict.Add("version", httpsfv.NewItem(clientVersion))
	value, err := httpsfv.Marshal(dict)
	if err != nil {
		return ""
	}
	return value
}

func doRequest(method, path string, body any, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v := posClientHeader(); v != "" {
		req.Header.Set("POS-Client", v)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

// printSummary shows the local totals of a cart view.
func printSummary(cart map[string]any) {
	if quiet {
		return
	}
	summary, ok := cart["summary"].(map[string]any)
	if !ok {
		return
	}
	fmt.Printf("  Subtotal: %s\n", formatCents(summary["subtotal"]))
	fmt.Printf("  Discount: %s\n", formatCents(summary["discount_amount"]))
	fmt.Printf("  Tax:      %s\n", formatCents(summary["tax_amount"]))
	fmt.Printf("  Total:    %s%s%s\n", colorGreen, formatCents(summary["total"]), colorReset)
}

func printOrderTotals(order map[string]any) {
	fmt.Printf("  Discounts: %s\n", formatCents(order["discount_total"]))
	fmt.Printf("  Tax:       %s\n", formatCents(order["tax_total"]))
	fmt.Printf("  Total:     %s%s%s\n", colorGreen, formatCents(order["total"]), colorReset)
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func formatCents(v any) string {
	if f, ok := v.(float64); ok {
		return model.FormatMoney(int64(f))
	}
	return fmt.Sprintf("%v", v)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
