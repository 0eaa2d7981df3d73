// convoclient is a CLI tool for driving order engine conversations.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	convoclient tap -tenant T -conv C -id BUTTON_ID
//	convoclient say -tenant T -conv C -text "message"
//	convoclient state -tenant T -conv C
//	convoclient order -tenant T -id ORDER_ID
//	convoclient reconcile -tenant T -id ORDER_ID
//	convoclient seal -secret VALUE
//
// Examples:
//
//	convoclient tap -tenant acme -conv wa-1 -id menu
//	convoclient tap -tenant acme -conv wa-1 -id cat_c1
//	convoclient say -tenant acme -conv wa-1 -text "12 Main St"
//	ID=$(convoclient tap -tenant acme -conv wa-1 -id confirm_order -q)
//	convoclient reconcile -tenant acme -id $ID
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

	"order-engine/internal/cache"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	engineURL string
	quiet     bool
	noColor   bool
	verbose   bool
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
	case "tap":
		runEvent("tap", args)
	case "say":
		runEvent("say", args)
	case "state":
		runState(args)
	case "order":
		runOrder(args)
	case "reconcile":
		runReconcile(args)
	case "seal":
		runSeal(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `convoclient - order engine conversation tool

Usage:
  convoclient <command> [options]

Commands:
  tap        Send a button or list selection
  say        Send free text
  state      Show a conversation's stage and cart
  order      Show a persisted order
  reconcile  Compare an order with the remote API
  seal       Seal a tenant secret with SECRET_BOX_KEY

Examples:
  convoclient tap -tenant acme -conv wa-1 -id menu
  convoclient say -tenant acme -conv wa-1 -text "12 Main St"
  convoclient state -tenant acme -conv wa-1
  convoclient reconcile -tenant acme -id "$ID"

Run 'convoclient <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags every network command accepts.
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&engineURL, "engine", "http://localhost:8080", "Order engine base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the key result")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

func parse(fs *flag.FlagSet, args []string, required ...*string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	for _, r := range required {
		if *r == "" {
			fs.Usage()
			os.Exit(1)
		}
	}
}

// =============================================================================
// EVENT COMMANDS
// =============================================================================

func runEvent(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	commonFlags(fs)
	var tenant, conv, value, senderName, senderPhone string
	fs.StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	fs.StringVar(&conv, "conv", "", "Conversation ID (required)")
	if name == "tap" {
		fs.StringVar(&value, "id", "", "Button or list element ID (required)")
	} else {
		fs.StringVar(&value, "text", "", "Message text (required)")
	}
	fs.StringVar(&senderName, "name", "", "Customer name")
	fs.StringVar(&senderPhone, "phone", "", "Customer phone")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: convoclient %s -tenant T -conv C [options]\n\nOptions:\n", name)
		fs.PrintDefaults()
	}
	parse(fs, args, &tenant, &conv, &value)

	event := map[string]any{"kind": "button", "id": value}
	if name == "say" {
		event = map[string]any{"kind": "text", "text": value}
	}
	if senderName != "" || senderPhone != "" {
		event["sender"] = map[string]string{"name": senderName, "phone": senderPhone}
	}

	resp, err := doRequest("POST", conversationPath(tenant, conv)+"/events", event)
	if err != nil {
		fatal("Event failed: %v", err)
	}

	directive, _ := resp["directive"].(map[string]any)
	kind, _ := directive["kind"].(string)
	if quiet {
		// Scripts capture the order id after confirm_order.
		if id, _ := resp["order_id"].(string); id != "" {
			fmt.Println(id)
		} else {
			fmt.Println(kind)
		}
		return
	}

	if diag, _ := resp["diagnostic"].(string); diag != "" {
		printWarning("%s", diag)
	} else {
		printSuccess("Event handled")
	}
	fmt.Printf("  Stage: %s%v%s\n", colorCyan, resp["stage"], colorReset)
	fmt.Printf("  Directive: %s%s%s\n", colorBold, kind, colorReset)
	printDirective(directive)
}

// =============================================================================
// STATE COMMAND
// =============================================================================

func runState(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	commonFlags(fs)
	var tenant, conv string
	fs.StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	fs.StringVar(&conv, "conv", "", "Conversation ID (required)")
	parse(fs, args, &tenant, &conv)

	resp, err := doRequest("GET", conversationPath(tenant, conv), nil)
	if err != nil {
		fatal("Failed to get conversation: %v", err)
	}

	state, _ := resp["state"].(map[string]any)
	if quiet {
		fmt.Println(state["stage"])
		return
	}
	printSuccess("Conversation retrieved")
	fmt.Printf("  Stage: %s%v%s\n", colorCyan, state["stage"], colorReset)
	if cart, ok := resp["cart"].(map[string]any); ok {
		printItems(cart["items"])
	}
}

// =============================================================================
// ORDER COMMANDS
// =============================================================================

func runOrder(args []string) {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	commonFlags(fs)
	var tenant, id string
	fs.StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	fs.StringVar(&id, "id", "", "Order ID or local number (required)")
	parse(fs, args, &tenant, &id)

	resp, err := doRequest("GET", orderPath(tenant, id), nil)
	if err != nil {
		fatal("Failed to get order: %v", err)
	}
	if quiet {
		fmt.Println(resp["status"])
		return
	}
	printOrder(resp)
}

func runReconcile(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	commonFlags(fs)
	var tenant, id string
	fs.StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	fs.StringVar(&id, "id", "", "Order ID or local number (required)")
	parse(fs, args, &tenant, &id)

	resp, err := doRequest("POST", orderPath(tenant, id)+"/reconcile", nil)
	if err != nil {
		fatal("Reconcile failed: %v", err)
	}

	linesMatch, _ := resp["lines_match"].(bool)
	totalsMatch, _ := resp["totals_match"].(bool)
	if quiet {
		fmt.Println(linesMatch && totalsMatch)
		return
	}
	if ord, ok := resp["order"].(map[string]any); ok {
		printOrder(ord)
	}
	fmt.Printf("  Remote status: %v\n", resp["remote_status"])
	if linesMatch {
		printSuccess("Lines match")
	} else {
		printWarning("Lines differ: %v", resp["line_diff"])
	}
	if totalsMatch {
		printSuccess("Totals match")
	} else {
		printWarning("Totals differ, remote reports %v", resp["reported_total"])
	}
}

// =============================================================================
// SEAL COMMAND
// =============================================================================

func runSeal(args []string) {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	var secret, key string
	fs.StringVar(&secret, "secret", "", "Plaintext tenant API secret (required)")
	fs.StringVar(&key, "key", os.Getenv("SECRET_BOX_KEY"), "Hex-encoded 32-byte key (default $SECRET_BOX_KEY)")
	parse(fs, args, &secret, &key)

	src, err := cache.NewSealedSource(key)
	if err != nil {
		fatal("Invalid key: %v", err)
	}
	sealed, err := src.Seal(secret)
	if err != nil {
		fatal("Seal failed: %v", err)
	}
	fmt.Println(sealed)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func conversationPath(tenant, conv string) string {
	return "/v1/tenants/" + url.PathEscape(tenant) + "/conversations/" + url.PathEscape(conv)
}

func orderPath(tenant, id string) string {
	return "/v1/tenants/" + url.PathEscape(tenant) + "/orders/" + url.PathEscape(id)
}

func doRequest(method, path string, body any) (map[string]any, error) {
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

	req, err := http.NewRequest(method, engineURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if verbose {
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

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		var e struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error.Code != "" {
			return nil, fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
		}
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

func printDirective(d map[string]any) {
	for _, key := range []string{"categories", "products"} {
		printNamed(key, d[key])
	}
	if p, ok := d["product"].(map[string]any); ok {
		fmt.Printf("  Product: %s%v%s\n", colorBold, p["name"], colorReset)
		printNamed("presentations", p["presentations"])
		printNamed("sizes", p["sizes"])
		printNamed("add_ons", p["add_ons"])
		printNamed("modifier_groups", p["modifier_groups"])
	}
	if cart, ok := d["cart"].(map[string]any); ok {
		printItems(cart["items"])
	}
	for _, key := range []string{"subtotal", "total", "payment_method", "promo_code", "order_number", "order_status", "message"} {
		if v, ok := d[key]; ok && v != "" {
			fmt.Printf("  %s: %s%v%s\n", key, colorGreen, v, colorReset)
		}
	}
}

func printNamed(label string, v any) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return
	}
	fmt.Printf("  %s%s:%s\n", colorYellow, label, colorReset)
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m["id"]; ok {
			fmt.Printf("    - %v %s%v%s\n", m["name"], colorGray, id, colorReset)
		} else {
			fmt.Printf("    - %v\n", m["name"])
		}
	}
}

func printItems(v any) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		fmt.Printf("  %sCart is empty%s\n", colorGray, colorReset)
		return
	}
	fmt.Printf("  %sCart:%s\n", colorYellow, colorReset)
	for i, el := range items {
		if m, ok := el.(map[string]any); ok {
			fmt.Printf("    %d. %v x%v  %v\n", i+1, m["product_name"], m["quantity"], m["line_total"])
		}
	}
}

func printOrder(o map[string]any) {
	printSuccess("Order %v", o["number"])
	fmt.Printf("  Status: %s%v%s\n", colorCyan, o["status"], colorReset)
	if reason, _ := o["status_reason"].(string); reason != "" {
		fmt.Printf("  Reason: %s\n", reason)
	}
	if remote, _ := o["remote_number"].(string); remote != "" {
		fmt.Printf("  Remote number: %s\n", remote)
	}
	if totals, ok := o["totals"].(map[string]any); ok {
		fmt.Printf("  Total: %s%v%s\n", colorGreen, totals["total"], colorReset)
	}
}

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
	fmt.Println(strings.TrimRight(pretty.String(), "\n"))
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
