// Package negotiation parses the request headers that point-of-sale clients
// send with every call and enforces the minimum supported client version.
//
// REST middleware reads the POS-Client header. MCP tools carry the same
// fields in their request metadata and call CheckVersion directly.
package negotiation

// ClientInfo identifies the calling register or storefront build.
type ClientInfo struct {
	Name    string
	Version string
}

// contextKey is the type for context values to avoid collisions
type contextKey string

// ClientContextKey is the context key for storing ClientInfo
const ClientContextKey contextKey = "pos.client"

// ClientHeaderInvalid is the error code when POS-Client cannot be parsed
const ClientHeaderInvalid = "client_header_invalid"

// ClientVersionUnsupported is the error code when the client is older than the minimum
const ClientVersionUnsupported = "client_version_unsupported"
