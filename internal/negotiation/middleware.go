package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Middleware creates HTTP middleware that enforces the minimum client version.
// Parses the POS-Client header and stores ClientInfo in the request context.
//
// Requests without the header pass through untouched, so operators can call
// the API with curl. A header that is present must parse and meet minimum.
func Middleware(minimum string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(ClientHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			client, err := ParseClientHeader(header)
			if err != nil {
				logger.Warn("invalid POS-Client header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeNegotiationError(w, http.StatusBadRequest, ClientHeaderInvalid,
					"Invalid POS-Client header: "+err.Error())
				return
			}

			if err := CheckVersion(client.Version, minimum); err != nil {
				var verErr *VersionError
				if errors.As(err, &verErr) && verErr.Code == ClientVersionUnsupported {
					logger.Info("rejecting outdated client",
						slog.String("client", client.Name),
						slog.String("version", client.Version))
					writeNegotiationError(w, http.StatusUpgradeRequired, verErr.Code, verErr.Message)
					return
				}
				writeNegotiationError(w, http.StatusBadRequest, ClientHeaderInvalid, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ClientContextKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isExemptPath returns true for paths that skip the version gate.
// Health checks are infrastructure; MCP clients gate inside each tool call.
func isExemptPath(path string) bool {
	switch path {
	case "/health", "/healthz", "/mcp":
		return true
	default:
		return false
	}
}

// writeNegotiationError writes the standard error envelope.
func writeNegotiationError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}

// GetClientInfo retrieves the parsed client identity from request context.
// The second result is false when the request carried no POS-Client header.
func GetClientInfo(ctx context.Context) (ClientInfo, bool) {
	c, ok := ctx.Value(ClientContextKey).(ClientInfo)
	return c, ok
}
