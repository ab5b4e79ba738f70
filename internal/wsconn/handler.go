package wsconn

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// ServeFunc handles one accepted connection. The connection is closed when
// it returns.
type ServeFunc func(ctx context.Context, conn *Conn)

// Handler upgrades HTTP requests to websocket transports.
type Handler struct {
	log      *slog.Logger
	serve    ServeFunc
	settings settings
}

// NewHandler returns an http.Handler that runs serve for every accepted
// connection.
func NewHandler(log *slog.Logger, serve ServeFunc, opts ...Option) *Handler {
	return &Handler{
		log:      log.With("component", "ws_handler"),
		serve:    serve,
		settings: newSettings(opts),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.settings.originPatterns,
	})
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)

		return
	}

	h.log.Debug("Accepted websocket connection", "remote", r.RemoteAddr)

	transport := accepted(h.log, conn, h.settings)

	defer func() {
		if err := transport.Close(); err != nil {
			h.log.Debug("Close after serve failed", "error", err)
		}
	}()

	h.serve(r.Context(), transport)
}
