/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which upgrades the HTTP connection, registers the
client with the hub and runs the client's pumps for the lifetime of the connection.
*/
package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The optional sid query parameter asks to resume a previous connection id.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := logx.AnonymizeIP(limiter.ClientIP(r))

		select {
		case <-deps.Hub.Done():
			logx.Warn("WebSocket connection rejected: hub stopped.", "remote_ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrServiceUnavailable))
			return
		default:
		}

		requestedID := strings.TrimSpace(r.URL.Query().Get("sid"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket", "remote_ip", ip)
			return
		}

		client := chat.NewClient(deps.Hub, conn, requestedID)

		if err := deps.Hub.Register(r.Context(), client); err != nil {
			logx.Warn("WebSocket client registration failed.", "remote_ip", ip, "error", err.Error())
			if closeErr := closeWithReason(conn, websocket.CloseTryAgainLater, "server shutting down"); closeErr != nil {
				logx.Logger().Debug().Err(closeErr).Str("remote_ip", ip).Msg("Error closing unregistered connection")
			}
			return
		}

		logx.Info("WebSocket connection established and client registered",
			"connection_id", client.ID(),
			"remote_ip", ip,
			"resumed", requestedID != "" && requestedID == client.ID(),
		)

		go client.WritePump()

		client.ReadPump()
	}
}

// closeWithReason sends a close frame with code and text, then closes conn.
func closeWithReason(conn *websocket.Conn, code int, text string) error {
	writeErr := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	return errors.Join(writeErr, conn.Close())
}
