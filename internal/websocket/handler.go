package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request and streams messages published for contractID
// until the client disconnects. Authorization is the caller's job.
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, contractID int64, snapshot []byte, originPatterns []string) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		hub.logger.Warn("websocket accept failed", "contract_id", contractID, "error", err)
		return
	}
	defer conn.CloseNow()

	hub.logger.Debug("websocket connected", "contract_id", contractID)
	NewClient(hub, conn, contractID).Run(r.Context(), snapshot)
	conn.Close(ws.StatusNormalClosure, "")
}
