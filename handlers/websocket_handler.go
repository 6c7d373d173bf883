package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/services"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Табло и экраны судей открываются с любых хостов площадки
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub          *brackets.Hub
	registration services.RegistrationService
	logger       *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, registration services.RegistrationService, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, registration: registration, logger: logger}
}

// ServeWs подписывает клиента на события турнира: /ws/tournaments/{tournamentID}
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if _, err := h.registration.GetTournament(r.Context(), tournamentID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	room := brackets.RoomForTournament(tournamentID)
	client := brackets.NewClient(h.hub, conn, room)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.InfoContext(r.Context(), "websocket client connected", slog.String("room", room))
}
