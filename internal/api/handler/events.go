package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/api/middleware"
	"github.com/printpush/printpush/internal/api/models"
	"github.com/printpush/printpush/internal/api/response"
	"github.com/printpush/printpush/internal/notification"
)

// EventHost turns host print events into notifications.
type EventHost interface {
	Handle(he notification.HostEvent) error
	State() notification.PrintState
}

// EventsHandler handles the host event bridge.
type EventsHandler struct {
	host   EventHost
	logger zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(host EventHost, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{host: host, logger: logger}
}

// PostEvent handles POST /v1/events - accept one print event.
// Delivery happens asynchronously; the response only confirms the event was
// understood.
func (h *EventsHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var input models.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Kind == "" {
		response.BadRequest(w, r, "kind is required", []models.FieldError{
			{Field: "kind", Message: "is required", Code: "REQUIRED"},
		})
		return
	}

	err := h.host.Handle(notification.HostEvent{
		Kind:         input.Kind,
		FileName:     input.FileName,
		Progress:     input.Progress,
		TimeLeftSec:  input.TimeLeftSec,
		PrintTimeSec: input.PrintTimeSec,
		Error:        input.Error,
	})
	if err != nil {
		if errors.Is(err, notification.ErrUnknownEvent) {
			response.Error(w, r, models.NewUnknownEvent(middleware.GetRequestID(r.Context()), input.Kind))
			return
		}
		h.logger.Error().Err(err).Str("event", input.Kind).Msg("failed to handle event")
		response.InternalError(w, r, "failed to handle event")
		return
	}

	accepted := models.EventAccepted{Kind: input.Kind}
	if st := h.host.State(); st.ID != "" {
		id := st.ID
		accepted.PrintID = &id
	}
	response.Accepted(w, r, "", accepted)
}
