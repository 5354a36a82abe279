package events

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"baby-care-log/internal/domain/caregivers"
	"baby-care-log/internal/domain/children"
	"baby-care-log/internal/domain/events/document"
	"baby-care-log/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) {
	r.Route("/children/{childID}/events", func(er chi.Router) {
		er.Post("/", createEventHandler(svc, childrenSvc, grantsSvc))
		er.Post("/start", startEventHandler(svc, childrenSvc, grantsSvc))
		er.Get("/open", listOpenEventsHandler(svc, childrenSvc, grantsSvc))
	})

	// Operaciones sobre un evento existente: el child se resuelve desde el
	// evento, no desde la URL.
	r.Route("/events/{eventID}", func(er chi.Router) {
		er.Patch("/", updateEventHandler(svc, childrenSvc, grantsSvc))
		er.Post("/complete", completeEventHandler(svc, childrenSvc, grantsSvc))
		er.Post("/cancel", cancelEventHandler(svc, childrenSvc, grantsSvc))
	})
}

// createEventRequest es el cuerpo para registrar un evento ya terminado.
type createEventRequest struct {
	Type      string            `json:"type" enums:"FORMULA,BREASTFEED,SLEEP,PEE,POO,MEDICATION,GROWTH,MEMO,SYMPTOM"`
	StartTime string            `json:"start_time"` // RFC3339
	EndTime   string            `json:"end_time"`   // RFC3339, opcional
	Value     document.Document `json:"value"`
	Metadata  document.Document `json:"metadata"`
	Source    string            `json:"source"` // opcional
}

type startEventRequest struct {
	Type      string            `json:"type" enums:"FORMULA,BREASTFEED,SLEEP,PEE,POO,MEDICATION"`
	StartTime string            `json:"start_time"` // RFC3339, opcional (default: ahora)
	Value     document.Document `json:"value"`
	Metadata  document.Document `json:"metadata"`
}

type completeEventRequest struct {
	EndTime  string            `json:"end_time"` // RFC3339, opcional (default: ahora)
	Value    document.Document `json:"value"`
	Metadata document.Document `json:"metadata"`
}

type cancelEventRequest struct {
	Reason string `json:"reason"`
}

type updateEventRequest struct {
	Type      string            `json:"type"`
	StartTime string            `json:"start_time"` // RFC3339
	EndTime   string            `json:"end_time"`   // RFC3339
	Value     document.Document `json:"value"`
	Metadata  document.Document `json:"metadata"`
}

// eventResponse representa un evento de cuidado devuelto por la API.
type eventResponse struct {
	Status      string            `json:"status,omitempty"`
	EventID     string            `json:"event_id"`
	ChildID     string            `json:"child_id"`
	Type        EventType         `json:"type"`
	State       State             `json:"state"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	DurationMin int               `json:"duration_min"`
	Value       document.Document `json:"value"`
	Metadata    document.Document `json:"metadata"`
	Source      Source            `json:"source"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
}

// openEventResponse agrega los flags de acción que la UI muestra en la lista
// de "en curso".
type openEventResponse struct {
	eventResponse
	CanComplete bool `json:"can_complete"`
	CanCancel   bool `json:"can_cancel"`
}

// createEventHandler godoc
// @Summary Registrar evento terminado
// @Description Registra un evento de cuidado ya terminado (state=CLOSED). El dueño siempre puede registrar. Un cuidador necesita un grant activo con scope `events:log`. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags events
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param childID path string true "ID del child"
// @Param payload body createEventRequest true "Datos del evento; start_time y end_time en RFC3339"
// @Success 201 {object} eventResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /children/{childID}/events [post]
func createEventHandler(svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, childrenSvc, grantsSvc, chi.URLParam(r, "childID"), caregivers.ScopeEventsLog)
		if !ok {
			return
		}

		var req createEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		t, ok := ParseEventType(req.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, "type is invalid")
			return
		}

		start, err := parseRFC3339(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_time must be RFC3339")
			return
		}

		var end *time.Time
		if strings.TrimSpace(req.EndTime) != "" {
			v, err := parseRFC3339(req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "end_time must be RFC3339")
				return
			}
			end = &v
		}

		e, err := svc.CreateClosed(r.Context(), actor.actor, CreateInput{
			ChildID:   actor.childID,
			Type:      t,
			StartTime: start,
			EndTime:   end,
			Value:     req.Value,
			Metadata:  req.Metadata,
			Source:    Source(strings.TrimSpace(req.Source)),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEventResponse("CREATED", e))
	}
}

// startEventHandler godoc
// @Summary Iniciar evento en curso
// @Description Abre un evento en curso (state=OPEN) para tipos que soportan start/complete. Si ya hay uno abierto del mismo tipo devuelve 409 con `existing_event_id`. El dueño siempre puede iniciar; un cuidador necesita scope `events:log`.
// @Tags events
// @Accept json
// @Produce json
// @Param childID path string true "ID del child"
// @Param payload body startEventRequest true "Tipo y hora de inicio (RFC3339, opcional)"
// @Success 201 {object} eventResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "incluye existing_event_id cuando aplica"
// @Router /children/{childID}/events/start [post]
func startEventHandler(svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, childrenSvc, grantsSvc, chi.URLParam(r, "childID"), caregivers.ScopeEventsLog)
		if !ok {
			return
		}

		var req startEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		t, ok := ParseEventType(req.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, "type is invalid")
			return
		}

		start := time.Now().UTC()
		if strings.TrimSpace(req.StartTime) != "" {
			v, err := parseRFC3339(req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "start_time must be RFC3339")
				return
			}
			start = v
		}

		e, err := svc.Start(r.Context(), actor.actor, StartInput{
			ChildID:   actor.childID,
			Type:      t,
			StartTime: start,
			Value:     req.Value,
			Metadata:  req.Metadata,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEventResponse("STARTED", e))
	}
}

// listOpenEventsHandler godoc
// @Summary Listar eventos en curso
// @Description Lista los eventos OPEN del child, más recientes primero. El dueño siempre puede verlos; un cuidador necesita scope `events:read`. Permite filtrar por tipo.
// @Tags events
// @Produce json
// @Param childID path string true "ID del child"
// @Param type query string false "Filtrar por tipo de evento (ej: SLEEP)"
// @Success 200 {array} openEventResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /children/{childID}/events/open [get]
func listOpenEventsHandler(svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := resolveActor(w, r, childrenSvc, grantsSvc, chi.URLParam(r, "childID"), caregivers.ScopeEventsRead)
		if !ok {
			return
		}

		var typeFilter EventType
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			t, ok := ParseEventType(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "type is invalid")
				return
			}
			typeFilter = t
		}

		items, err := svc.ListOpen(r.Context(), actor.childID, typeFilter)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]openEventResponse, 0, len(items))
		for _, e := range items {
			out = append(out, openEventResponse{
				eventResponse: toEventResponse("", e),
				CanComplete:   true,
				CanCancel:     true,
			})
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// completeEventHandler godoc
// @Summary Completar evento en curso
// @Description Cierra un evento OPEN (state=CLOSED). end_time omitido resuelve a la hora actual. El dueño siempre puede completar; un cuidador necesita scope `events:manage`.
// @Tags events
// @Accept json
// @Produce json
// @Param eventID path string true "ID del evento"
// @Param payload body completeEventRequest true "Hora de fin (RFC3339, opcional) y patches de value/metadata"
// @Success 200 {object} eventResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /events/{eventID}/complete [post]
func completeEventHandler(svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, eventID, ok := resolveEventActor(w, r, svc, childrenSvc, grantsSvc, caregivers.ScopeEventsManage)
		if !ok {
			return
		}

		var req completeEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		var end *time.Time
		if strings.TrimSpace(req.EndTime) != "" {
			v, err := parseRFC3339(req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "end_time must be RFC3339")
				return
			}
			end = &v
		}

		e, err := svc.Complete(r.Context(), actor, eventID, CompleteInput{
			EndTime:       end,
			ValuePatch:    req.Value,
			MetadataPatch: req.Metadata,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEventResponse("COMPLETED", e))
	}
}

// cancelEventHandler godoc
// @Summary Cancelar evento en curso
// @Description Descarta un evento OPEN (state=CANCELED). Los cancelados no alimentan las tablas de resumen. El dueño siempre puede cancelar; un cuidador necesita scope `events:manage`.
// @Tags events
// @Accept json
// @Produce json
// @Param eventID path string true "ID del evento"
// @Param payload body cancelEventRequest false "Motivo opcional"
// @Success 200 {object} eventResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /events/{eventID}/cancel [post]
func cancelEventHandler(svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, eventID, ok := resolveEventActor(w, r, svc, childrenSvc, grantsSvc, caregivers.ScopeEventsManage)
		if !ok {
			return
		}

		var req cancelEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		e, err := svc.Cancel(r.Context(), actor, eventID, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEventResponse("CANCELED", e))
	}
}

// updateEventHandler godoc
// @Summary Editar evento cerrado
// @Description Edita un evento CLOSED. Un OPEN se completa o cancela primero (409); un CANCELED es inmutable (409). El dueño siempre puede editar; un cuidador necesita scope `events:manage`.
// @Tags events
// @Accept json
// @Produce json
// @Param eventID path string true "ID del evento"
// @Param payload body updateEventRequest true "Campos a modificar; los omitidos se conservan"
// @Success 200 {object} eventResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /events/{eventID} [patch]
func updateEventHandler(svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, eventID, ok := resolveEventActor(w, r, svc, childrenSvc, grantsSvc, caregivers.ScopeEventsManage)
		if !ok {
			return
		}

		var req updateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		in := UpdateInput{
			ValuePatch:    req.Value,
			MetadataPatch: req.Metadata,
		}

		if strings.TrimSpace(req.Type) != "" {
			t, ok := ParseEventType(req.Type)
			if !ok {
				writeError(w, http.StatusBadRequest, "type is invalid")
				return
			}
			in.Type = &t
		}
		if strings.TrimSpace(req.StartTime) != "" {
			v, err := parseRFC3339(req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "start_time must be RFC3339")
				return
			}
			in.StartTime = &v
		}
		if strings.TrimSpace(req.EndTime) != "" {
			v, err := parseRFC3339(req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "end_time must be RFC3339")
				return
			}
			in.EndTime = &v
		}

		e, err := svc.Update(r.Context(), actor, eventID, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEventResponse("UPDATED", e))
	}
}

// resolvedActor acarrea el child verificado junto con el actor; evita volver a
// consultar el owner en el handler.
type resolvedActor struct {
	actor   Actor
	childID string
}

// resolveActor valida sesión y permisos sobre un child:
// - Owner: siempre permitido.
// - Cuidador: requiere grant activo con el scope pedido.
// El ScopeID de auditoría es siempre el dueño del child.
func resolveActor(w http.ResponseWriter, r *http.Request, childrenSvc *children.Service, grantsSvc *caregivers.Service, childID string, scope caregivers.Scope) (resolvedActor, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return resolvedActor{}, false
	}

	c, err := childrenSvc.GetByID(r.Context(), childID)
	if err != nil {
		writeError(w, http.StatusNotFound, "child not found")
		return resolvedActor{}, false
	}

	if c.OwnerUserID != claims.UserID {
		g, err := grantsSvc.GetActiveGrant(r.Context(), childID, claims.UserID)
		if err != nil || !caregivers.HasScope(g, scope) {
			writeError(w, http.StatusForbidden, "forbidden")
			return resolvedActor{}, false
		}
	}

	return resolvedActor{
		actor: Actor{
			UserID:  claims.UserID,
			ScopeID: c.OwnerUserID,
		},
		childID: c.ID,
	}, true
}

// resolveEventActor resuelve el child desde el evento y valida permisos.
// Un usuario sin acceso al child recibe 404, no 403, para no filtrar que el
// evento existe.
func resolveEventActor(w http.ResponseWriter, r *http.Request, svc *Service, childrenSvc *children.Service, grantsSvc *caregivers.Service, scope caregivers.Scope) (Actor, string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return Actor{}, "", false
	}

	eventID := chi.URLParam(r, "eventID")
	e, err := svc.GetByID(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusNotFound, "event not found")
		return Actor{}, "", false
	}

	c, err := childrenSvc.GetByID(r.Context(), e.ChildID)
	if err != nil {
		writeError(w, http.StatusNotFound, "event not found")
		return Actor{}, "", false
	}

	if c.OwnerUserID != claims.UserID {
		g, err := grantsSvc.GetActiveGrant(r.Context(), c.ID, claims.UserID)
		if err != nil || !caregivers.HasScope(g, scope) {
			writeError(w, http.StatusNotFound, "event not found")
			return Actor{}, "", false
		}
	}

	return Actor{UserID: claims.UserID, ScopeID: c.OwnerUserID}, e.ID, true
}

func parseRFC3339(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}

func toEventResponse(status string, e Event) eventResponse {
	return eventResponse{
		Status:      status,
		EventID:     e.ID,
		ChildID:     e.ChildID,
		Type:        e.Type,
		State:       e.State,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		DurationMin: e.DurationMinutes(),
		Value:       e.Value,
		Metadata:    e.Metadata,
		Source:      e.Source,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
	}
}

// errorResponse es el cuerpo uniforme de error de la API.
type errorResponse struct {
	Detail          string `json:"detail"`
	ExistingEventID string `json:"existing_event_id,omitempty"`
}

// writeServiceError mapea errores del servicio a status HTTP. Un Conflict que
// trae el id del evento abierto lo expone para que el cliente ofrezca
// "completar el anterior".
func writeServiceError(w http.ResponseWriter, err error) {
	if conflict, ok := AsConflict(err); ok {
		writeJSON(w, http.StatusConflict, errorResponse{
			Detail:          conflict.Reason,
			ExistingEventID: conflict.ExistingEventID,
		})
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para mantener cada dominio autocontenido.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
