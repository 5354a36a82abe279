package caregivers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"baby-care-log/internal/domain/children"
	"baby-care-log/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, childrenSvc *children.Service) {
	r.Route("/children/{childID}/grants", func(gr chi.Router) {
		gr.Post("/", inviteHandler(svc, childrenSvc))
		gr.Get("/", listByChildHandler(svc, childrenSvc))
	})

	r.Get("/me/grants", listMyGrantsHandler(svc))

	r.Route("/grants/{grantID}", func(gr chi.Router) {
		gr.Post("/accept", acceptHandler(svc))
		gr.Post("/revoke", revokeHandler(svc))
	})
}

// inviteRequest es el cuerpo para invitar a un cuidador.
type inviteRequest struct {
	GranteeUserID string   `json:"grantee_user_id"`
	Scopes        []string `json:"scopes"` // child:read, events:read, events:log, events:manage
}

// grantResponse representa un grant de cuidador devuelto por la API.
type grantResponse struct {
	ID            string     `json:"id"`
	ChildID       string     `json:"child_id"`
	OwnerUserID   string     `json:"owner_user_id"`
	GranteeUserID string     `json:"grantee_user_id"`
	Scopes        []Scope    `json:"scopes"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

// inviteHandler godoc
// @Summary Invitar cuidador
// @Description Crea (o actualiza) la invitación de un cuidador para un child. Solo el dueño puede invitar. Scopes vacíos usan el default `child:read` + `events:read`. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags grants
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param childID path string true "ID del child"
// @Param payload body inviteRequest true "Cuidador y scopes"
// @Success 201 {object} grantResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /children/{childID}/grants [post]
func inviteHandler(svc *Service, childrenSvc *children.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		childID := chi.URLParam(r, "childID")
		c, err := childrenSvc.GetByID(r.Context(), childID)
		if err != nil {
			writeError(w, http.StatusNotFound, "child not found")
			return
		}
		if c.OwnerUserID != claims.UserID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		var req inviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		scopes := make([]Scope, 0, len(req.Scopes))
		for _, s := range req.Scopes {
			scopes = append(scopes, Scope(s))
		}

		g, err := svc.Invite(r.Context(), InviteInput{
			ChildID:       childID,
			OwnerUserID:   claims.UserID,
			GranteeUserID: req.GranteeUserID,
			Scopes:        scopes,
		})
		if err != nil {
			writeGrantError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toGrantResponse(g))
	}
}

// listByChildHandler godoc
// @Summary Listar grants de un child
// @Description Lista los grants (vigentes y revocados) de un child. Solo el dueño.
// @Tags grants
// @Produce json
// @Param childID path string true "ID del child"
// @Success 200 {array} grantResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /children/{childID}/grants [get]
func listByChildHandler(svc *Service, childrenSvc *children.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		childID := chi.URLParam(r, "childID")
		c, err := childrenSvc.GetByID(r.Context(), childID)
		if err != nil {
			writeError(w, http.StatusNotFound, "child not found")
			return
		}
		if c.OwnerUserID != claims.UserID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		items, err := svc.ListByChild(r.Context(), childID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// listMyGrantsHandler godoc
// @Summary Listar mis grants
// @Description Lista los grants donde el usuario autenticado es el cuidador invitado.
// @Tags grants
// @Produce json
// @Success 200 {array} grantResponse
// @Failure 401 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /me/grants [get]
func listMyGrantsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		items, err := svc.ListByGrantee(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// acceptHandler godoc
// @Summary Aceptar invitación
// @Description El cuidador invitado acepta el grant (status=active). Idempotente sobre un grant ya activo.
// @Tags grants
// @Produce json
// @Param grantID path string true "ID del grant"
// @Success 200 {object} grantResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /grants/{grantID}/accept [post]
func acceptHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		g, err := svc.Accept(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toGrantResponse(g))
	}
}

// revokeHandler godoc
// @Summary Revocar grant
// @Description El dueño revoca el grant (status=revoked). Idempotente sobre un grant ya revocado.
// @Tags grants
// @Produce json
// @Param grantID path string true "ID del grant"
// @Success 200 {object} grantResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /grants/{grantID}/revoke [post]
func revokeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		g, err := svc.Revoke(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toGrantResponse(g))
	}
}

func writeGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "grant not found")
	case errors.Is(err, ErrBadState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:            g.ID,
		ChildID:       g.ChildID,
		OwnerUserID:   g.OwnerUserID,
		GranteeUserID: g.GranteeUserID,
		Scopes:        g.Scopes,
		Status:        g.Status,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
		RevokedAt:     g.RevokedAt,
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
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
