package children

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"baby-care-log/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/children", func(cr chi.Router) {
		cr.Post("/", createChildHandler(svc))
		cr.Get("/", listChildrenHandler(svc))
		cr.Get("/{childID}", getChildHandler(svc))
	})
}

// createChildRequest es el cuerpo para registrar un child.
type createChildRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD, opcional
	Sex       string `json:"sex"`        // male, female, unknown
	Notes     string `json:"notes"`
}

// childResponse representa un child devuelto por la API.
type childResponse struct {
	ID          string     `json:"id"`
	OwnerUserID string     `json:"owner_user_id"`
	Name        string     `json:"name"`
	BirthDate   *string    `json:"birth_date,omitempty"`
	Sex         Sex        `json:"sex"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// createChildHandler godoc
// @Summary Registrar child
// @Description Registra un child a nombre del usuario autenticado. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags children
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body createChildRequest true "Datos del child; birth_date en formato YYYY-MM-DD"
// @Success 201 {object} childResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /children [post]
func createChildHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req createChildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		var birth *time.Time
		if strings.TrimSpace(req.BirthDate) != "" {
			t, err := time.Parse("2006-01-02", strings.TrimSpace(req.BirthDate))
			if err != nil {
				writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
				return
			}
			birth = &t
		}

		c, err := svc.Create(r.Context(), claims.UserID, CreateInput{
			Name:      req.Name,
			BirthDate: birth,
			Sex:       req.Sex,
			Notes:     req.Notes,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toChildResponse(c))
	}
}

// listChildrenHandler godoc
// @Summary Listar children propios
// @Description Lista los children cuyo dueño es el usuario autenticado.
// @Tags children
// @Produce json
// @Success 200 {array} childResponse
// @Failure 401 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /children [get]
func listChildrenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		items, err := svc.ListByOwner(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := make([]childResponse, 0, len(items))
		for _, c := range items {
			out = append(out, toChildResponse(c))
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// getChildHandler godoc
// @Summary Obtener child
// @Description Devuelve un child. Accesible para el dueño; un usuario sin acceso recibe 404.
// @Tags children
// @Produce json
// @Param childID path string true "ID del child"
// @Success 200 {object} childResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /children/{childID} [get]
func getChildHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		c, err := svc.GetByID(r.Context(), chi.URLParam(r, "childID"))
		if err != nil || c.OwnerUserID != claims.UserID {
			// El acceso de cuidadores pasa por las rutas de eventos; aquí un
			// no-dueño recibe 404 para no filtrar existencia.
			writeError(w, http.StatusNotFound, "child not found")
			return
		}

		writeJSON(w, http.StatusOK, toChildResponse(c))
	}
}

func toChildResponse(c Child) childResponse {
	var birth *string
	if c.BirthDate != nil {
		v := c.BirthDate.Format("2006-01-02")
		birth = &v
	}
	return childResponse{
		ID:          c.ID,
		OwnerUserID: c.OwnerUserID,
		Name:        c.Name,
		BirthDate:   birth,
		Sex:         c.Sex,
		Notes:       c.Notes,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
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
