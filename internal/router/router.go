package router

import (
	"database/sql"
	"net/http"
	"os"

	mem "baby-care-log/internal/adapters/storage/memory"
	pg "baby-care-log/internal/adapters/storage/postgres"
	"baby-care-log/internal/domain/caregivers"
	"baby-care-log/internal/domain/children"
	"baby-care-log/internal/domain/events"
	"baby-care-log/internal/domain/projection"
	"baby-care-log/internal/middleware"
	"baby-care-log/internal/platform/logger"
	"baby-care-log/internal/ports/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	var (
		childrenRepo   children.Repository
		eventsRepo     events.Repository
		caregiversRepo caregivers.Repository
		projectionRepo projection.Repository
	)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			}
		}
	}

	if db != nil {
		childrenRepo = pg.NewChildrenRepo(db)
		eventsRepo = pg.NewEventsRepo(db)
		caregiversRepo = pg.NewCaregiversRepo(db)
		projectionRepo = pg.NewProjectionRepo(db)
	} else {
		memChildren := mem.NewChildrenRepo()
		childrenRepo = memChildren
		eventsRepo = mem.NewEventsRepo(memChildren)
		caregiversRepo = mem.NewCaregiversRepo()
		projectionRepo = mem.NewProjectionRepo()
	}

	// Services por módulo. El motor de proyección corre post-commit dentro
	// del servicio de eventos.
	childrenSvc := children.NewService(childrenRepo)
	caregiversSvc := caregivers.NewService(caregiversRepo)
	engine := projection.NewEngine(projectionRepo, log)
	eventsSvc := events.NewService(eventsRepo, engine, log)

	// Rutas por módulo
	children.RegisterRoutes(r, childrenSvc)
	caregivers.RegisterRoutes(r, caregiversSvc, childrenSvc)
	events.RegisterRoutes(r, eventsSvc, childrenSvc, caregiversSvc)

	return r
}
