package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasmedia/adboard-backend/api/controllers"
	"github.com/atlasmedia/adboard-backend/api/middleware"
	"github.com/atlasmedia/adboard-backend/internal/clients"
	"github.com/atlasmedia/adboard-backend/internal/dashboard"
	"github.com/atlasmedia/adboard-backend/pkg/config"
	"github.com/atlasmedia/adboard-backend/pkg/logger"
	pkgredis "github.com/atlasmedia/adboard-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *pkgredis.Client,
	registry *prometheus.Registry,
	clientService clients.Service,
	dashboardService *dashboard.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	readiness := map[string]controllers.Pinger{"database": dbP}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	var idemStore pkgredis.IdempotencyStore
	if redisClient != nil {
		idemStore = redisClient
	}
	idem := middleware.Idempotency(idemStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", controllers.ClientsList(clientService, logg))
			r.With(idem).Post("/", controllers.ClientsCreate(clientService, logg))

			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/dashboard", controllers.Dashboard(dashboardService, logg))
				r.Get("/campaigns", controllers.Campaigns(dashboardService, logg))
				r.Get("/analytics", controllers.Analytics(dashboardService, logg))
				r.Get("/historical", controllers.Historical(dashboardService, logg))

				r.Route("/connections/{platform}", func(r chi.Router) {
					r.With(idem).Put("/", controllers.ConnectionsSave(clientService, logg))
					r.Post("/test", controllers.ConnectionsTest(clientService, logg))
				})
			})
		})

		r.Get("/overview", controllers.Overview(dashboardService, logg))
	})

	return r
}
