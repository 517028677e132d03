// GET  /api/v1/health                    # Состояние хранилищ
// GET  /api/v1/{collection}              # История записей (snapshots|versions)
// GET  /api/v1/{collection}/latest       # Последняя запись документа
// GET  /api/v1/{collection}/{id}         # Метаданные записи
// GET  /api/v1/{collection}/{id}/content # Содержимое записи
// GET  /metrics                          # Prometheus

package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	healthAPI "archivist/internal/app/server/api/http/health"
	"archivist/internal/app/server/api/http/middleware"
	"archivist/internal/app/server/api/http/middleware/logger"
	recordAPI "archivist/internal/app/server/api/http/record"
)

type Handlers struct {
	Health *healthAPI.Handler
	Record *recordAPI.Handler
}

// New создает *chi.Mux со всеми операциями API и /metrics из gatherer.
func New(history recordAPI.History, gatherer prometheus.Gatherer, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(chimw.Recoverer)

	API := humachi.New(mux, huma.DefaultConfig("Archivist API", "1.0.0"))

	h := handlers(history, log)
	h.Health.SetupRoutes(API)
	h.Record.SetupRoutes(API)

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func handlers(history recordAPI.History, log *slog.Logger) *Handlers {
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := healthAPI.NewHandler(map[string]healthAPI.Counter{
		recordAPI.CollectionSnapshots: history.Snapshots(),
		recordAPI.CollectionVersions:  history.Versions(),
	}, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	recordHandler := recordAPI.NewHandler(history, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Record: recordHandler,
	}
}
