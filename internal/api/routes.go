// Package api provides HTTP handlers for the Sidewalk Timeline tile server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/geo"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/internal/metrics"
	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/internal/service"
)

// HeaderDataUnavailable marks responses served as empty placeholders
// because the requested year has no data.
const HeaderDataUnavailable = "X-Data-Unavailable"

// RouterConfig contains router configuration.
type RouterConfig struct {
	Service     *service.TimelineService
	CORSOrigins []string
	JobManager  *JobManager
	Title       string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "application/geo+json"))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", HeaderDataUnavailable},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	svc := cfg.Service
	r.Route("/api", func(r chi.Router) {
		r.Get("/info", infoHandler(svc, cfg.Title))
		r.Get("/years", yearsHandler(svc))

		r.Route("/tiles", func(r chi.Router) {
			r.Get("/", tilesHandler(svc))
			r.Get("/{id}", tileHandler(svc))
			r.Get("/{id}/imagery/{file}", tileImageryHandler(svc))
			r.Get("/{id}/network/{file}", tileNetworkHandler(svc))
		})

		r.Route("/selection", func(r chi.Router) {
			r.Post("/validate", validateHandler(svc))
			r.Get("/expand", expandHandler(svc))
			r.Post("/state", stateHandler(svc))
			r.Get("/bounds", boundsHandler(svc))
			r.Get("/network/{file}", selectionNetworkHandler(svc))
			r.Get("/imagery/{file}", selectionImageryHandler(svc))
			r.Get("/overlay/{file}", overlayHandler(svc))
			r.Get("/stats", statsHandler(svc))
		})

		r.Route("/prefetch/jobs", func(r chi.Router) {
			r.Get("/", prefetchListHandler(cfg.JobManager))
			r.Post("/", prefetchSubmitHandler(svc, cfg.JobManager))
			r.Get("/{job_id}", prefetchStatusHandler(cfg.JobManager))
			r.Delete("/{job_id}", prefetchCancelHandler(cfg.JobManager))
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses. Selection rejections
// carry the validator message so the client can show it.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case isRejection(err):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrUnknownTile), errors.Is(err, tiles.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrUnknownYear), errors.Is(err, service.ErrBadFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// client gone or timed out; the shared work still fills the cache
		zap.L().Debug("request abandoned", zap.Error(err))
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		zap.L().Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func isRejection(err error) bool {
	return errors.Is(err, grid.ErrTileCount) ||
		errors.Is(err, grid.ErrUnparseable) ||
		errors.Is(err, grid.ErrNotRectangle) ||
		errors.Is(err, grid.ErrMissingTile)
}

// tileList parses a comma separated ?tiles= value.
func tileList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func layerList(r *http.Request) []network.Type {
	raw := r.URL.Query().Get("layers")
	if raw == "" {
		return nil
	}
	return network.ParseTypes(tileList(raw))
}

// yearFile splits a "{year}.{ext}" path segment.
func yearFile(segment string, exts ...string) (year int, ext string, ok bool) {
	name, ext, found := strings.Cut(segment, ".")
	if !found {
		return 0, "", false
	}
	year, err := strconv.Atoi(name)
	if err != nil {
		return 0, "", false
	}
	for _, e := range exts {
		if e == ext {
			return year, ext, true
		}
	}
	return 0, "", false
}

func infoHandler(svc *service.TimelineService, title string) http.HandlerFunc {
	if title == "" {
		title = "Sidewalk Timeline"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"title":     title,
			"tiles":     len(svc.Tiles()),
			"years":     svc.Years(),
			"max_tiles": grid.MaxSelection,
			"cache":     svc.CacheStats(),
		})
	}
}

func yearsHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"years": svc.Years()})
	}
}

// tileSummary is the catalog view of one tile.
type tileSummary struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Bounds   geo.Bounds     `json:"bounds"`
	Position *grid.Position `json:"position,omitempty"`
	Years    []int          `json:"years"`
}

func tilesHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := svc.Tiles()
		out := make([]tileSummary, 0, len(all))
		for _, t := range all {
			years := make([]int, 0, len(t.Availability))
			for _, y := range svc.Years() {
				if t.HasYear(y) {
					years = append(years, y)
				}
			}
			out = append(out, tileSummary{ID: t.ID, Name: t.Name, Bounds: t.Bounds, Position: t.Position, Years: years})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tiles": out})
	}
}

func tileHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.Tile(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func tileImageryHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, _, ok := yearFile(chi.URLParam(r, "file"), "png", "jpg", "jpeg", "webp")
		if !ok {
			http.Error(w, "expected {year}.{png|jpg|webp}", http.StatusBadRequest)
			return
		}
		path, err := svc.TileImageryPath(chi.URLParam(r, "id"), year)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeFile(w, r, path)
	}
}

func writeGeoJSON(w http.ResponseWriter, data []byte, available bool) {
	w.Header().Set("Content-Type", "application/geo+json")
	if !available {
		w.Header().Set(HeaderDataUnavailable, "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeImage(w http.ResponseWriter, data []byte, format string, available bool) {
	w.Header().Set("Content-Type", "image/"+format)
	if available {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	} else {
		w.Header().Set(HeaderDataUnavailable, "true")
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func tileNetworkHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, _, ok := yearFile(chi.URLParam(r, "file"), "geojson")
		if !ok {
			http.Error(w, "expected {year}.geojson", http.StatusBadRequest)
			return
		}
		fc, available, err := svc.TileNetwork(r.Context(), chi.URLParam(r, "id"), year, layerList(r))
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := json.Marshal(fc)
		if err != nil {
			writeError(w, err)
			return
		}
		writeGeoJSON(w, data, available)
	}
}

type tilesRequest struct {
	Tiles []string `json:"tiles"`
}

func validateHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tilesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		layout, err := svc.Validate(req.Tiles)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":  true,
			"tiles":  req.Tiles,
			"layout": layout,
		})
	}
}

func expandHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end := r.URL.Query().Get("start"), r.URL.Query().Get("end")
		if start == "" || end == "" {
			http.Error(w, "missing required query params: start, end", http.StatusBadRequest)
			return
		}
		ids, err := svc.Expand(start, end)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tiles": ids})
	}
}

func boundsHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := tileList(r.URL.Query().Get("tiles"))
		if len(ids) == 0 {
			http.Error(w, "missing required query param: tiles", http.StatusBadRequest)
			return
		}
		b, err := svc.CombinedBounds(ids)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"bounds": b,
			"center": []float64{b.Center().Lat(), b.Center().Lon()},
		})
	}
}

func selectionNetworkHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, _, ok := yearFile(chi.URLParam(r, "file"), "geojson")
		if !ok {
			http.Error(w, "expected {year}.geojson", http.StatusBadRequest)
			return
		}
		data, available, err := svc.SelectionNetworkJSON(r.Context(), tileList(r.URL.Query().Get("tiles")), year, layerList(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeGeoJSON(w, data, available)
	}
}

func selectionImageryHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, format, ok := yearFile(chi.URLParam(r, "file"), "png", "webp")
		if !ok {
			http.Error(w, "expected {year}.{png|webp}", http.StatusBadRequest)
			return
		}
		data, available, err := svc.StitchedImagery(r.Context(), tileList(r.URL.Query().Get("tiles")), year, format)
		if err != nil {
			writeError(w, err)
			return
		}
		writeImage(w, data, format, available)
	}
}

func overlayHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, _, ok := yearFile(chi.URLParam(r, "file"), "png")
		if !ok {
			http.Error(w, "expected {year}.png", http.StatusBadRequest)
			return
		}
		opts := service.OverlayOptions{Layers: layerList(r)}
		if v := r.URL.Query().Get("opacity"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || !(f >= 0 && f <= 1) {
				http.Error(w, "opacity must be between 0 and 1", http.StatusBadRequest)
				return
			}
			opts.NetworkOpacity = &f
		}
		data, available, err := svc.Overlay(r.Context(), tileList(r.URL.Query().Get("tiles")), year, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeImage(w, data, "png", available)
	}
}

func statsHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.StatisticsJSON(r.Context(), tileList(r.URL.Query().Get("tiles")))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}
