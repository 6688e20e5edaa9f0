// Package cartapi serves carts over HTTP. Each route maps onto a cart
// operation; denied triggers are not errors and return the unchanged cart.
package cartapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/statecart/statecart/cart"
	"github.com/statecart/statecart/logger"
	"github.com/statecart/statecart/statemachine"
	"github.com/statecart/statecart/statemachine/visualizer"
	"github.com/statecart/statecart/statestore"
)

var errRateLimited = errors.New("rate limit exceeded")

// Options configures the handler.
type Options struct {
	// RateLimit is the sustained number of trigger requests per second across
	// all carts. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

// CartResponse is the JSON form of a cart.
type CartResponse struct {
	ID                string   `json:"id"`
	State             string   `json:"state"`
	ItemCount         int      `json:"item_count"`
	PermittedTriggers []string `json:"permitted_triggers"`
	Log               []string `json:"log"`
}

// FireResponse is returned by the trigger route.
type FireResponse struct {
	Trigger string `json:"trigger"`
	// Accepted is false when the trigger was declined in the cart's state.
	Accepted bool         `json:"accepted"`
	Cart     CartResponse `json:"cart"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewHandler returns the cart API router.
func NewHandler(reg *cart.Registry, opts Options) http.Handler {
	h := &handler{reg: reg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/graph", h.graph)

	r.Route("/carts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/log", h.log)

			r.Group(func(r chi.Router) {
				if opts.RateLimit > 0 {
					r.Use(NewRateLimiter(opts.RateLimit, opts.RateBurst).Middleware)
				}

				r.Post("/triggers/{trigger}", h.fire)
			})
		})
	})

	return r
}

type handler struct {
	reg *cart.Registry
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.reg.List(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	states, err := h.reg.List(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	writeJSON(w, r, http.StatusOK, states)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	c, err := h.reg.Create(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	w.Header().Set("Location", "/carts/"+c.ID())
	writeJSON(w, r, http.StatusCreated, toResponse(c))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	writeJSON(w, r, http.StatusOK, toResponse(c))
}

func (h *handler) log(w http.ResponseWriter, r *http.Request) {
	c, err := h.reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	writeJSON(w, r, http.StatusOK, nonNil(c.LogLines()))
}

func (h *handler) fire(w http.ResponseWriter, r *http.Request) {
	trigger, err := cart.ParseTrigger(chi.URLParam(r, "trigger"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)

		return
	}

	c, err := h.reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	decision, err := c.FireDecision(r.Context(), trigger)
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	writeJSON(w, r, http.StatusOK, FireResponse{
		Trigger:  trigger.String(),
		Accepted: decision.Allowed(),
		Cart:     toResponse(c),
	})
}

func (h *handler) graph(w http.ResponseWriter, r *http.Request) {
	table, err := cart.DefaultTable()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)

		return
	}

	var out string

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "mermaid":
		out, err = visualizer.GenerateMermaid(table, cart.Draft)
	case "dot":
		out, err = visualizer.GenerateDOT(table, cart.Draft, visualizer.DefaultOptions())
	default:
		writeError(w, r, http.StatusBadRequest, errors.New("format must be mermaid or dot")) //nolint:err113

		return
	}

	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func toResponse(c *cart.Cart) CartResponse {
	snap := c.Snapshot()

	permitted := c.PermittedTriggers()
	names := make([]string, 0, len(permitted))

	for _, t := range permitted {
		names = append(names, t.String())
	}

	return CartResponse{
		ID:                snap.ID,
		State:             snap.State.String(),
		ItemCount:         snap.ItemCount,
		PermittedTriggers: names,
		Log:               nonNil(snap.Log),
	}
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}

	return lines
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrCartNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrUnknownTrigger), errors.Is(err, statestore.ErrEmptyID):
		return http.StatusBadRequest
	case errors.Is(err, statestore.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, statemachine.ErrReentrantFire):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Get(r.Context()).Error("Request failed", "status", status, "error", err)
	}

	writeJSON(w, r, status, errorResponse{Error: err.Error(), Code: errorCode(status)})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Get(r.Context()).Warn("Failed to write response", "error", err)
	}
}
