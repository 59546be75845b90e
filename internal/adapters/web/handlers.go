package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"importdesk/internal/app"
)

// requestTimeout is the deadline applied to every request context; mutating
// calls hold at most one database transaction each, so this bounds them too.
const requestTimeout = 30 * time.Second

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
// Authentication happens upstream; the authenticated user id arrives in the
// X-User-ID header.
func NewHandler(svc app.ApplicationService, allowedOrigins string, log *logrus.Logger) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)

		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Patch("/", h.updateStageFields)
			r.Post("/transition", h.transitionStage)
			r.Post("/archive", h.archiveOrder)
			r.Post("/receive", h.receiveInventory)
			r.Post("/marks", h.generateMarks)

			r.Get("/documents", h.listDocuments)
			r.Post("/documents", h.addDocument)
			r.Get("/invoices", h.listInvoices)
			r.Post("/invoices", h.addInvoice)
			r.Post("/forwarding-costs", h.addForwardingCost)
			r.Get("/audit", h.listAuditLog)
		})
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// orderIDParam parses the {orderID} route parameter.
func orderIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "orderID"))
	return id, err == nil && id > 0
}

// actorID reads the authenticated user id from the X-User-ID header.
func actorID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.Header.Get("X-User-ID"))
	return id, err == nil && id > 0
}
