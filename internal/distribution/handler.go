package distribution

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrAlertNotFound, Status: http.StatusNotFound},
	{Error: ErrAlertNotActive, Status: http.StatusConflict},
	{Error: ErrNoChannels, Status: http.StatusBadRequest},
	{Error: ErrUnknownChannel, Status: http.StatusBadRequest},
	{Error: ErrUnknownSystem, Status: http.StatusBadRequest},
	{Error: ErrUnitNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidTransition, Status: http.StatusConflict, Message: "distribution is not in sent state"},
}

// Handler handles HTTP requests for the distribution module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new distribution handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers read-only routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/alerts/{alertID}/distributions", h.ListUnits)
	r.Get("/alerts/{alertID}/distributions/summary", h.GetSummary)
	r.Get("/alerts/{alertID}/distributions/events", h.ListEvents)
}

// RegisterOperatorRoutes registers routes that change distribution state.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Post("/alerts/{alertID}/distributions", h.RequestDistribution)
	r.Post("/alerts/{alertID}/distributions/cancel", h.Cancel)
	r.Post("/distributions/{unitID}/delivered", h.ConfirmDelivery)
	r.Post("/distributions/sweep", h.Sweep)
}

// DistributeRequest represents the request body for distributing an alert.
type DistributeRequest struct {
	Channels         []string `json:"channels" validate:"dive,oneof=partner media_outlet email push social_media sms regulated_broadcast webhook"`
	TargetProvinces  []string `json:"target_provinces" validate:"dive,min=1,max=64"`
	PartnerIDs       []string `json:"partner_ids" validate:"dive,uuid"`
	MediaIDs         []string `json:"media_ids" validate:"dive,uuid"`
	RegulatedSystems []string `json:"regulated_systems" validate:"dive,oneof=wea eas highway_signs"`
}

// ToDomain converts the request to a service request.
func (r *DistributeRequest) ToDomain(alertID string) Request {
	req := Request{
		AlertID:         alertID,
		TargetProvinces: r.TargetProvinces,
		PartnerIDs:      r.PartnerIDs,
		MediaIDs:        r.MediaIDs,
	}
	for _, c := range r.Channels {
		req.Channels = append(req.Channels, domain.Channel(c))
	}
	for _, s := range r.RegulatedSystems {
		req.RegulatedSystems = append(req.RegulatedSystems, domain.RegulatedSystem(s))
	}
	return req
}

// CancelRequest represents the request body for cancelling distributions.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RequestDistribution handles POST /alerts/{alertID}/distributions.
func (h *Handler) RequestDistribution(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := h.service.RequestDistribution(r.Context(), req.ToDomain(chi.URLParam(r, "alertID")))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, result)
}

// GetSummary handles GET /alerts/{alertID}/distributions/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summarize(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}

// ListUnits handles GET /alerts/{alertID}/distributions.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListUnits(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, units)
}

// ListEvents handles GET /alerts/{alertID}/distributions/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, events)
}

// Cancel handles POST /alerts/{alertID}/distributions/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	n, err := h.service.Cancel(r.Context(), chi.URLParam(r, "alertID"), req.Reason)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"cancelled": n})
}

// ConfirmDelivery handles POST /distributions/{unitID}/delivered.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.ConfirmDelivery(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, unit)
}

// Sweep handles POST /distributions/sweep.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Sweep(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"claimed": n})
}
