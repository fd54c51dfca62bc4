package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/consult-sh/consult"
	"github.com/consult-sh/consult/types"
)

// ConsultHandler serves the consultation endpoints: panel fan-out, single
// expert calls and registry listings.
type ConsultHandler struct {
	svc    *consult.Service
	logger *zap.Logger
}

// ExpertInfo is the wire shape of one registry entry.
type ExpertInfo struct {
	ID             string  `json:"id"`
	Domain         string  `json:"domain"`
	Weight         float64 `json:"weight"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	Description    string  `json:"description,omitempty"`
}

// SingleConsultRequest is the body of a single-expert consultation.
type SingleConsultRequest struct {
	Question   string `json:"question"`
	Synthesize bool   `json:"synthesize,omitempty"`
}

// NewConsultHandler creates the consultation handler.
func NewConsultHandler(svc *consult.Service, logger *zap.Logger) *ConsultHandler {
	return &ConsultHandler{svc: svc, logger: logger}
}

// HandleConsult fans a question out to a panel of experts.
// Unknown expert ids reject the whole request with 400 before any call.
// @Summary Consult a panel of experts
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=consult.Consultation}
// @Failure 400 {object} Response
// @Router /api/v1/consult [post]
func (h *ConsultHandler) HandleConsult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrValidation, "method not allowed", h.logger)
		return
	}

	var req consult.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	c, err := h.svc.Consult(r.Context(), req)
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	WriteSuccess(w, c)
}

// HandleConsultExpert queries exactly one expert by id.
// @Summary Consult a single expert
// @Accept json
// @Produce json
// @Param expert path string true "Expert ID"
// @Success 200 {object} Response{data=consult.Consultation}
// @Failure 404 {object} Response
// @Router /api/v1/consult/{expert} [post]
func (h *ConsultHandler) HandleConsultExpert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrValidation, "method not allowed", h.logger)
		return
	}

	expertID := r.PathValue("expert")
	if _, ok := h.svc.Registry().Get(expertID); !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrValidation, "unknown expert: "+expertID, h.logger)
		return
	}

	var req SingleConsultRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	c, err := h.svc.Consult(r.Context(), consult.Request{
		Question:   req.Question,
		ExpertIDs:  []string{expertID},
		Synthesize: req.Synthesize,
	})
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	WriteSuccess(w, c)
}

// HandleListExperts lists every registered expert.
// @Summary List experts
// @Produce json
// @Success 200 {object} Response{data=[]ExpertInfo}
// @Router /api/v1/experts [get]
func (h *ConsultHandler) HandleListExperts(w http.ResponseWriter, r *http.Request) {
	experts := h.svc.Registry().All()
	out := make([]ExpertInfo, 0, len(experts))
	for _, e := range experts {
		out = append(out, toExpertInfo(e))
	}
	WriteSuccess(w, out)
}

// HandleListDomains lists the registry's domains with their expert ids.
// @Summary List domains
// @Produce json
// @Success 200 {object} Response{data=map[string][]string}
// @Router /api/v1/domains [get]
func (h *ConsultHandler) HandleListDomains(w http.ResponseWriter, r *http.Request) {
	reg := h.svc.Registry()
	out := make(map[string][]string)
	for _, domain := range reg.Domains() {
		ids := make([]string, 0)
		for _, e := range reg.ByDomain(domain) {
			ids = append(ids, e.ID)
		}
		out[domain] = ids
	}
	WriteSuccess(w, out)
}

// HandleExpertsByDomain lists the experts of one domain.
// @Summary List experts of a domain
// @Produce json
// @Param domain path string true "Domain name"
// @Success 200 {object} Response{data=[]ExpertInfo}
// @Failure 404 {object} Response
// @Router /api/v1/experts/domain/{domain} [get]
func (h *ConsultHandler) HandleExpertsByDomain(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	experts := h.svc.Registry().ByDomain(domain)
	if len(experts) == 0 {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrValidation, "unknown domain: "+domain, h.logger)
		return
	}

	out := make([]ExpertInfo, 0, len(experts))
	for _, e := range experts {
		out = append(out, toExpertInfo(e))
	}
	WriteSuccess(w, out)
}

func toExpertInfo(e types.ExpertConfig) ExpertInfo {
	return ExpertInfo{
		ID:             e.ID,
		Domain:         e.Domain,
		Weight:         e.Weight,
		TimeoutSeconds: int(e.Timeout.Seconds()),
		Description:    e.Description,
	}
}
