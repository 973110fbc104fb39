package closehttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/close"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/rbac"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

type closeService interface {
	Rollover(ctx context.Context, req close.Request) (close.Result, error)
	CheckPreconditions(ctx context.Context, req close.Request) (accounting.Period, error)
	Status(ctx context.Context, orgID int64) (close.Status, error)
	Preview(ctx context.Context, orgID int64, periodCode string) (close.Outcome, error)
}

// Queue hands a rollover to the background worker.
type Queue interface {
	EnqueueRollover(ctx context.Context, req close.Request) (string, error)
}

// Handler wires HTTP endpoints for fiscal rollovers.
type Handler struct {
	logger  *slog.Logger
	service closeService
	queue   Queue
	rbac    rbac.Middleware
}

// NewHandler constructs a close HTTP handler. queue may be nil, in which case
// asynchronous requests are refused.
func NewHandler(logger *slog.Logger, service closeService, queue Queue, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, queue: queue, rbac: rbac}
}

// MountRoutes registers routes beneath /orgs/{org}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/rollover", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermFinanceGLView, shared.PermFinancePeriodClose))
		r.Get("/", h.status)
		r.Get("/preview", h.preview)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermFinancePeriodClose))
			r.Post("/", h.rollover)
		})
	})
}

var errorRules = []httpx.Rule{
	{Target: close.ErrRolloverForbidden, Status: http.StatusForbidden, Title: "Forbidden"},
	{Target: close.ErrRolloverInProgress, Status: http.StatusConflict, Title: "Rollover In Progress"},
	{Target: close.ErrPeriodAlreadyRolled, Status: http.StatusConflict, Title: "Period Already Rolled Over"},
	{Target: close.ErrPeriodNotEnded, Status: http.StatusConflict, Title: "Period Not Ended"},
	{Target: close.ErrInvalidTarget, Status: http.StatusUnprocessableEntity, Title: "Invalid Target Period"},
	{Target: close.ErrRolloverFailure, Status: http.StatusInternalServerError, Title: "Rollover Failed"},
	{Target: accounting.ErrPeriodNotFound, Status: http.StatusNotFound, Title: "Period Not Found"},
	{Target: acctshared.ErrMalformedTransaction, Status: http.StatusUnprocessableEntity, Title: "Unable To Compute"},
	{Target: acctshared.ErrMappingNotFound, Status: http.StatusUnprocessableEntity, Title: "Mapping Missing"},
}

type targetInput struct {
	Code      string `json:"code" validate:"required,max=32"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type rolloverInput struct {
	PeriodCode string      `json:"period_code"`
	Target     targetInput `json:"target"`
	Async      bool        `json:"async"`
}

func (in rolloverInput) request(orgID int64, actor shared.Actor) (close.Request, error) {
	if err := posting.Validator().Struct(in); err != nil {
		return close.Request{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	start, _ := time.Parse(time.DateOnly, in.Target.StartDate)
	end, _ := time.Parse(time.DateOnly, in.Target.EndDate)
	return close.Request{
		OrganizationID: orgID,
		PeriodCode:     in.PeriodCode,
		Target:         close.Target{Code: in.Target.Code, StartDate: start, EndDate: end},
		ActorID:        actor.ID,
		Elevated:       actor.Elevated(),
	}, nil
}

type queuedResponse struct {
	TaskID string `json:"task_id"`
}

func (h *Handler) rollover(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.PathInt64(r, "org")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var in rolloverInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := in.request(orgID, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if in.Async {
		if h.queue == nil {
			httpx.RespondError(w, fmt.Errorf("%w: background worker not configured", httpx.ErrUnavailable))
			return
		}
		if _, err := h.service.CheckPreconditions(r.Context(), req); err != nil {
			h.fail(w, r, "rollover", err)
			return
		}
		id, err := h.queue.EnqueueRollover(r.Context(), req)
		if err != nil {
			h.fail(w, r, "enqueue rollover", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, queuedResponse{TaskID: id})
		return
	}
	res, err := h.service.Rollover(r.Context(), req)
	if err != nil {
		h.fail(w, r, "rollover", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.PathInt64(r, "org")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Status(r.Context(), orgID)
	if err != nil {
		h.fail(w, r, "rollover status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.PathInt64(r, "org")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Preview(r.Context(), orgID, r.URL.Query().Get("period"))
	if err != nil {
		h.fail(w, r, "rollover preview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	rule, ok := httpx.Classify(err, errorRules...)
	switch {
	case !ok || rule.Status >= http.StatusInternalServerError:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	default:
		h.logger.Warn(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorRules...)
}
