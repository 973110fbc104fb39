package accountinghttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/rbac"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const idempotencyModule = "gl.transactions"

type reportService interface {
	TrialBalance(ctx context.Context, q accounting.Query) (reports.TrialBalance, error)
	IncomeStatement(ctx context.Context, q accounting.Query) (reports.IncomeStatement, error)
	BalanceSheet(ctx context.Context, q accounting.Query) (reports.BalanceSheet, error)
	Statements(ctx context.Context, q accounting.Query) (accounting.Statements, error)
	DayBook(ctx context.Context, q accounting.Query) (reports.DayBook, error)
	GeneralLedger(ctx context.Context, q accounting.Query, accountID int64) (reports.GeneralLedger, error)
	PartnerLedger(ctx context.Context, q accounting.Query, partnerID int64) (reports.PartnerLedger, error)
	RecordTransaction(ctx context.Context, orgID int64, periodCode string, txn posting.Transaction) error
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Handler exposes ledger reports and transaction entry as JSON endpoints.
type Handler struct {
	logger      *slog.Logger
	service     reportService
	idempotency idempotencyStore
	rbac        rbac.Middleware
}

// NewHandler constructs the accounting HTTP handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service reportService, idempotency idempotencyStore, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotency: idempotency, rbac: rbac}
}

// MountRoutes registers routes beneath /orgs/{org}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermFinanceGLView, shared.PermFinanceGLEdit))
		r.Get("/reports/trial-balance", h.trialBalance)
		r.Get("/reports/income-statement", h.incomeStatement)
		r.Get("/reports/balance-sheet", h.balanceSheet)
		r.Get("/reports/statements", h.statements)
		r.Get("/reports/day-book", h.dayBook)
		r.Get("/ledger/accounts/{id}", h.generalLedger)
		r.Get("/ledger/partners/{id}", h.partnerLedger)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermFinanceGLEdit))
		r.Post("/transactions", h.recordTransaction)
	})
}

// errorRules maps ledger errors to problem responses. Order matters: a
// malformed transaction may wrap ErrUnknownAccount.
var errorRules = []httpx.Rule{
	{Target: acctshared.ErrMaintenance, Status: http.StatusServiceUnavailable, Title: "Under Maintenance"},
	{Target: acctshared.ErrMalformedTransaction, Status: http.StatusUnprocessableEntity, Title: "Unable To Compute"},
	{Target: acctshared.ErrUnbalancedResult, Status: http.StatusInternalServerError, Title: "Ledger Out Of Balance"},
	{Target: acctshared.ErrInvalidRange, Status: http.StatusBadRequest, Title: "Invalid Range"},
	{Target: acctshared.ErrMappingNotFound, Status: http.StatusUnprocessableEntity, Title: "Mapping Missing"},
	{Target: accounting.ErrDateOutOfRange, Status: http.StatusUnprocessableEntity, Title: "Date Outside Period"},
	{Target: accounting.ErrPeriodNotFound, Status: http.StatusNotFound, Title: "Period Not Found"},
	{Target: acctshared.ErrUnknownAccount, Status: http.StatusNotFound, Title: "Account Not Found"},
	{Target: acctshared.ErrPartnerNotFound, Status: http.StatusNotFound, Title: "Partner Not Found"},
	{Target: accounting.ErrPeriodClosed, Status: http.StatusConflict, Title: "Period Closed"},
	{Target: accounting.ErrPeriodChanged, Status: http.StatusConflict, Title: "Period Changed"},
	{Target: accounting.ErrDuplicateTransaction, Status: http.StatusConflict, Title: "Duplicate Transaction"},
	{Target: shared.ErrIdempotencyConflict, Status: http.StatusConflict, Title: "Duplicate Request"},
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "trial balance", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.TrialBalance(ctx, q)
	})
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "income statement", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.IncomeStatement(ctx, q)
	})
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "balance sheet", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.BalanceSheet(ctx, q)
	})
}

func (h *Handler) statements(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "statements", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.Statements(ctx, q)
	})
}

func (h *Handler) dayBook(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "day book", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.DayBook(ctx, q)
	})
}

func (h *Handler) generalLedger(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.report(w, r, "general ledger", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.GeneralLedger(ctx, q, accountID)
	})
}

func (h *Handler) partnerLedger(w http.ResponseWriter, r *http.Request) {
	partnerID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.report(w, r, "partner ledger", func(ctx context.Context, q accounting.Query) (any, error) {
		return h.service.PartnerLedger(ctx, q, partnerID)
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request, name string, build func(context.Context, accounting.Query) (any, error)) {
	q, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := build(r.Context(), q)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

type recordResponse struct {
	ID   uuid.UUID    `json:"id"`
	Kind posting.Kind `json:"kind"`
	Ref  string       `json:"ref"`
}

func (h *Handler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpx.PathInt64(r, "org")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get(shared.HeaderIdempotencyKey)
	if key == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrValidation, shared.HeaderIdempotencyKey))
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
		return
	}
	txn, err := posting.UnmarshalTransaction(raw)
	if err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
		return
	}
	// A retried request without an id maps to the same transaction id.
	if txn.Head().ID == uuid.Nil {
		txn = posting.WithID(txn, uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d/%s", orgID, key))))
	}

	if h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, r, "record transaction", err)
			return
		}
	}
	if err := h.service.RecordTransaction(r.Context(), orgID, r.URL.Query().Get("period"), txn); err != nil {
		if h.idempotency != nil {
			if rerr := h.idempotency.Release(context.WithoutCancel(r.Context()), key, idempotencyModule); rerr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", rerr))
			}
		}
		h.fail(w, r, "record transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, recordResponse{ID: txn.Head().ID, Kind: txn.Kind(), Ref: txn.Head().Ref})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if rule, ok := httpx.Classify(err, errorRules...); !ok || rule.Status >= http.StatusInternalServerError && rule.Status != http.StatusServiceUnavailable {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	var reportErr *acctshared.ReportError
	if errors.As(err, &reportErr) {
		p := httpx.ProblemDetail{
			Title:  "Unable To Compute",
			Status: http.StatusUnprocessableEntity,
			Detail: reportErr.Error(),
		}
		for _, rejected := range reportErr.Rejected {
			p.Errors = append(p.Errors, rejected.Error())
		}
		httpx.WriteProblem(w, p)
		return
	}
	httpx.RespondError(w, err, errorRules...)
}

func parseQuery(r *http.Request) (accounting.Query, error) {
	orgID, err := httpx.PathInt64(r, "org")
	if err != nil {
		return accounting.Query{}, err
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return accounting.Query{}, err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return accounting.Query{}, err
	}
	return accounting.Query{
		OrganizationID: orgID,
		PeriodCode:     r.URL.Query().Get("period"),
		From:           from,
		To:             to,
	}, nil
}
