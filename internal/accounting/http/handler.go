// Package ledgerhttp exposes the ledger over a JSON API.
package ledgerhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/currency"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	ledger    *accounting.Service
	reports   *reports.Service
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the handler. reportsPerMinute <= 0 disables the report limiter.
func NewHandler(logger *slog.Logger, ledger *accounting.Service, reportSvc *reports.Service, reportsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		ledger:    ledger,
		reports:   reportSvc,
		validator: validator.New(),
	}
	if reportsPerMinute > 0 {
		h.rateLimit = httprate.Limit(reportsPerMinute, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "report rate limit exceeded")
			}),
		)
	}
	return h
}

// MountRoutes registers ledger routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Get("/{id}", h.getAccount)
		r.Patch("/{id}/type", h.changeAccountType)
		r.Get("/{id}/balance", h.accountBalance)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Post("/", h.createTransaction)
		r.Get("/{id}", h.getTransaction)
		r.Delete("/{id}", h.deleteTransaction)
		r.Post("/{id}/post", h.postTransaction)
		r.Post("/{id}/reverse", h.reverseTransaction)
	})
	if h.reports != nil {
		r.Group(func(gr chi.Router) {
			if h.rateLimit != nil {
				gr.Use(h.rateLimit)
			}
			gr.Get("/reports/{kind}", h.report)
		})
	}
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor != shared.SystemActor {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			httpx.ValidationProblem(w, fields)
			return false
		}
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, httpx.Wrap(httpx.ErrValidation, errors.New(name+" must be YYYY-MM-DD"))
	}
	return &t, nil
}

// fail maps domain errors onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var unbalanced *accounting.UnbalancedPostingError
	switch {
	case errors.Is(err, accounting.ErrAccountNotFound), errors.Is(err, accounting.ErrTransactionNotFound):
		err = httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, accounting.ErrDuplicateAccount), errors.Is(err, accounting.ErrDuplicateReference):
		err = httpx.Wrap(httpx.ErrDuplicate, err)
	case errors.Is(err, accounting.ErrTransactionPosted),
		errors.Is(err, accounting.ErrTransactionNotPosted),
		errors.Is(err, accounting.ErrTransactionReversed),
		errors.Is(err, accounting.ErrAccountTypeLocked),
		errors.Is(err, accounting.ErrPeriodClosed):
		err = httpx.Wrap(httpx.ErrConflict, err)
	case accounting.IsValidation(err),
		errors.Is(err, currency.ErrInvalidCurrency),
		errors.Is(err, reports.ErrAsOfOutsidePeriod),
		errors.Is(err, reports.ErrUnknownKind):
		h.logger.Debug("rejected request", slog.String("path", r.URL.Path), slog.Any("error", err))
		err = httpx.Wrap(httpx.ErrValidation, err)
	case errors.Is(err, accounting.ErrMissingPeriod):
		err = httpx.Wrap(httpx.ErrUnprocessable, err)
	case errors.As(err, &unbalanced):
		h.logger.Error("unbalanced posting", slog.String("path", r.URL.Path), slog.Any("error", err))
		err = httpx.Wrap(httpx.ErrUnprocessable, err)
	case errors.Is(err, httpx.ErrValidation):
	default:
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []accounting.Account{}
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.ledger.CreateAccount(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	account, err := h.ledger.FindAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) changeAccountType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req accountTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.ledger.ChangeAccountType(r.Context(), id, accounting.AccountType(req.Type))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	at := accounting.DateOf(time.Now())
	if asOf != nil {
		at = *asOf
	}
	balance, err := h.ledger.ClosingBalance(r.Context(), id, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{AccountID: id, AsOf: at.Format(dateLayout), Balance: balance})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accounting.TransactionFilter{
		Type:     accounting.TransactionType(strings.ToUpper(strings.TrimSpace(q.Get("type")))),
		Currency: strings.TrimSpace(q.Get("currency")),
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		h.fail(w, r, err)
		return
	}
	if raw := strings.TrimSpace(q.Get("account_id")); raw != "" {
		if filter.AccountID, err = uuid.Parse(raw); err != nil {
			h.fail(w, r, httpx.Wrap(httpx.ErrValidation, errors.New("account_id must be a uuid")))
			return
		}
	}
	txs, err := h.ledger.Fetch(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := req.transaction()
	if err != nil {
		h.fail(w, r, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	if req.Post {
		err = h.ledger.Post(r.Context(), tx)
	} else {
		err = h.ledger.Save(r.Context(), tx)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.ledger.Find(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.ledger.Find(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.ledger.Post(r.Context(), tx); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	in := accounting.ReverseInput{TransactionID: id, Narration: req.Narration}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			h.fail(w, r, httpx.Wrap(httpx.ErrValidation, err))
			return
		}
		in.Date = &date
	}
	reversal, err := h.ledger.Reverse(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

var reportKinds = map[string]reports.Kind{
	"trial-balance":    reports.KindTrialBalance,
	"income-statement": reports.KindIncomeStatement,
	"balance-sheet":    reports.KindBalanceSheet,
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	kind, ok := reportKinds[chi.URLParam(r, "kind")]
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown report")
		return
	}
	req := reports.Request{Currency: strings.TrimSpace(r.URL.Query().Get("currency"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 {
			h.fail(w, r, httpx.Wrap(httpx.ErrValidation, errors.New("year must be a positive integer")))
			return
		}
		req.Year = year
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req.AsOf = asOf
	statement, err := h.reports.Build(r.Context(), kind, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statement)
}
