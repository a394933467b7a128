package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
	"github.com/odyssey-erp/ledger/internal/currency"
)

// ErrAsOfOutsidePeriod indicates an as-of date before the period starts.
var ErrAsOfOutsidePeriod = errors.New("reports: as_of precedes the reporting period")

// ErrUnknownKind indicates an unsupported statement kind.
var ErrUnknownKind = errors.New("reports: unknown statement kind")

// Request scopes a statement run.
type Request struct {
	Year     int
	AsOf     *time.Time
	Currency string
}

// Service builds statements from a consistent snapshot of the ledger.
type Service struct {
	repo     accounting.Repository
	chart    *chart.Chart
	currency currency.Resolver
	cache    *Cache
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// NewService constructs the statement service. cache may be nil.
func NewService(repo accounting.Repository, c *chart.Chart, resolver currency.Resolver, cache *Cache, logger *slog.Logger) *Service {
	if c == nil {
		c = chart.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, chart: c, currency: resolver, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock used to pick the default year.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Cache exposes the statement cache so postings can invalidate it.
func (s *Service) Cache() *Cache {
	return s.cache
}

// BuildTrialBalance returns the trial balance for the request.
func (s *Service) BuildTrialBalance(ctx context.Context, req Request) (TrialBalance, error) {
	var out TrialBalance
	err := s.run(ctx, KindTrialBalance, req, &out, func(in snapshot) any {
		tb := BuildTrialBalance(in.balances, s.chart)
		in.stamp(&tb.Statement)
		return tb
	})
	return out, err
}

// BuildIncomeStatement returns the income statement for the request.
func (s *Service) BuildIncomeStatement(ctx context.Context, req Request) (IncomeStatement, error) {
	var out IncomeStatement
	err := s.run(ctx, KindIncomeStatement, req, &out, func(in snapshot) any {
		is := BuildIncomeStatement(in.balances, s.chart)
		in.stamp(&is.Statement)
		return is
	})
	return out, err
}

// BuildBalanceSheet returns the balance sheet for the request.
func (s *Service) BuildBalanceSheet(ctx context.Context, req Request) (BalanceSheet, error) {
	var out BalanceSheet
	err := s.run(ctx, KindBalanceSheet, req, &out, func(in snapshot) any {
		bs := BuildBalanceSheet(in.balances, s.chart)
		in.stamp(&bs.Statement)
		return bs
	})
	return out, err
}

// Build dispatches on kind.
func (s *Service) Build(ctx context.Context, kind Kind, req Request) (any, error) {
	switch kind {
	case KindTrialBalance:
		return s.BuildTrialBalance(ctx, req)
	case KindIncomeStatement:
		return s.BuildIncomeStatement(ctx, req)
	case KindBalanceSheet:
		return s.BuildBalanceSheet(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type snapshot struct {
	year     int
	asOf     time.Time
	currency string
	balances []AccountBalance
}

func (in snapshot) stamp(st *Statement) {
	st.Year = in.year
	st.AsOf = in.asOf
	st.Currency = in.currency
}

func (s *Service) normalize(req Request) (Request, error) {
	code, err := s.resolveCurrency(req.Currency)
	if err != nil {
		return Request{}, err
	}
	req.Currency = code
	if req.AsOf != nil {
		asOf := accounting.DateOf(*req.AsOf)
		req.AsOf = &asOf
	}
	if req.Year == 0 {
		if req.AsOf != nil {
			req.Year = req.AsOf.Year()
		} else {
			req.Year = s.now().Year()
		}
	}
	return req, nil
}

func (s *Service) resolveCurrency(code string) (string, error) {
	if s.currency != nil {
		return s.currency.Normalize(code)
	}
	if code == "" {
		return "", nil
	}
	return currency.Normalize(code)
}

func cacheKeyParts(kind Kind, req Request) []string {
	asOf := "end"
	if req.AsOf != nil {
		asOf = req.AsOf.Format("2006-01-02")
	}
	return []string{"reports", string(kind), strconv.Itoa(req.Year), asOf, req.Currency}
}

// run deduplicates concurrent builds of the same statement and serves them
// from the cache when possible.
func (s *Service) run(ctx context.Context, kind Kind, req Request, dest any, fold func(snapshot) any) error {
	req, err := s.normalize(req)
	if err != nil {
		return err
	}
	parts := cacheKeyParts(kind, req)
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return fmt.Errorf("reports: cache key: %w", err)
	}
	result := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		err := s.cache.FetchJSON(ctx, key, &raw, func(ctx context.Context) (any, error) {
			in, err := s.collect(ctx, req)
			if err != nil {
				return nil, err
			}
			return fold(in), nil
		})
		return raw, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return res.Err
		}
		s.logger.Debug("statement built",
			slog.String("kind", string(kind)),
			slog.Int("year", req.Year),
			slog.String("currency", req.Currency),
			slog.Bool("shared", res.Shared))
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

// collect is the first pass: every in-scope account's closing balance, read
// from one snapshot so a concurrent posting is either fully visible or not.
func (s *Service) collect(ctx context.Context, req Request) (snapshot, error) {
	out := snapshot{year: req.Year, currency: req.Currency}
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r accounting.Reader) error {
		period, err := r.FindPeriodByYear(ctx, req.Year)
		if err != nil {
			return err
		}
		asOf := period.End
		if req.AsOf != nil {
			if req.AsOf.Before(period.Start) {
				return ErrAsOfOutsidePeriod
			}
			if req.AsOf.Before(period.End) {
				asOf = *req.AsOf
			}
		}
		out.asOf = asOf
		accounts, err := r.ListAccounts(ctx)
		if err != nil {
			return err
		}
		out.balances = make([]AccountBalance, 0, len(accounts))
		for _, account := range accounts {
			if req.Currency != "" && account.Currency != req.Currency {
				continue
			}
			balance, err := accounting.ClosingBalance(ctx, r, account, period, asOf)
			if err != nil {
				return fmt.Errorf("closing balance %s: %w", account.Code, err)
			}
			out.balances = append(out.balances, AccountBalance{Account: account, Balance: balance})
		}
		return nil
	})
	return out, err
}
