package audit

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Repository reads audit_logs.
type Repository interface {
	Events(ctx context.Context, q Query) ([]Event, error)
}

// Service pages through the audit timeline of one pharmacy.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	q, page, pageSize, err := buildQuery(filters)
	if err != nil {
		return Result{}, err
	}
	q.Limit = pageSize + 1
	q.Offset = (page - 1) * pageSize
	events, err := s.repo.Events(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(events) > pageSize
	if hasNext {
		events = events[:pageSize]
	}
	if events == nil {
		events = []Event{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Events: events, Paging: paging}, nil
}

// Export returns every event matching the filters, ignoring paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	q, _, _, err := buildQuery(filters)
	if err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, q)
}

func buildQuery(f TimelineFilters) (Query, int, int, error) {
	if f.PharmacyID == "" {
		return Query{}, 0, 0, shared.Validationf("audit: pharmacy required")
	}
	if f.From.IsZero() || f.To.IsZero() {
		return Query{}, 0, 0, shared.Validationf("audit: from and to required")
	}
	if f.From.After(f.To) {
		return Query{}, 0, 0, shared.Validationf("audit: from is after to")
	}
	if f.To.Sub(f.From) > MaxRange {
		return Query{}, 0, 0, shared.Validationf("audit: range exceeds %d days", int(MaxRange.Hours()/24))
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return Query{
		PharmacyID: f.PharmacyID,
		From:       f.From,
		Until:      f.To.AddDate(0, 0, 1),
		Actor:      strings.TrimSpace(f.Actor),
		Entity:     strings.TrimSpace(f.Entity),
		Action:     strings.TrimSpace(f.Action),
	}, page, pageSize, nil
}
