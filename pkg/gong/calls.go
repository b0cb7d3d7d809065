package gong

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListProgress observes discovery progress: calls accumulated so far and
// the server's total-count hint (0 until the first page arrives). Purely
// informational; not part of the correctness contract.
type ListProgress func(fetched, total int)

// listResponse is the wire shape shared by the listing endpoints.
type listResponse struct {
	Calls   []Call      `json:"calls"`
	Records recordsInfo `json:"records"`
}

// recordsInfo carries the pagination envelope.
type recordsInfo struct {
	TotalRecords    int    `json:"totalRecords"`
	CurrentPageSize int    `json:"currentPageSize"`
	Cursor          string `json:"cursor"`
}

// extensiveCall wraps a call from the extensive endpoint, which nests the
// metadata under metaData and exposes participants alongside.
type extensiveCall struct {
	MetaData Call    `json:"metaData"`
	Parties  []Party `json:"parties"`
}

// extensiveResponse is the wire shape of POST /v2/calls/extensive.
type extensiveResponse struct {
	Calls   []extensiveCall `json:"calls"`
	Records recordsInfo     `json:"records"`
}

// extensiveRequest is the request body for POST /v2/calls/extensive.
type extensiveRequest struct {
	Filter          callFilter      `json:"filter"`
	ContentSelector contentSelector `json:"contentSelector"`
	Cursor          string          `json:"cursor,omitempty"`
}

type callFilter struct {
	FromDateTime string   `json:"fromDateTime"`
	ToDateTime   string   `json:"toDateTime"`
	CallIDs      []string `json:"callIds,omitempty"`
}

type contentSelector struct {
	ExposedFields exposedFields `json:"exposedFields"`
}

type exposedFields struct {
	Parties bool  `json:"parties"`
	Media   bool  `json:"media"`
	Content *struct {
		Brief   bool `json:"brief"`
		Outline bool `json:"outline"`
	} `json:"content,omitempty"`
}

// ListCalls discovers all calls in the date range via GET /v2/calls,
// following the continuation cursor until the server stops returning one.
// Pages are appended in order; requests are issued sequentially through
// the rate-limited executor. progress may be nil.
func (c *Client) ListCalls(ctx context.Context, r DateRange, progress ListProgress) ([]Call, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var all []Call
	cursor := ""

	for page := 1; ; page++ {
		if page > c.config.MaxPages {
			return nil, fmt.Errorf("%w: %d pages for range %s..%s",
				ErrTooManyPages, c.config.MaxPages, r.FromDateTime(), r.ToDateTime())
		}

		query := url.Values{}
		query.Set("fromDateTime", r.FromDateTime())
		query.Set("toDateTime", r.ToDateTime())
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, "/v2/calls", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("list calls page %d: %w", page, err)
		}

		all = append(all, resp.Calls...)
		c.logger.Debug().
			Int("page", page).
			Int("fetched", len(all)).
			Int("total", resp.Records.TotalRecords).
			Msg("Fetched calls page")
		if progress != nil {
			progress(len(all), resp.Records.TotalRecords)
		}

		cursor = resp.Records.Cursor
		if cursor == "" {
			break
		}
	}

	c.logger.Info().
		Int("calls", len(all)).
		Str("from", r.FromDateTime()).
		Str("to", r.ToDateTime()).
		Msg("Call discovery complete")
	return all, nil
}

// ListCallsExtensive discovers calls with participant data via
// POST /v2/calls/extensive. Same pagination contract as ListCalls; the
// nested metaData/parties wire shape is flattened into plain Calls.
func (c *Client) ListCallsExtensive(ctx context.Context, r DateRange, progress ListProgress) ([]Call, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var all []Call
	cursor := ""

	for page := 1; ; page++ {
		if page > c.config.MaxPages {
			return nil, fmt.Errorf("%w: %d pages for range %s..%s",
				ErrTooManyPages, c.config.MaxPages, r.FromDateTime(), r.ToDateTime())
		}

		body := extensiveRequest{
			Filter: callFilter{
				FromDateTime: r.FromDateTime(),
				ToDateTime:   r.ToDateTime(),
			},
			ContentSelector: contentSelector{
				ExposedFields: exposedFields{Parties: true, Media: true},
			},
			Cursor: cursor,
		}

		var resp extensiveResponse
		if err := c.do(ctx, http.MethodPost, "/v2/calls/extensive", nil, body, &resp); err != nil {
			return nil, fmt.Errorf("list calls (extensive) page %d: %w", page, err)
		}

		for _, ec := range resp.Calls {
			call := ec.MetaData
			call.Parties = ec.Parties
			all = append(all, call)
		}
		c.logger.Debug().
			Int("page", page).
			Int("fetched", len(all)).
			Int("total", resp.Records.TotalRecords).
			Msg("Fetched extensive calls page")
		if progress != nil {
			progress(len(all), resp.Records.TotalRecords)
		}

		cursor = resp.Records.Cursor
		if cursor == "" {
			break
		}
	}

	c.logger.Info().
		Int("calls", len(all)).
		Str("from", r.FromDateTime()).
		Str("to", r.ToDateTime()).
		Msg("Call discovery complete (extensive)")
	return all, nil
}
