package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/groovy/replicasync/internal/domain"
)

const (
	DefaultSyncPageSize = 100
	MaxSyncPageSize     = 500
)

type SyncQuery struct {
	Page  int
	Limit int
	Since *time.Time
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	Total       int64 `json:"-"`
	Limit       int   `json:"limit"`
	HasNextPage bool  `json:"hasNextPage"`
}

type SyncPage struct {
	Items      []json.RawMessage
	Pagination Pagination
}

// NewPagination computes page metadata for total items split into pages of
// limit items. Zero items yields zero pages.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		Total:       total,
		Limit:       limit,
		HasNextPage: page < totalPages,
	}
}

// Wire layout of GET /sync/{resource}:
//
//	{"data": {"<resource>": [...], "pagination": {..., "total<Resource>": n}}}
//	{"data": {"<singular>Ids": [...]}}
func EncodeSyncPage(resource string, page SyncPage) ([]byte, error) {
	pagination := map[string]any{
		"currentPage":      page.Pagination.CurrentPage,
		"totalPages":       page.Pagination.TotalPages,
		totalKey(resource): page.Pagination.Total,
		"limit":            page.Pagination.Limit,
		"hasNextPage":      page.Pagination.HasNextPage,
	}
	items := page.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	return json.Marshal(map[string]any{
		"data": map[string]any{
			resource:     items,
			"pagination": pagination,
		},
	})
}

func DecodeSyncPage(resource string, raw []byte) (SyncPage, error) {
	var body struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return SyncPage{}, fmt.Errorf("%w: decode sync page: %v", domain.ErrInvalidInput, err)
	}
	itemsRaw, ok := body.Data[resource]
	if !ok {
		return SyncPage{}, fmt.Errorf("%w: sync page missing %q", domain.ErrInvalidInput, resource)
	}
	var page SyncPage
	if err := json.Unmarshal(itemsRaw, &page.Items); err != nil {
		return SyncPage{}, fmt.Errorf("%w: decode %s items: %v", domain.ErrInvalidInput, resource, err)
	}
	paginationRaw, ok := body.Data["pagination"]
	if !ok {
		return SyncPage{}, fmt.Errorf("%w: sync page missing pagination", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(paginationRaw, &page.Pagination); err != nil {
		return SyncPage{}, fmt.Errorf("%w: decode pagination: %v", domain.ErrInvalidInput, err)
	}
	var totals map[string]json.RawMessage
	if err := json.Unmarshal(paginationRaw, &totals); err == nil {
		if v, ok := totals[totalKey(resource)]; ok {
			_ = json.Unmarshal(v, &page.Pagination.Total)
		}
	}
	return page, nil
}

func EncodeSyncIDs(resource string, ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(map[string]any{
		"data": map[string]any{idsKey(resource): ids},
	})
}

func DecodeSyncIDs(resource string, raw []byte) ([]string, error) {
	var body struct {
		Data map[string][]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: decode sync ids: %v", domain.ErrInvalidInput, err)
	}
	ids, ok := body.Data[idsKey(resource)]
	if !ok {
		return nil, fmt.Errorf("%w: sync ids missing %q", domain.ErrInvalidInput, idsKey(resource))
	}
	return ids, nil
}

func totalKey(resource string) string {
	return "total" + capitalize(resource)
}

func idsKey(resource string) string {
	return strings.TrimSuffix(resource, "s") + "Ids"
}

func capitalize(v string) string {
	if v == "" {
		return v
	}
	r := []rune(v)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
