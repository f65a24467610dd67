package queries

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/errors"
	"stash-backend/pkg/utils"
)

// ListEntityHistoryQuery pages through one entity's log, newest first.
type ListEntityHistoryQuery struct {
	UserID      string
	ContentType string
	EntityID    string
	Limit       int
	Offset      int
}

// Validate implements bus.Query
func (q ListEntityHistoryQuery) Validate() error {
	return validateTarget(q.UserID, q.ContentType, q.EntityID)
}

// Ref returns the target entity reference. Valid only after Validate.
func (q ListEntityHistoryQuery) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(q.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: q.EntityID}
}

// ListUserHistoryQuery pages through the caller's activity across all
// entities, optionally filtered. Filter slices are order-independent.
type ListUserHistoryQuery struct {
	UserID       string
	ContentTypes []string
	Actions      []string
	Sources      []string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}

// Validate implements bus.Query
func (q ListUserHistoryQuery) Validate() error {
	if q.UserID == "" {
		return errors.NewValidationError("user id is required")
	}
	for _, ct := range q.ContentTypes {
		if _, err := valueobjects.ParseContentType(ct); err != nil {
			return err
		}
	}
	for _, a := range q.Actions {
		if !versioning.Action(a).IsValid() {
			return errors.NewValidationError(fmt.Sprintf("unknown action %q", a))
		}
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return errors.NewValidationError("end date is before start date")
	}
	return nil
}

// CacheKey implements bus.CacheKeyer. Filter slices are sorted so the same
// filters in a different order share a cache entry.
func (q ListUserHistoryQuery) CacheKey() string {
	var b strings.Builder
	b.WriteString(q.UserID)
	for _, part := range [][]string{q.ContentTypes, q.Actions, q.Sources} {
		sorted := append([]string(nil), part...)
		sort.Strings(sorted)
		b.WriteString(":" + strings.Join(sorted, ","))
	}
	for _, ts := range []*time.Time{q.StartDate, q.EndDate} {
		b.WriteString(":")
		if ts != nil {
			b.WriteString(ts.UTC().Format(utils.TokenFormat))
		}
	}
	fmt.Fprintf(&b, ":%d:%d", q.Limit, q.Offset)
	return b.String()
}

// DiffVersionQuery compares a content version against its immediate content
// predecessor.
type DiffVersionQuery struct {
	UserID      string
	ContentType string
	EntityID    string
	Version     int
}

// Validate implements bus.Query
func (q DiffVersionQuery) Validate() error {
	if err := validateTarget(q.UserID, q.ContentType, q.EntityID); err != nil {
		return err
	}
	if q.Version < 1 {
		return errors.NewValidationError("version must be at least 1")
	}
	return nil
}

// Ref returns the target entity reference. Valid only after Validate.
func (q DiffVersionQuery) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(q.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: q.EntityID}
}
