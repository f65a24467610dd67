package handlers

import (
	"net/url"
	"time"

	"stash-backend/application/services"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/relationships"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/common"
	"stash-backend/pkg/utils"
)

// EntityResponse is the wire shape of an entity. UpdatedAt doubles as the
// concurrency token clients echo back in expected_updated_at.
type EntityResponse struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url,omitempty"`
	Name    string   `json:"name,omitempty"`
	Tags    []string `json:"tags"`

	Archived bool `json:"archived"`
	Deleted  bool `json:"deleted"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Version   int    `json:"version"`
}

func toEntityResponse(e *entities.Entity) EntityResponse {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return EntityResponse{
		ID:        e.ID,
		Type:      string(e.Type),
		Title:     e.Title,
		Content:   e.Content,
		URL:       e.URL,
		Name:      e.Name,
		Tags:      tags,
		Archived:  e.IsArchived(),
		Deleted:   e.IsDeleted(),
		CreatedAt: e.CreatedAt.UTC().Format(utils.TokenFormat),
		UpdatedAt: e.Token(),
		Version:   e.Version,
	}
}

func toEntityPage(page common.Page[*entities.Entity]) common.Page[EntityResponse] {
	items := make([]EntityResponse, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, toEntityResponse(e))
	}
	return common.Page[EntityResponse]{
		Items:   items,
		Total:   page.Total,
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	}
}

// HistoryEntryResponse is one log row. Version and Content are null for
// audit actions. Content rows carry their full snapshot so clients can
// preview a version without another round trip.
type HistoryEntryResponse struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	EntityID      string              `json:"entity_id"`
	Action        string              `json:"action"`
	Version       *int                `json:"version"`
	Content       *string             `json:"content,omitempty"`
	Metadata      versioning.Metadata `json:"metadata"`
	ChangedFields []string            `json:"changed_fields,omitempty"`
	Source        string              `json:"source,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

func toHistoryEntryResponse(e *versioning.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:            e.ID,
		Type:          string(e.ContentType),
		EntityID:      e.ContentID,
		Action:        string(e.Action),
		Version:       e.Version,
		Content:       e.Content,
		Metadata:      e.MetadataSnapshot,
		ChangedFields: e.ChangedFields,
		Source:        e.Source,
		CreatedAt:     e.CreatedAt.UTC().Format(utils.TokenFormat),
	}
}

func toHistoryPage(page common.Page[*versioning.HistoryEntry]) common.Page[HistoryEntryResponse] {
	items := make([]HistoryEntryResponse, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, toHistoryEntryResponse(e))
	}
	return common.Page[HistoryEntryResponse]{
		Items:   items,
		Total:   page.Total,
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	}
}

// DiffResponse compares a version against its content predecessor. Before
// fields are null for an entity's first version.
type DiffResponse struct {
	BeforeVersion  *int                 `json:"before_version"`
	BeforeContent  *string              `json:"before_content"`
	BeforeMetadata *versioning.Metadata `json:"before_metadata"`

	AfterVersion  int                 `json:"after_version"`
	AfterContent  string              `json:"after_content"`
	AfterMetadata versioning.Metadata `json:"after_metadata"`
	AfterLabel    string              `json:"after_label"`

	ChangedFields []string `json:"changed_fields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

func toDiffResponse(d *services.DiffResult) DiffResponse {
	return DiffResponse{
		BeforeVersion:  d.BeforeVersion,
		BeforeContent:  d.BeforeContent,
		BeforeMetadata: d.BeforeMetadata,
		AfterVersion:   d.AfterVersion,
		AfterContent:   d.AfterContent,
		AfterMetadata:  d.AfterMetadata,
		AfterLabel:     d.AfterLabel,
		ChangedFields:  d.ChangedFields,
		Warnings:       d.Warnings,
	}
}

// LinkedItemResponse is one relationship from the listed entity's
// perspective.
type LinkedItemResponse struct {
	RelationshipID string `json:"relationship_id"`
	Type           string `json:"type"`
	EntityID       string `json:"entity_id"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
	Name           string `json:"name,omitempty"`
	Deleted        bool   `json:"deleted,omitempty"`
	Archived       bool   `json:"archived,omitempty"`
	RelationType   string `json:"relation_type"`
	Description    string `json:"description,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toLinkedItemResponses(items []relationships.LinkedItem) []LinkedItemResponse {
	out := make([]LinkedItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, LinkedItemResponse{
			RelationshipID: item.RelationshipID,
			Type:           string(item.Ref.Type),
			EntityID:       item.Ref.ID,
			Title:          item.Title,
			URL:            item.URL,
			Name:           item.Name,
			Deleted:        item.Deleted,
			Archived:       item.Archived,
			RelationType:   item.RelationType,
			Description:    item.Description,
			CreatedAt:      item.CreatedAt.UTC().Format(utils.TokenFormat),
		})
	}
	return out
}

// RelationshipResponse is the canonical edge as stored.
type RelationshipResponse struct {
	ID           string `json:"id"`
	SourceType   string `json:"source_type"`
	SourceID     string `json:"source_id"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_id"`
	RelationType string `json:"relation_type"`
	Description  string `json:"description,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toRelationshipResponse(r *relationships.Relationship) RelationshipResponse {
	return RelationshipResponse{
		ID:           r.ID,
		SourceType:   string(r.Source.Type),
		SourceID:     r.Source.ID,
		TargetType:   string(r.Target.Type),
		TargetID:     r.Target.ID,
		RelationType: r.RelationType,
		Description:  r.Description,
		CreatedAt:    r.CreatedAt.UTC().Format(utils.TokenFormat),
	}
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		u := t.UTC()
		return &u, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}

// multiParam reads a repeatable query parameter, accepting both the plain
// name and the bracket-suffixed form some clients send.
func multiParam(q url.Values, name string) []string {
	values := q[name]
	return append(values, q[name+"[]"]...)
}
