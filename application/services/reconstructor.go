package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
)

// Snapshot is an entity's content and metadata as they existed immediately
// after one content version was written.
type Snapshot struct {
	Version  int
	Content  string
	Metadata versioning.Metadata
	Warnings []string
}

// DiffResult compares one content version against its immediate content
// predecessor. Before fields are nil when the version is the entity's first.
type DiffResult struct {
	BeforeVersion  *int
	BeforeContent  *string
	BeforeMetadata *versioning.Metadata

	AfterVersion  int
	AfterContent  string
	AfterMetadata versioning.Metadata

	// AfterLabel is what consumers display for the after side: "Current"
	// when the diffed version is the entity's live version, "v<N>"
	// otherwise.
	AfterLabel string

	ChangedFields []string
	Warnings      []string
}

// Reconstructor computes past entity states from the append-only log. It is
// read-only; broken legacy data degrades results with warnings instead of
// failing the read.
type Reconstructor struct {
	entityRepo  ports.EntityRepository
	historyRepo ports.HistoryRepository
	logger      *zap.Logger
}

// NewReconstructor creates a new reconstructor service
func NewReconstructor(entityRepo ports.EntityRepository, historyRepo ports.HistoryRepository, logger *zap.Logger) *Reconstructor {
	return &Reconstructor{
		entityRepo:  entityRepo,
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// ContentAt returns the entity's content and metadata as of the given
// content version. Versions that no content action ever produced yield
// NotFound; audit actions are not addressable here because they have no
// version at all.
func (r *Reconstructor) ContentAt(ctx context.Context, ref valueobjects.EntityRef, version int) (*Snapshot, error) {
	entries, warnings, err := r.loadLog(ctx, ref)
	if err != nil {
		return nil, err
	}

	entry, err := versioning.ContentEntryAt(entries, version)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:  version,
		Metadata: entry.MetadataSnapshot,
		Warnings: warnings,
	}
	if entry.Content != nil {
		snap.Content = *entry.Content
	} else {
		snap.Warnings = append(snap.Warnings,
			fmt.Sprintf("content snapshot for version %d is missing", version))
	}
	return snap, nil
}

// Diff compares the given version against its immediate content
// predecessor, skipping any interleaved audit rows.
func (r *Reconstructor) Diff(ctx context.Context, userID string, ref valueobjects.EntityRef, version int) (*DiffResult, error) {
	entries, warnings, err := r.loadLog(ctx, ref)
	if err != nil {
		return nil, err
	}

	after, err := versioning.ContentEntryAt(entries, version)
	if err != nil {
		return nil, err
	}

	result := &DiffResult{
		AfterVersion:  version,
		AfterMetadata: after.MetadataSnapshot,
		AfterLabel:    fmt.Sprintf("v%d", version),
		ChangedFields: after.ChangedFields,
		Warnings:      warnings,
	}
	if after.Content != nil {
		result.AfterContent = *after.Content
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("content snapshot for version %d is missing", version))
	}
	// Creates have no predecessor, so they never record changed fields.
	if after.ChangedFields == nil && after.Action != versioning.ActionCreate {
		result.Warnings = append(result.Warnings,
			"changed fields were not recorded for this version")
	}

	if pred := versioning.PredecessorOf(entries, version); pred != nil {
		result.BeforeVersion = pred.Version
		meta := pred.MetadataSnapshot
		result.BeforeMetadata = &meta
		if pred.Content != nil {
			result.BeforeContent = pred.Content
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("content snapshot for version %d is missing", *pred.Version))
		}
		if *pred.Version != version-1 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("versions between %d and %d are missing from the log", *pred.Version, version))
		}
	}

	entity, err := r.entityRepo.FindByID(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	if entity.Version == version {
		result.AfterLabel = "Current"
	}
	return result, nil
}

// loadLog fetches the full log, repairing legacy rows on the way out and
// reporting chain problems as warnings.
func (r *Reconstructor) loadLog(ctx context.Context, ref valueobjects.EntityRef) ([]*versioning.HistoryEntry, []string, error) {
	entries, err := r.historyRepo.ListAllForEntity(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	repaired := 0
	for _, e := range entries {
		if e.Normalize() {
			repaired++
		}
	}
	if repaired > 0 {
		r.logger.Warn("Normalized legacy history rows",
			zap.String("entity", ref.Key()),
			zap.Int("count", repaired),
		)
		warnings = append(warnings, fmt.Sprintf("%d legacy history rows were normalized", repaired))
	}
	warnings = append(warnings, versioning.ValidateChain(entries)...)
	return entries, warnings, nil
}
