package pipeline

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/providers"
	"legal-doc-intelligence/models"
)

// extractor is the slice of internal/providers this stage depends on.
type extractor interface {
	Extract(ctx context.Context, text string, page int) (*providers.ExtractionResponse, error)
}

// extractStore is the slice of internal/store this stage depends on.
type extractStore interface {
	ListCanonicalEntities(ctx context.Context, matterID primitive.ObjectID) ([]*models.CanonicalEntity, error)
	UpsertCanonicalEntity(ctx context.Context, e *models.CanonicalEntity) error
	InsertEntityMentions(ctx context.Context, mentions []*models.EntityMention) error
	InsertEvents(ctx context.Context, events []*models.Event) error
	InsertCitations(ctx context.Context, citations []*models.Citation) error
	bboxLoader
}

// RunExtractStage calls the extraction provider on one chunk's content
// and persists the resulting entity mentions (resolved against
// existing canonical entities by fuzzy name match), timeline events,
// and citations. Canonical entities are cached by the caller across
// chunks within a document by reusing the same entityCache, so the
// second mention of "the Plaintiff" in a later chunk resolves to the
// same identity the first mention created without a full matter-wide
// re-query per chunk.
func RunExtractStage(
	ctx context.Context,
	provider extractor,
	store extractStore,
	matterID, documentID, chunkID primitive.ObjectID,
	chunk *models.Chunk,
	entityCache *EntityCache,
	dedupThreshold float64,
	bboxIndex *BBoxIndex,
) error {
	resp, err := provider.Extract(ctx, chunk.Content, chunk.PageNumber)
	if err != nil {
		return err
	}

	var mentions []*models.EntityMention
	for _, e := range resp.Entities {
		canonical, err := entityCache.Resolve(ctx, store, matterID, e.SurfaceForm, e.EntityType, dedupThreshold)
		if err != nil {
			return err
		}
		mentions = append(mentions, &models.EntityMention{
			ID:                primitive.NewObjectID(),
			MatterID:          matterID,
			DocumentID:        documentID,
			ChunkID:           chunkID,
			CanonicalEntityID: canonical.ID,
			SurfaceForm:       e.SurfaceForm,
			EntityType:        e.EntityType,
		})
	}
	if err := store.InsertEntityMentions(ctx, mentions); err != nil {
		return err
	}

	var events []*models.Event
	for _, e := range resp.Events {
		eventDate, precision := parseEventDate(e.EventDateText)
		bboxIDs, err := bboxIndex.FilterBBoxIDsByText(ctx, store, matterID, documentID, e.Description, chunk.BBoxIDs)
		if err != nil {
			return err
		}
		events = append(events, &models.Event{
			ID:            primitive.NewObjectID(),
			MatterID:      matterID,
			DocumentID:    documentID,
			EventDate:     eventDate,
			DatePrecision: precision,
			EventDateText: e.EventDateText,
			Description:   e.Description,
			EventType:     e.EventType,
			SourcePage:    chunk.PageNumber,
			SourceBBoxIDs: bboxIDs,
		})
	}
	if err := store.InsertEvents(ctx, events); err != nil {
		return err
	}

	var citations []*models.Citation
	for _, c := range resp.Citations {
		bboxIDs, err := bboxIndex.FilterBBoxIDsByText(ctx, store, matterID, documentID, c.RawText, chunk.BBoxIDs)
		if err != nil {
			return err
		}
		citations = append(citations, &models.Citation{
			ID:               primitive.NewObjectID(),
			MatterID:         matterID,
			DocumentID:       documentID,
			ActName:          c.ActName,
			Section:          c.Section,
			RawText:          c.RawText,
			SourcePage:       chunk.PageNumber,
			SourceBBoxIDs:    bboxIDs,
			ResolutionStatus: models.ResolutionMissing,
		})
	}
	return store.InsertCitations(ctx, citations)
}

// EntityCache resolves entity mentions to canonical entities within
// one document's processing run, avoiding a ListCanonicalEntities
// round trip per mention; a new canonical entity is created and added
// to the cache the first time a surface form doesn't fuzzy-match any
// existing one.
type EntityCache struct {
	matterID primitive.ObjectID
	loaded   bool
	entities []*models.CanonicalEntity
}

func NewEntityCache() *EntityCache {
	return &EntityCache{}
}

func (c *EntityCache) Resolve(ctx context.Context, store extractStore, matterID primitive.ObjectID, surfaceForm, entityType string, threshold float64) (*models.CanonicalEntity, error) {
	if !c.loaded {
		existing, err := store.ListCanonicalEntities(ctx, matterID)
		if err != nil {
			return nil, err
		}
		c.entities = existing
		c.loaded = true
	}

	for _, e := range c.entities {
		if e.EntityType != entityType {
			continue
		}
		if _, _, matched := FuzzyMatch(surfaceForm, e.CanonicalName, e.Aliases, threshold); matched {
			if !containsAlias(e.Aliases, surfaceForm) && !strings.EqualFold(e.CanonicalName, surfaceForm) {
				e.Aliases = append(e.Aliases, surfaceForm)
				if err := store.UpsertCanonicalEntity(ctx, e); err != nil {
					return nil, err
				}
			}
			return e, nil
		}
	}

	newEntity := &models.CanonicalEntity{
		ID:            primitive.NewObjectID(),
		MatterID:      matterID,
		CanonicalName: surfaceForm,
		EntityType:    entityType,
	}
	if err := store.UpsertCanonicalEntity(ctx, newEntity); err != nil {
		return nil, err
	}
	c.entities = append(c.entities, newEntity)
	return newEntity, nil
}

func containsAlias(aliases []string, name string) bool {
	for _, a := range aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

var (
	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[-/\s](?:(\w+)|(\d{1,2}))[-/\s](\d{4})\b`)
	monthYear    = regexp.MustCompile(`(?i)\b(\w+)\s+(\d{4})\b`)
	yearOnly     = regexp.MustCompile(`\b(\d{4})\b`)
	monthNames   = map[string]time.Month{
		"january": time.January, "february": time.February, "march": time.March,
		"april": time.April, "may": time.May, "june": time.June,
		"july": time.July, "august": time.August, "september": time.September,
		"october": time.October, "november": time.November, "december": time.December,
	}
)

// parseEventDate extracts a best-effort date and precision from free
// text like "15th March 2021" or "March 2021" or just "2021", falling
// back to no date at all (precision "") when nothing recognizable is
// found — callers still keep event_date_text verbatim either way.
func parseEventDate(text string) (*time.Time, models.DatePrecision) {
	if m := dayMonthYear.FindStringSubmatch(text); m != nil {
		day := atoiSafe(m[1])
		var month time.Month
		if m[2] != "" {
			month = monthNames[strings.ToLower(m[2])]
		} else {
			month = time.Month(atoiSafe(m[3]))
		}
		year := atoiSafe(m[4])
		if day > 0 && month > 0 && year > 0 {
			t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
			return &t, models.PrecisionDay
		}
	}
	if m := monthYear.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			year := atoiSafe(m[2])
			if year > 0 {
				t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
				return &t, models.PrecisionMonth
			}
		}
	}
	if m := yearOnly.FindStringSubmatch(text); m != nil {
		year := atoiSafe(m[1])
		if year >= 1000 && year <= 9999 {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t, models.PrecisionYear
		}
	}
	return nil, ""
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
