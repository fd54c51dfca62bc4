package feedback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/consult-sh/consult/types"
)

// GormStore persists feedback through gorm. It works against sqlite for
// local use and postgres for shared deployments; the dialector is chosen
// by the caller when opening the *gorm.DB.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore migrates the feedback tables and returns the store.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Entry{}, &ExpertStat{}); err != nil {
		return nil, types.NewError(types.ErrInternal, "feedback schema migration failed").WithCause(err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "feedback")),
		now:    time.Now,
	}, nil
}

// LogQuery appends a new consultation record and returns its query id.
func (s *GormStore) LogQuery(ctx context.Context, question string, expertsUsed []string) (string, error) {
	entry := Entry{
		QueryID:     NewQueryID(question, s.now()),
		Question:    question,
		ExpertsUsed: expertsUsed,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return "", types.NewError(types.ErrInternal, "failed to log query").WithCause(err)
	}
	s.logger.Debug("Query logged",
		zap.String("query_id", entry.QueryID),
		zap.Int("experts", len(expertsUsed)))
	return entry.QueryID, nil
}

// RateSynthesis records whether the synthesized report was helpful.
func (s *GormStore) RateSynthesis(ctx context.Context, queryID string, helpful bool) error {
	return s.updateEntry(ctx, queryID, map[string]interface{}{"synthesis_helpful": helpful})
}

// RateExpert marks one expert as the best or worst responder of a
// consultation and bumps that expert's aggregate tally.
func (s *GormStore) RateExpert(ctx context.Context, queryID, expertID string, isBest bool) error {
	column := "best_expert"
	if !isBest {
		column = "worst_expert"
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Entry{}).Where("query_id = ?", queryID).Update(column, expertID)
		if res.Error != nil {
			return types.NewError(types.ErrInternal, "failed to rate expert").WithCause(res.Error)
		}
		if res.RowsAffected == 0 {
			return unknownQuery(queryID)
		}
		return bumpStat(tx, expertID, isBest)
	})
}

// LogAction records what the user did after the consultation.
func (s *GormStore) LogAction(ctx context.Context, queryID, action string) error {
	return s.updateEntry(ctx, queryID, map[string]interface{}{"action_taken": action})
}

// AddNotes attaches free-text notes to a consultation.
func (s *GormStore) AddNotes(ctx context.Context, queryID, notes string) error {
	return s.updateEntry(ctx, queryID, map[string]interface{}{"user_notes": notes})
}

// Stats returns the aggregate rating tally per expert.
func (s *GormStore) Stats(ctx context.Context) (map[string]ExpertStat, error) {
	var rows []ExpertStat
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to read expert stats").WithCause(err)
	}
	stats := make(map[string]ExpertStat, len(rows))
	for _, row := range rows {
		stats[row.ExpertID] = row
	}
	return stats, nil
}

// Recent returns up to limit entries in chronological order, newest last.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to read feedback entries").WithCause(err)
	}
	reverse(entries)
	return entries, nil
}

// AnalyzePatterns summarizes the most recent hundred entries.
func (s *GormStore) AnalyzePatterns(ctx context.Context) (PatternReport, error) {
	entries, err := s.Recent(ctx, patternWindow)
	if err != nil {
		return PatternReport{}, err
	}
	return analyzeEntries(entries), nil
}

func (s *GormStore) updateEntry(ctx context.Context, queryID string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&Entry{}).Where("query_id = ?", queryID).Updates(fields)
	if res.Error != nil {
		return types.NewError(types.ErrInternal, "failed to update feedback entry").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return unknownQuery(queryID)
	}
	return nil
}

// bumpStat upserts the per-expert tally, incrementing in place on conflict.
func bumpStat(tx *gorm.DB, expertID string, positive bool) error {
	seed := ExpertStat{ExpertID: expertID, Total: 1}
	assignments := map[string]interface{}{"total": gorm.Expr("total + 1")}
	if positive {
		seed.Positive = 1
		assignments["positive"] = gorm.Expr("positive + 1")
	} else {
		seed.Negative = 1
		assignments["negative"] = gorm.Expr("negative + 1")
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "expert_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&seed).Error
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to update expert stats").WithCause(err)
	}
	return nil
}

func unknownQuery(queryID string) error {
	return types.NewError(types.ErrValidation, fmt.Sprintf("unknown query id %q", queryID)).
		WithHTTPStatus(http.StatusNotFound)
}

func reverse(entries []Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
