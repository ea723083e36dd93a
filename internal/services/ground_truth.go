package services

import (
	"context"
	"errors"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GroundTruthService struct {
	db    *gorm.DB
	cache *ProgressCache
}

func NewGroundTruthService(db *gorm.DB, cache *ProgressCache) *GroundTruthService {
	return &GroundTruthService{db: db, cache: cache}
}

type SubmitGroundTruthRequest struct {
	SubmissionInput
	ReviewerID uint `json:"-"`
}

// SubmitGroundTruth stores reviewer or admin ground truth for one group on one
// video. Reviewers cannot touch a group that contains an admin-modified cell.
// Admin overwrites record the replaced value the first time a cell changes.
func (s *GroundTruthService) SubmitGroundTruth(ctx context.Context, req *SubmitGroundTruthRequest) error {
	sub, err := prepareSubmission(ctx, s.db, &req.SubmissionInput, req.ReviewerID, models.RoleReviewer, models.RoleAdmin)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return writeGroundTruth(tx, sub, time.Now())
	}); err != nil {
		return err
	}

	s.cache.Invalidate(sub.project.ID)
	logger.Debug().
		Uint("project_id", sub.project.ID).
		Uint("video_id", sub.videoID).
		Uint("reviewer_id", sub.user.ID).
		Bool("admin", sub.roles[models.RoleAdmin]).
		Msg("[GroundTruth] Ground truth submitted")
	return nil
}

// existingGroundTruth reads the current cells of sub, row-locking them where
// the dialect supports it.
func existingGroundTruth(tx *gorm.DB, sub *submission, lock bool) (map[uint]models.ReviewerGroundTruth, error) {
	q := tx.Where("video_id = ? AND project_id = ? AND question_id IN ?",
		sub.videoID, sub.project.ID, sub.group.QuestionIDs())
	if lock && !models.IsSQLite(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []models.ReviewerGroundTruth
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]models.ReviewerGroundTruth, len(rows))
	for _, r := range rows {
		byQuestion[r.QuestionID] = r
	}
	return byQuestion, nil
}

// checkAdminLock fails with AdminLockError when a non-admin would overwrite an
// admin-modified cell. Only the questions the submission answers are checked.
func checkAdminLock(tx *gorm.DB, sub *submission, existing map[uint]models.ReviewerGroundTruth) error {
	if sub.roles[models.RoleAdmin] {
		return nil
	}

	var cells []LockedCell
	adminIDs := map[uint]bool{}
	for _, q := range sub.answered() {
		row, ok := existing[q.ID]
		if !ok || !row.AdminLocked() {
			continue
		}
		adminIDs[*row.ModifiedByAdminID] = true
		cells = append(cells, LockedCell{
			Question:   q.Text,
			AdminID:    *row.ModifiedByAdminID,
			ModifiedAt: row.ModifiedByAdminAt,
		})
	}
	if len(cells) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(adminIDs))
	for id := range adminIDs {
		ids = append(ids, id)
	}
	var admins []models.User
	if err := tx.Where("id IN ?", ids).Find(&admins).Error; err != nil {
		return err
	}
	names := make(map[uint]string, len(admins))
	for i := range admins {
		names[admins[i].ID] = admins[i].DisplayName()
	}
	for i := range cells {
		cells[i].Admin = names[cells[i].AdminID]
	}
	return &AdminLockError{Cells: cells}
}

func writeGroundTruth(tx *gorm.DB, sub *submission, now time.Time) error {
	existing, err := existingGroundTruth(tx, sub, true)
	if err != nil {
		return err
	}
	if err := checkAdminLock(tx, sub, existing); err != nil {
		return err
	}

	isAdmin := sub.roles[models.RoleAdmin]
	var inserts []models.ReviewerGroundTruth

	for _, q := range sub.answered() {
		value := sub.answers[q.Text]
		row, ok := existing[q.ID]
		if !ok {
			inserts = append(inserts, models.ReviewerGroundTruth{
				VideoID:         sub.videoID,
				ProjectID:       sub.project.ID,
				QuestionID:      q.ID,
				ReviewerID:      sub.user.ID,
				AnswerValue:     value,
				ConfidenceScore: sub.score(q.Text),
				Notes:           sub.note(q.Text),
				CreatedAt:       now,
				ModifiedAt:      now,
			})
			continue
		}

		updates := map[string]interface{}{
			"answer_value":     value,
			"confidence_score": sub.score(q.Text),
			"notes":            sub.note(q.Text),
			"modified_at":      now,
		}
		switch {
		case isAdmin && (row.AnswerValue != value || row.AdminLocked()):
			if !row.AdminLocked() {
				updates["original_answer_value"] = row.AnswerValue
			}
			updates["modified_by_admin_id"] = sub.user.ID
			updates["modified_by_admin_at"] = now
		case !isAdmin:
			updates["reviewer_id"] = sub.user.ID
		}

		if err := tx.Model(&models.ReviewerGroundTruth{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			return err
		}
	}

	if len(inserts) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}, {Name: "project_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer_value", "reviewer_id", "confidence_score", "notes", "modified_at"}),
	}).Create(&inserts).Error
}

// RevertAdminModifications restores every ground truth cell adminID overrode
// in projectID and clears the override audit fields. It must run inside the
// caller's transaction.
func RevertAdminModifications(tx *gorm.DB, projectID, adminID uint) (int64, error) {
	result := tx.Model(&models.ReviewerGroundTruth{}).
		Where("project_id = ? AND modified_by_admin_id = ?", projectID, adminID).
		Updates(map[string]interface{}{
			"answer_value":          gorm.Expr("COALESCE(original_answer_value, answer_value)"),
			"original_answer_value": nil,
			"modified_by_admin_id":  nil,
			"modified_by_admin_at":  nil,
			"modified_at":           time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.Info().
			Uint("project_id", projectID).
			Uint("admin_id", adminID).
			Int64("cells", result.RowsAffected).
			Msg("[GroundTruth] Reverted admin modifications")
	}
	return result.RowsAffected, nil
}

// RevertGroundTruthCell undoes the admin override of a single cell. Only
// project admins may revert.
func (s *GroundTruthService) RevertGroundTruthCell(ctx context.Context, projectID, videoID, questionID, actorID uint) error {
	if _, err := requireRole(ctx, s.db, projectID, actorID, models.RoleAdmin); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.ReviewerGroundTruth
		err := tx.Where("project_id = ? AND video_id = ? AND question_id = ?", projectID, videoID, questionID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "ground truth", Key: formatPair(videoID, questionID)}
		}
		if err != nil {
			return err
		}
		if !row.AdminLocked() {
			return &StateError{Entity: "ground truth", Key: formatPair(videoID, questionID), Reason: "not modified by an admin"}
		}

		value := row.AnswerValue
		if row.OriginalAnswerValue != nil {
			value = *row.OriginalAnswerValue
		}
		return tx.Model(&models.ReviewerGroundTruth{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"answer_value":          value,
			"original_answer_value": nil,
			"modified_by_admin_id":  nil,
			"modified_by_admin_at":  nil,
			"modified_at":           time.Now(),
		}).Error
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(projectID)
	return nil
}

// GroundTruthView is a stored ground truth cell keyed by question text.
type GroundTruthView struct {
	Question            string     `json:"question"`
	AnswerValue         string     `json:"answer_value"`
	ReviewerID          uint       `json:"reviewer_id"`
	OriginalAnswerValue *string    `json:"original_answer_value,omitempty"`
	ModifiedByAdminID   *uint      `json:"modified_by_admin_id,omitempty"`
	ModifiedByAdminAt   *time.Time `json:"modified_by_admin_at,omitempty"`
	ConfidenceScore     *float64   `json:"confidence_score"`
	Notes               *string    `json:"notes"`
}

// GetGroundTruth returns the ground truth of a group on a video.
func (s *GroundTruthService) GetGroundTruth(ctx context.Context, projectID, videoID, groupID uint) ([]GroundTruthView, error) {
	group, err := LoadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	var rows []models.ReviewerGroundTruth
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND video_id = ? AND question_id IN ?", projectID, videoID, group.QuestionIDs()).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]models.ReviewerGroundTruth, len(rows))
	for _, r := range rows {
		byQuestion[r.QuestionID] = r
	}

	views := make([]GroundTruthView, 0, len(rows))
	for _, q := range group.Questions {
		r, ok := byQuestion[q.Question.ID]
		if !ok {
			continue
		}
		views = append(views, GroundTruthView{
			Question:            q.Question.Text,
			AnswerValue:         r.AnswerValue,
			ReviewerID:          r.ReviewerID,
			OriginalAnswerValue: r.OriginalAnswerValue,
			ModifiedByAdminID:   r.ModifiedByAdminID,
			ModifiedByAdminAt:   r.ModifiedByAdminAt,
			ConfidenceScore:     r.ConfidenceScore,
			Notes:               r.Notes,
		})
	}
	return views, nil
}
