package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/testutil"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	f       *testutil.Fixtures
	cache   *ProgressCache
	answers *AnnotatorService
	gt      *GroundTruthService
	review  *ReviewService
	prog    *ProgressService
	project *ProjectService
	catalog *CatalogService
	display *DisplayService
	export  *ExportService
	imports *ImportService
	cascade *CascadeService
	ctx     context.Context
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	cache := NewProgressCache(time.Hour)
	prog := NewProgressService(db, cache)
	return &testEnv{
		db:      db,
		f:       testutil.SetupFixtures(t, db),
		cache:   cache,
		answers: NewAnnotatorService(db, cache),
		gt:      NewGroundTruthService(db, cache),
		review:  NewReviewService(db, prog),
		prog:    prog,
		project: NewProjectService(db, cache),
		catalog: NewCatalogService(db),
		display: NewDisplayService(db),
		export:  NewExportService(db),
		imports: NewImportService(db, cache),
		cascade: NewCascadeService(db, cache),
		ctx:     context.Background(),
	}
}

func (e *testEnv) peopleInput(video models.Video, count, desc string) SubmissionInput {
	return SubmissionInput{
		VideoID:         video.ID,
		ProjectID:       e.f.Project.ID,
		QuestionGroupID: e.f.PeopleGroup.ID,
		Answers: map[string]string{
			e.f.PeopleCount.Text: count,
			e.f.PeopleDesc.Text:  desc,
		},
	}
}

func (e *testEnv) weatherInput(video models.Video, raining, notes string) SubmissionInput {
	return SubmissionInput{
		VideoID:         video.ID,
		ProjectID:       e.f.Project.ID,
		QuestionGroupID: e.f.WeatherGroup.ID,
		Answers: map[string]string{
			e.f.Raining.Text:      raining,
			e.f.WeatherNotes.Text: notes,
		},
	}
}

func (e *testEnv) submitAnswers(t *testing.T, user *models.User, in SubmissionInput) {
	t.Helper()
	if err := e.answers.SubmitAnswers(e.ctx, &SubmitAnswersRequest{SubmissionInput: in, UserID: user.ID}); err != nil {
		t.Fatalf("SubmitAnswers() error = %v", err)
	}
}

func (e *testEnv) submitGT(t *testing.T, user *models.User, in SubmissionInput) {
	t.Helper()
	if err := e.gt.SubmitGroundTruth(e.ctx, &SubmitGroundTruthRequest{SubmissionInput: in, ReviewerID: user.ID}); err != nil {
		t.Fatalf("SubmitGroundTruth() error = %v", err)
	}
}

func (e *testEnv) gtCell(t *testing.T, video models.Video, q *models.Question) models.ReviewerGroundTruth {
	t.Helper()
	var row models.ReviewerGroundTruth
	if err := e.db.Where("project_id = ? AND video_id = ? AND question_id = ?", e.f.Project.ID, video.ID, q.ID).
		First(&row).Error; err != nil {
		t.Fatalf("load ground truth: %v", err)
	}
	return row
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

// errorAs fails the test unless err wraps a *T and returns it.
func errorAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("error = %v (%T), expected %T", err, err, target)
	}
	return target
}
