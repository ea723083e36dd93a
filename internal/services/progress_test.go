package services

import (
	"testing"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/testutil"
)

func TestUserProgress(t *testing.T) {
	env := newEnv(t)

	// 2 videos x 4 questions = 8 cells.
	env.submitAnswers(t, env.f.Annotator, env.peopleInput(env.f.Videos[0], "0", ""))
	p, err := env.prog.UserProgress(env.ctx, env.f.Project.ID, env.f.Annotator.ID)
	if err != nil {
		t.Fatalf("UserProgress() error = %v", err)
	}
	if p != 25 {
		t.Errorf("progress = %v, expected 25", p)
	}

	// An optional question left unanswered is not counted.
	env.submitAnswers(t, env.f.Annotator, SubmissionInput{
		VideoID:         env.f.Videos[0].ID,
		ProjectID:       env.f.Project.ID,
		QuestionGroupID: env.f.WeatherGroup.ID,
		Answers:         map[string]string{env.f.Raining.Text: "No"},
	})
	p, _ = env.prog.UserProgress(env.ctx, env.f.Project.ID, env.f.Annotator.ID)
	if p != 37.5 {
		t.Errorf("progress = %v, expected 37.5", p)
	}

	other, _ := env.prog.UserProgress(env.ctx, env.f.Project.ID, env.f.Annotator2.ID)
	if other != 0 {
		t.Errorf("untouched annotator progress = %v, expected 0", other)
	}
}

func TestGroundTruthProgress_ModeSwitch(t *testing.T) {
	env := newEnv(t)

	mode, err := env.prog.ProjectMode(env.ctx, env.f.Project.ID)
	if err != nil || mode != models.ModeAnnotation {
		t.Fatalf("mode = %q, %v, expected Annotation", mode, err)
	}

	for _, v := range env.f.Videos {
		env.submitGT(t, env.f.Reviewer, env.peopleInput(v, "0", ""))
		env.submitGT(t, env.f.Reviewer, env.weatherInput(v, "No", ""))
	}

	p, err := env.prog.GroundTruthProgress(env.ctx, env.f.Project.ID)
	if err != nil {
		t.Fatalf("GroundTruthProgress() error = %v", err)
	}
	if p != 100 {
		t.Errorf("ground truth progress = %v, expected 100", p)
	}
	if mode, _ := env.prog.ProjectMode(env.ctx, env.f.Project.ID); mode != models.ModeTraining {
		t.Errorf("mode = %q, expected Training", mode)
	}
}

func TestProgress_EmptyProject(t *testing.T) {
	env := newEnv(t)
	empty := testutil.CreateProject(t, env.db, "Empty project", env.f.Schema)

	p, err := env.prog.GroundTruthProgress(env.ctx, empty.ID)
	if err != nil {
		t.Fatalf("GroundTruthProgress() error = %v", err)
	}
	if p != 0 {
		t.Errorf("progress = %v, expected 0", p)
	}
	if mode, _ := env.prog.ProjectMode(env.ctx, empty.ID); mode != models.ModeAnnotation {
		t.Errorf("empty project mode = %q, expected Annotation", mode)
	}
}

func TestProjectOverview(t *testing.T) {
	env := newEnv(t)
	env.submitAnswers(t, env.f.Annotator2, env.peopleInput(env.f.Videos[1], "1", "a dog walker"))

	overview, err := env.prog.ProjectOverview(env.ctx, env.f.Project.ID)
	if err != nil {
		t.Fatalf("ProjectOverview() error = %v", err)
	}
	if overview.TotalCells != 8 || overview.Mode != models.ModeAnnotation {
		t.Errorf("overview = %+v", overview)
	}

	// admin, annotator, annotator2 and reviewer all hold the annotator role.
	if len(overview.Annotators) != 4 {
		t.Fatalf("expected 4 annotators, got %d", len(overview.Annotators))
	}
	byName := map[string]AnnotatorProgress{}
	for _, a := range overview.Annotators {
		byName[a.Username] = a
	}
	if got := byName["annotator2"]; got.Answered != 2 || got.Percent != 25 {
		t.Errorf("annotator2 = %+v", got)
	}
	if overview.Annotators[0].Username != "admin" {
		t.Errorf("annotators should be sorted by username, first is %q", overview.Annotators[0].Username)
	}
}

func TestProgress_CachedUntilInvalidated(t *testing.T) {
	env := newEnv(t)

	if p, _ := env.prog.UserProgress(env.ctx, env.f.Project.ID, env.f.Annotator.ID); p != 0 {
		t.Fatalf("initial progress = %v", p)
	}

	// A direct insert bypasses the services, so the cached value stays.
	now := time.Now()
	if err := env.db.Create(&models.AnnotatorAnswer{
		VideoID: env.f.Videos[0].ID, ProjectID: env.f.Project.ID, UserID: env.f.Annotator.ID,
		QuestionID: env.f.PeopleCount.ID, AnswerValue: "0", CreatedAt: now, ModifiedAt: now,
	}).Error; err != nil {
		t.Fatalf("insert answer: %v", err)
	}
	if p, _ := env.prog.UserProgress(env.ctx, env.f.Project.ID, env.f.Annotator.ID); p != 0 {
		t.Errorf("cached progress = %v, expected 0", p)
	}

	env.cache.Invalidate(env.f.Project.ID)
	if p, _ := env.prog.UserProgress(env.ctx, env.f.Project.ID, env.f.Annotator.ID); p != 12.5 {
		t.Errorf("progress after invalidation = %v, expected 12.5", p)
	}
}

func TestProgressCache(t *testing.T) {
	cache := NewProgressCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set(1, "gt", 50)
	cache.Set(2, "gt", 75)
	if v, ok := cache.Get(1, "gt"); !ok || v != 50 {
		t.Errorf("Get() = %v, %v", v, ok)
	}

	cache.Invalidate(1)
	if _, ok := cache.Get(1, "gt"); ok {
		t.Error("invalidated entry should be gone")
	}
	if _, ok := cache.Get(2, "gt"); !ok {
		t.Error("other projects must keep their entries")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(2, "gt"); ok {
		t.Error("expired entry should be gone")
	}

	var nilCache *ProgressCache
	nilCache.Set(1, "gt", 1)
	if _, ok := nilCache.Get(1, "gt"); ok {
		t.Error("nil cache must not hold values")
	}
	nilCache.InvalidateAll()
}
