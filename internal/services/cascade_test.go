package services

import (
	"testing"

	"github.com/labelpizza/backend/internal/models"
)

func TestCascadePlan_Video(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitAnswers(t, env.f.Annotator, env.peopleInput(video, "0", ""))

	plan, err := env.cascade.Plan(env.ctx, "videos", []uint{video.ID})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Delete["videos"]) != 1 || len(plan.Delete["project_videos"]) != 1 || len(plan.Delete["annotator_answers"]) != 2 {
		t.Errorf("plan = %+v", plan.Delete)
	}
	if _, ok := plan.Delete["projects"]; ok {
		t.Error("parents must not be part of the plan")
	}

	_, err = env.cascade.Plan(env.ctx, "nope", []uint{1})
	errorAs[*InvalidError](t, err)
}

func TestCascade_DeleteVideo(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitAnswers(t, env.f.Annotator, env.peopleInput(video, "0", ""))
	env.submitGT(t, env.f.Reviewer, env.peopleInput(video, "0", ""))
	env.submitAnswers(t, env.f.Annotator, env.peopleInput(env.f.Videos[1], "1", "x"))

	result, err := env.cascade.Cascade(env.ctx, "videos", []uint{video.ID})
	if err != nil {
		t.Fatalf("Cascade() error = %v", err)
	}
	if result.Deleted["videos"] != 1 || result.Deleted["reviewer_ground_truths"] != 2 {
		t.Errorf("deleted = %+v", result.Deleted)
	}
	if n := count(t, env.db, &models.AnnotatorAnswer{}); n != 2 {
		t.Errorf("answers of the other video must survive, found %d", n)
	}
	if n := count(t, env.db, &models.ProjectVideo{}); n != 1 {
		t.Errorf("project videos = %d, expected 1", n)
	}
}

func TestCascade_DeleteAdminRevertsOverrides(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitGT(t, env.f.Reviewer, env.peopleInput(video, "0", ""))
	env.submitGT(t, env.f.Admin, env.peopleInput(video, "1", "a pilot"))

	result, err := env.cascade.Cascade(env.ctx, "users", []uint{env.f.Admin.ID})
	if err != nil {
		t.Fatalf("Cascade() error = %v", err)
	}
	if result.Reverted != 2 {
		t.Errorf("reverted = %d, expected 2", result.Reverted)
	}
	row := env.gtCell(t, video, env.f.PeopleCount)
	if row.AnswerValue != "0" || row.AdminLocked() {
		t.Errorf("cell after admin deletion = %+v", row)
	}
	var roles int64
	env.db.Model(&models.ProjectUserRole{}).Where("user_id = ?", env.f.Admin.ID).Count(&roles)
	if roles != 0 {
		t.Errorf("admin roles left: %d", roles)
	}
}

func TestCascade_DeleteReviewerTakesTheirGroundTruth(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitGT(t, env.f.Reviewer, env.peopleInput(video, "0", ""))

	if _, err := env.cascade.Cascade(env.ctx, "users", []uint{env.f.Reviewer.ID}); err != nil {
		t.Fatalf("Cascade() error = %v", err)
	}
	if n := count(t, env.db, &models.ReviewerGroundTruth{}); n != 0 {
		t.Errorf("ground truth rows left = %d", n)
	}
	if n := count(t, env.db, &models.User{}); n != 4 {
		t.Errorf("users left = %d, expected 4", n)
	}
}
