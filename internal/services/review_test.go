package services

import (
	"testing"

	"github.com/labelpizza/backend/internal/models"
)

func (e *testEnv) answerID(t *testing.T, user *models.User, video models.Video, q *models.Question) uint {
	t.Helper()
	var a models.AnnotatorAnswer
	if err := e.db.Where("user_id = ? AND video_id = ? AND question_id = ?", user.ID, video.ID, q.ID).First(&a).Error; err != nil {
		t.Fatalf("load answer: %v", err)
	}
	return a.ID
}

func TestSubmitAnswerReview(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitAnswers(t, env.f.Annotator, env.peopleInput(video, "1", "a jogger"))
	id := env.answerID(t, env.f.Annotator, video, env.f.PeopleCount)

	if _, err := env.review.SubmitAnswerReview(env.ctx, &SubmitAnswerReviewRequest{
		AnswerID: id, Status: models.ReviewApproved, ReviewerID: env.f.Annotator2.ID,
	}); err == nil {
		t.Fatal("annotators must not review answers")
	} else {
		errorAs[*PermissionError](t, err)
	}

	for _, status := range []string{models.ReviewApproved, models.ReviewRejected} {
		review, err := env.review.SubmitAnswerReview(env.ctx, &SubmitAnswerReviewRequest{
			AnswerID: id, Status: status, Comment: "checked", ReviewerID: env.f.Reviewer.ID,
		})
		if err != nil {
			t.Fatalf("SubmitAnswerReview(%s) error = %v", status, err)
		}
		if review.Status != status {
			t.Errorf("Status = %q, expected %q", review.Status, status)
		}
	}
	if n := count(t, env.db, &models.AnswerReview{}); n != 1 {
		t.Errorf("expected one review per answer, got %d", n)
	}

	_, err := env.review.SubmitAnswerReview(env.ctx, &SubmitAnswerReviewRequest{
		AnswerID: id, Status: "maybe", ReviewerID: env.f.Reviewer.ID,
	})
	errorAs[*InvalidError](t, err)
}

func TestSuggestGroundTruth(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]

	env.submitAnswers(t, env.f.Annotator, env.peopleInput(video, "1", "one"))
	env.submitAnswers(t, env.f.Annotator2, env.peopleInput(video, "2+", "two"))

	suggestions, err := env.review.SuggestGroundTruth(env.ctx, env.f.Project.ID, video.ID, env.f.PeopleGroup.ID)
	if err != nil {
		t.Fatalf("SuggestGroundTruth() error = %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("only single-choice questions get suggestions, got %d", len(suggestions))
	}
	// A tie goes to the option listed first.
	if s := suggestions[0]; s.Suggested != "1" || s.Votes != 2 {
		t.Errorf("tie suggestion = %+v", s)
	}

	// Heavier annotators win.
	weight := 3.0
	if err := env.project.AssignRole(env.ctx, env.f.Project.ID, &AssignRoleRequest{
		UserID: env.f.Annotator2.ID, Role: models.RoleAnnotator, UserWeight: &weight,
	}); err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}
	suggestions, _ = env.review.SuggestGroundTruth(env.ctx, env.f.Project.ID, video.ID, env.f.PeopleGroup.ID)
	if s := suggestions[0]; s.Suggested != "2+" || s.Totals["2+"] != 3 {
		t.Errorf("weighted suggestion = %+v", s)
	}

	// Rejected answers drop out of the vote.
	id := env.answerID(t, env.f.Annotator2, video, env.f.PeopleCount)
	if _, err := env.review.SubmitAnswerReview(env.ctx, &SubmitAnswerReviewRequest{
		AnswerID: id, Status: models.ReviewRejected, ReviewerID: env.f.Reviewer.ID,
	}); err != nil {
		t.Fatalf("SubmitAnswerReview() error = %v", err)
	}
	suggestions, _ = env.review.SuggestGroundTruth(env.ctx, env.f.Project.ID, video.ID, env.f.PeopleGroup.ID)
	if s := suggestions[0]; s.Suggested != "1" || s.Votes != 1 {
		t.Errorf("suggestion after rejection = %+v", s)
	}
}

func TestCheckAnswers_TrainingOnly(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitAnswers(t, env.f.Annotator, env.peopleInput(video, "1", "a hiker"))

	_, err := env.review.CheckAnswers(env.ctx, env.f.Project.ID, video.ID, env.f.Annotator.ID, env.f.PeopleGroup.ID)
	errorAs[*StateError](t, err)

	for _, v := range env.f.Videos {
		env.submitGT(t, env.f.Reviewer, env.peopleInput(v, "2+", "two hikers"))
		env.submitGT(t, env.f.Reviewer, env.weatherInput(v, "No", ""))
	}

	feedback, err := env.review.CheckAnswers(env.ctx, env.f.Project.ID, video.ID, env.f.Annotator.ID, env.f.PeopleGroup.ID)
	if err != nil {
		t.Fatalf("CheckAnswers() error = %v", err)
	}
	if len(feedback) != 2 {
		t.Fatalf("expected 2 feedback rows, got %d", len(feedback))
	}
	if fb := feedback[0]; !fb.Graded || fb.Correct || fb.GroundTruth != "2+" {
		t.Errorf("single choice feedback = %+v", fb)
	}
	if fb := feedback[1]; fb.Graded {
		t.Errorf("description answers are not graded: %+v", fb)
	}
}
