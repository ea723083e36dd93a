package services

import (
	"context"
	"testing"

	"github.com/labelpizza/backend/internal/models"
)

func (e *testEnv) annotationRow(email, uid, count, desc string) AnnotationRow {
	return AnnotationRow{
		QuestionGroupTitle: e.f.PeopleGroup.Title,
		ProjectName:        e.f.Project.Name,
		UserEmail:          email,
		VideoUID:           uid,
		Answers: map[string]string{
			e.f.PeopleCount.Text: count,
			e.f.PeopleDesc.Text:  desc,
		},
	}
}

func TestImportAnnotations(t *testing.T) {
	env := newEnv(t)

	result, err := env.imports.ImportAnnotations(env.ctx, []AnnotationRow{
		env.annotationRow("annotator@test.com", "video_001.mp4", "0", ""),
		env.annotationRow("annotator2@test.com", "video_002.mp4", "1", "a chef"),
	})
	if err != nil {
		t.Fatalf("ImportAnnotations() error = %v", err)
	}
	if result.Rows != 2 || result.Answers != 4 {
		t.Errorf("result = %+v", result)
	}
	if n := count(t, env.db, &models.AnnotatorAnswer{}); n != 4 {
		t.Errorf("stored %d answers, expected 4", n)
	}
}

func TestImportAnnotations_ModelAccountByUsername(t *testing.T) {
	env := newEnv(t)

	result, err := env.imports.ImportAnnotations(env.ctx, []AnnotationRow{
		env.annotationRow(env.f.Model.Username, "video_001.mp4", "2+", "two cyclists"),
	})
	if err != nil {
		t.Fatalf("ImportAnnotations() error = %v", err)
	}
	if result.Answers != 2 {
		t.Errorf("result = %+v", result)
	}
	var n int64
	env.db.Model(&models.AnnotatorAnswer{}).Where("user_id = ?", env.f.Model.ID).Count(&n)
	if n != 2 {
		t.Errorf("model answers = %d, expected 2", n)
	}
}

func TestImportAnnotations_AllOrNothing(t *testing.T) {
	env := newEnv(t)

	_, err := env.imports.ImportAnnotations(env.ctx, []AnnotationRow{
		env.annotationRow("annotator@test.com", "video_001.mp4", "0", ""),
		env.annotationRow("nobody@test.com", "video_001.mp4", "0", ""),
		env.annotationRow("annotator@test.com", "video_002.mp4", "7", ""),
	})
	importErr := errorAs[*ImportError](t, err)
	if len(importErr.Rows) != 2 || importErr.Rows[0].Index != 1 || importErr.Rows[1].Index != 2 {
		t.Errorf("row errors = %+v", importErr.Rows)
	}
	if n := count(t, env.db, &models.AnnotatorAnswer{}); n != 0 {
		t.Errorf("failed import wrote %d answers", n)
	}
}

func TestImportReviews_AdminLockFailsUpFront(t *testing.T) {
	env := newEnv(t)
	video := env.f.Videos[0]
	env.submitGT(t, env.f.Reviewer, env.peopleInput(video, "0", ""))
	env.submitGT(t, env.f.Admin, env.peopleInput(video, "1", "a guard"))

	rows := []ReviewRow{
		{
			QuestionGroupTitle: env.f.WeatherGroup.Title,
			ProjectName:        env.f.Project.Name,
			ReviewerEmail:      "reviewer@test.com",
			VideoUID:           "video_002.mp4",
			Answers:            map[string]string{env.f.Raining.Text: "No"},
		},
		{
			QuestionGroupTitle: env.f.PeopleGroup.Title,
			ProjectName:        env.f.Project.Name,
			ReviewerEmail:      "reviewer@test.com",
			VideoUID:           video.VideoUID,
			Answers:            map[string]string{env.f.PeopleCount.Text: "2+", env.f.PeopleDesc.Text: "guards"},
		},
	}
	_, err := env.imports.ImportReviews(env.ctx, rows)
	importErr := errorAs[*ImportError](t, err)
	if len(importErr.Rows) != 1 || importErr.Rows[0].Index != 1 {
		t.Errorf("row errors = %+v", importErr.Rows)
	}
	var weather int64
	env.db.Model(&models.ReviewerGroundTruth{}).Where("question_id = ?", env.f.Raining.ID).Count(&weather)
	if weather != 0 {
		t.Error("valid rows must not be written when any row fails")
	}

	result, err := env.imports.ImportReviews(env.ctx, rows[:1])
	if err != nil {
		t.Fatalf("ImportReviews() error = %v", err)
	}
	if result.Answers != 1 {
		t.Errorf("answers = %d, expected 1", result.Answers)
	}
}

func TestSyncQueue_RunsImportInline(t *testing.T) {
	env := newEnv(t)
	queue := NewSyncQueue(NewImportProcessor(env.imports))
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}

	hub := GetImportHub()
	events := hub.Subscribe("test")
	defer hub.Unsubscribe("test")

	task, err := NewImportTask(TaskTypeImportAnnotations, env.f.Admin.ID)
	if err != nil {
		t.Fatalf("NewImportTask() error = %v", err)
	}
	task.Annotations = []AnnotationRow{env.annotationRow("annotator@test.com", "video_001.mp4", "0", "")}

	result, err := queue.Enqueue(context.Background(), task)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if result == nil || result.Answers != 2 {
		t.Errorf("result = %+v", result)
	}

	var statuses []string
	for len(statuses) < 2 {
		ev := <-events
		if ev.TaskID == task.ID {
			statuses = append(statuses, ev.Status)
		}
	}
	if statuses[0] != ImportRunning || statuses[1] != ImportCompleted {
		t.Errorf("statuses = %v", statuses)
	}

	if _, err := NewImportTask("import:unknown", 1); err == nil {
		t.Error("unknown task types should be rejected")
	}
	if err := queue.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestImportEventHub(t *testing.T) {
	hub := NewImportEventHub()
	ch := hub.Subscribe("a")
	hub.Subscribe("b")
	if hub.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d", hub.ClientCount())
	}

	hub.Publish(ImportEvent{TaskID: "t1", Status: ImportQueued})
	ev := <-ch
	if ev.TaskID != "t1" || ev.At.IsZero() {
		t.Errorf("event = %+v", ev)
	}

	hub.Unsubscribe("a")
	hub.Unsubscribe("missing")
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d after unsubscribe", hub.ClientCount())
	}
	if _, open := <-ch; open {
		t.Error("unsubscribed channel should be closed")
	}
}
