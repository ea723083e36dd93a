package services

import (
	"testing"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/testutil"
)

func labels(q DisplayQuestion) []string {
	out := make([]string, len(q.Options))
	for i, o := range q.Options {
		out[i] = o.Label
	}
	return out
}

func TestDisplayService_SetCustomDisplay(t *testing.T) {
	e := newEnv(t)
	video := e.f.Videos[0]

	text := "How many people are on screen?"
	row, err := e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
		ProjectID:        e.f.Project.ID,
		VideoID:          video.ID,
		QuestionID:       e.f.PeopleCount.ID,
		DisplayText:      &text,
		OptionDisplayMap: map[string]string{"2+": "A crowd"},
	})
	if err != nil {
		t.Fatalf("SetCustomDisplay() error = %v", err)
	}
	if row.ID == 0 {
		t.Error("expected row to be persisted")
	}

	shown, err := e.display.EffectiveDisplay(e.ctx, e.f.Project.ID, video.ID, e.f.PeopleGroup.ID)
	if err != nil {
		t.Fatalf("EffectiveDisplay() error = %v", err)
	}
	if len(shown) != 2 {
		t.Fatalf("len(shown) = %d, expected 2", len(shown))
	}
	first := shown[0]
	if !first.Customized || first.DisplayText != text {
		t.Errorf("first = %+v, expected customized text %q", first, text)
	}
	got := labels(first)
	expected := []string{"Label 0", "Label 1", "A crowd"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("labels = %v, expected %v", got, expected)
			break
		}
	}
	if shown[1].Customized {
		t.Error("description question should not be customized")
	}

	// The other video keeps the defaults.
	other, err := e.display.EffectiveDisplay(e.ctx, e.f.Project.ID, e.f.Videos[1].ID, e.f.PeopleGroup.ID)
	if err != nil {
		t.Fatalf("EffectiveDisplay() error = %v", err)
	}
	if other[0].Customized || other[0].DisplayText != e.f.PeopleCount.DisplayText {
		t.Errorf("other video = %+v, expected defaults", other[0])
	}

	// A second call replaces the override.
	_, err = e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
		ProjectID:        e.f.Project.ID,
		VideoID:          video.ID,
		QuestionID:       e.f.PeopleCount.ID,
		OptionDisplayMap: map[string]string{"0": "Nobody"},
	})
	if err != nil {
		t.Fatalf("SetCustomDisplay() second call error = %v", err)
	}
	if n := count(t, e.db, &models.ProjectVideoQuestionDisplay{}); n != 1 {
		t.Errorf("override rows = %d, expected 1", n)
	}
	shown, _ = e.display.EffectiveDisplay(e.ctx, e.f.Project.ID, video.ID, e.f.PeopleGroup.ID)
	if shown[0].DisplayText != e.f.PeopleCount.DisplayText {
		t.Errorf("DisplayText = %q, expected default after clearing", shown[0].DisplayText)
	}
	if got := labels(shown[0]); got[0] != "Nobody" || got[2] != "Label 2+" {
		t.Errorf("labels = %v", got)
	}
}

func TestDisplayService_SetCustomDisplayRejections(t *testing.T) {
	e := newEnv(t)
	video := e.f.Videos[0]

	t.Run("reusable group", func(t *testing.T) {
		_, err := e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
			ProjectID: e.f.Project.ID, VideoID: video.ID, QuestionID: e.f.Raining.ID,
			OptionDisplayMap: map[string]string{"Yes": "Wet"},
		})
		errorAs[*InvalidError](t, err)
	})

	t.Run("unknown option", func(t *testing.T) {
		_, err := e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
			ProjectID: e.f.Project.ID, VideoID: video.ID, QuestionID: e.f.PeopleCount.ID,
			OptionDisplayMap: map[string]string{"3": "Three"},
		})
		errorAs[*IllegalValueError](t, err)
	})

	t.Run("video outside project", func(t *testing.T) {
		stray := testutil.CreateVideo(t, e.db, "stray.mp4")
		_, err := e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
			ProjectID: e.f.Project.ID, VideoID: stray.ID, QuestionID: e.f.PeopleCount.ID,
		})
		if err == nil {
			t.Fatal("expected error for a video outside the project")
		}
	})

	t.Run("custom display disabled", func(t *testing.T) {
		schema := testutil.CreateSchema(t, e.db, "Plain schema", false, e.f.PeopleGroup)
		project := testutil.CreateProject(t, e.db, "Plain project", schema, video)
		_, err := e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
			ProjectID: project.ID, VideoID: video.ID, QuestionID: e.f.PeopleCount.ID,
		})
		errorAs[*StateError](t, err)
	})

	if n := count(t, e.db, &models.ProjectVideoQuestionDisplay{}); n != 0 {
		t.Errorf("override rows = %d, expected 0", n)
	}
}

func TestDisplayService_RemoveCustomDisplay(t *testing.T) {
	e := newEnv(t)
	video := e.f.Videos[0]

	err := e.display.RemoveCustomDisplay(e.ctx, e.f.Project.ID, video.ID, e.f.PeopleCount.ID)
	errorAs[*NotFoundError](t, err)

	if _, err := e.display.SetCustomDisplay(e.ctx, &SetCustomDisplayRequest{
		ProjectID: e.f.Project.ID, VideoID: video.ID, QuestionID: e.f.PeopleCount.ID,
		OptionDisplayMap: map[string]string{"1": "One person"},
	}); err != nil {
		t.Fatalf("SetCustomDisplay() error = %v", err)
	}
	if err := e.display.RemoveCustomDisplay(e.ctx, e.f.Project.ID, video.ID, e.f.PeopleCount.ID); err != nil {
		t.Fatalf("RemoveCustomDisplay() error = %v", err)
	}
	shown, err := e.display.EffectiveDisplay(e.ctx, e.f.Project.ID, video.ID, e.f.PeopleGroup.ID)
	if err != nil {
		t.Fatalf("EffectiveDisplay() error = %v", err)
	}
	if shown[0].Customized || labels(shown[0])[1] != "Label 1" {
		t.Errorf("shown = %+v, expected defaults after removal", shown[0])
	}
}
