package services

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/testutil"
)

// weatherProject adds a second project that reuses the weather group on the
// first fixture video.
func (e *testEnv) weatherProject(t *testing.T) *models.Project {
	t.Helper()
	schema := testutil.CreateSchema(t, e.db, "Weather only", false, e.f.WeatherGroup)
	project := testutil.CreateProject(t, e.db, "Weather project", schema, e.f.Videos[0])
	testutil.AssignRoles(t, e.db, project, e.f.Reviewer, models.RoleReviewer)
	return project
}

func weatherFor(project *models.Project, e *testEnv, raining, notes string, withNotes bool) SubmissionInput {
	in := e.weatherInput(e.f.Videos[0], raining, notes)
	in.ProjectID = project.ID
	if !withNotes {
		delete(in.Answers, e.f.WeatherNotes.Text)
	}
	return in
}

func TestExportGroundTruth_Merges(t *testing.T) {
	env := newEnv(t)
	second := env.weatherProject(t)

	env.submitGT(t, env.f.Reviewer, env.peopleInput(env.f.Videos[0], "1", "a skater"))
	env.submitGT(t, env.f.Reviewer, env.weatherInput(env.f.Videos[0], "No", ""))
	// A cell missing from one project is not a conflict.
	env.submitGT(t, env.f.Reviewer, weatherFor(second, env, "No", "", false))

	rows, err := env.export.ExportGroundTruth(env.ctx, []uint{env.f.Project.ID, second.ID})
	if err != nil {
		t.Fatalf("ExportGroundTruth() error = %v", err)
	}
	if len(rows) != 1 || rows[0].VideoUID != "video_001.mp4" {
		t.Fatalf("rows = %+v", rows)
	}
	want := map[string]string{
		env.f.PeopleCount.Text:  "1",
		env.f.PeopleDesc.Text:   "a skater",
		env.f.Raining.Text:      "No",
		env.f.WeatherNotes.Text: "",
	}
	if !reflect.DeepEqual(rows[0].Answers, want) {
		t.Errorf("answers = %v, expected %v", rows[0].Answers, want)
	}

	cols := QuestionColumns(rows)
	if len(cols) != 4 || cols[0] != env.f.PeopleDesc.Text {
		t.Errorf("QuestionColumns() = %v", cols)
	}
}

func TestExportGroundTruth_ReusableConflict(t *testing.T) {
	env := newEnv(t)
	second := env.weatherProject(t)

	env.submitGT(t, env.f.Reviewer, env.weatherInput(env.f.Videos[0], "No", ""))
	env.submitGT(t, env.f.Reviewer, weatherFor(second, env, "Yes", "storm", true))

	_, err := env.export.ExportGroundTruth(env.ctx, []uint{env.f.Project.ID, second.ID})
	inconsistent := errorAs[*InconsistencyError](t, err)
	if len(inconsistent.Conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %+v", inconsistent.Conflicts)
	}
	c := inconsistent.Conflicts[0]
	if c.Question != env.f.WeatherNotes.Text || c.ProjectA != env.f.Project.Name || c.ValueB != "storm" || c.GroupTitle != "Weather" {
		t.Errorf("first conflict = %+v", c)
	}

	// Each project on its own exports fine.
	if _, err := env.export.ExportGroundTruth(env.ctx, []uint{second.ID}); err != nil {
		t.Errorf("single project export error = %v", err)
	}
}

func TestResolveProjects(t *testing.T) {
	env := newEnv(t)

	ids, err := env.export.ResolveProjects(env.ctx, []string{env.f.Project.Name, strconv.Itoa(int(env.f.Project.ID))})
	if err != nil {
		t.Fatalf("ResolveProjects() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != env.f.Project.ID {
		t.Errorf("ids = %v, duplicates should collapse", ids)
	}

	_, err = env.export.ResolveProjects(env.ctx, []string{"missing"})
	errorAs[*NotFoundError](t, err)

	_, err = env.export.ExportGroundTruth(env.ctx, nil)
	errorAs[*InvalidError](t, err)
}
