package testutil

import (
	"testing"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/verification"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Password is the login password of every fixture human.
const Password = "secret123"

// Fixtures is a small but complete project: one schema with a non-reusable
// people group and a reusable weather group, two videos and one user per
// role.
type Fixtures struct {
	DB *gorm.DB

	Admin      *models.User
	Reviewer   *models.User
	Annotator  *models.User
	Annotator2 *models.User
	Model      *models.User

	Videos []models.Video

	PeopleCount  *models.Question
	PeopleDesc   *models.Question
	Raining      *models.Question
	WeatherNotes *models.Question

	PeopleGroup  *models.QuestionGroup
	WeatherGroup *models.QuestionGroup
	Schema       *models.Schema
	Project      *models.Project
}

// SetupFixtures seeds db and returns handles on everything it created.
func SetupFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	t.Helper()
	f := &Fixtures{DB: db}

	f.Admin = CreateUser(t, db, "admin", models.UserTypeAdmin)
	f.Reviewer = CreateUser(t, db, "reviewer", models.UserTypeHuman)
	f.Annotator = CreateUser(t, db, "annotator", models.UserTypeHuman)
	f.Annotator2 = CreateUser(t, db, "annotator2", models.UserTypeHuman)
	f.Model = CreateUser(t, db, "model", models.UserTypeModel)

	f.Videos = []models.Video{
		*CreateVideo(t, db, "video_001.mp4"),
		*CreateVideo(t, db, "video_002.mp4"),
	}

	f.PeopleCount = CreateQuestion(t, db, verification.QuestionPeopleCount, []string{"0", "1", "2+"}, ptr("0"))
	f.PeopleDesc = CreateQuestion(t, db, verification.QuestionPeopleDescription, nil, nil)
	f.Raining = CreateQuestion(t, db, verification.QuestionRaining, []string{"Yes", "No"}, ptr("No"))
	f.WeatherNotes = CreateQuestion(t, db, verification.QuestionWeatherNotes, nil, nil)

	f.PeopleGroup = CreateGroup(t, db, "People", false, verification.PeopleCountDescription,
		GroupEntry{f.PeopleCount, true}, GroupEntry{f.PeopleDesc, true})
	f.WeatherGroup = CreateGroup(t, db, "Weather", true, verification.WeatherDescription,
		GroupEntry{f.Raining, true}, GroupEntry{f.WeatherNotes, false})

	f.Schema = CreateSchema(t, db, "Scene schema", true, f.PeopleGroup, f.WeatherGroup)
	f.Project = CreateProject(t, db, "Scene project", f.Schema, f.Videos...)

	AssignRoles(t, db, f.Project, f.Admin, models.RoleAdmin, models.RoleReviewer, models.RoleAnnotator)
	AssignRoles(t, db, f.Project, f.Reviewer, models.RoleReviewer, models.RoleAnnotator)
	AssignRoles(t, db, f.Project, f.Annotator, models.RoleAnnotator)
	AssignRoles(t, db, f.Project, f.Annotator2, models.RoleAnnotator)
	AssignRoles(t, db, f.Project, f.Model, models.RoleModel)

	return f
}

func ptr[T any](v T) *T { return &v }

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("Failed to create %T: %v", value, err)
	}
}

// CreateUser inserts a user. Humans and admins get Password and an email of
// <username>@test.com.
func CreateUser(t *testing.T, db *gorm.DB, username, userType string) *models.User {
	t.Helper()
	user := &models.User{Username: username, UserType: userType}
	if userType != models.UserTypeModel {
		hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("Failed to hash password: %v", err)
		}
		user.Password = string(hash)
		user.Email = ptr(username + "@test.com")
	}
	mustCreate(t, db, user)
	return user
}

func CreateVideo(t *testing.T, db *gorm.DB, uid string) *models.Video {
	t.Helper()
	video := &models.Video{
		VideoUID: uid,
		URL:      "https://videos.test/" + uid,
		Metadata: datatypes.JSON(`{}`),
		Tags:     datatypes.JSONSlice[string]{},
	}
	mustCreate(t, db, video)
	return video
}

// CreateQuestion inserts a single-choice question when options is non-empty
// and a description question otherwise.
func CreateQuestion(t *testing.T, db *gorm.DB, text string, options []string, defaultOption *string) *models.Question {
	t.Helper()
	q := &models.Question{
		Text:          text,
		DisplayText:   text,
		Type:          models.QuestionTypeDescription,
		Options:       datatypes.JSONSlice[string]{},
		DisplayValues: datatypes.JSONSlice[string]{},
		OptionWeights: datatypes.JSONSlice[float64]{},
		DefaultOption: defaultOption,
	}
	if len(options) > 0 {
		q.Type = models.QuestionTypeSingle
		q.Options = append(q.Options, options...)
		for _, o := range options {
			q.DisplayValues = append(q.DisplayValues, "Label "+o)
			q.OptionWeights = append(q.OptionWeights, 1)
		}
	}
	mustCreate(t, db, q)
	return q
}

// GroupEntry places a question in a group.
type GroupEntry struct {
	Question *models.Question
	Required bool
}

func CreateGroup(t *testing.T, db *gorm.DB, title string, reusable bool, verificationFn string, entries ...GroupEntry) *models.QuestionGroup {
	t.Helper()
	group := &models.QuestionGroup{
		Title:                title,
		DisplayTitle:         title,
		IsReusable:           reusable,
		VerificationFunction: verificationFn,
	}
	mustCreate(t, db, group)
	for i, e := range entries {
		mustCreate(t, db, &models.QuestionGroupQuestion{
			QuestionGroupID: group.ID,
			QuestionID:      e.Question.ID,
			DisplayOrder:    i,
			Required:        e.Required,
		})
	}
	return group
}

func CreateSchema(t *testing.T, db *gorm.DB, name string, customDisplay bool, groups ...*models.QuestionGroup) *models.Schema {
	t.Helper()
	schema := &models.Schema{Name: name, HasCustomDisplay: customDisplay}
	mustCreate(t, db, schema)
	for i, g := range groups {
		mustCreate(t, db, &models.SchemaQuestionGroup{SchemaID: schema.ID, QuestionGroupID: g.ID, DisplayOrder: i})
	}
	return schema
}

func CreateProject(t *testing.T, db *gorm.DB, name string, schema *models.Schema, videos ...models.Video) *models.Project {
	t.Helper()
	project := &models.Project{Name: name, SchemaID: schema.ID}
	mustCreate(t, db, project)
	for _, v := range videos {
		mustCreate(t, db, &models.ProjectVideo{ProjectID: project.ID, VideoID: v.ID})
	}
	return project
}

// AssignRoles gives user each of roles on project with weight 1.
func AssignRoles(t *testing.T, db *gorm.DB, project *models.Project, user *models.User, roles ...string) {
	t.Helper()
	for _, role := range roles {
		mustCreate(t, db, &models.ProjectUserRole{
			ProjectID:  project.ID,
			UserID:     user.ID,
			Role:       role,
			UserWeight: 1,
			AssignedAt: time.Now(),
		})
	}
}
