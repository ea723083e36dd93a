package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/utils"
	"github.com/labelpizza/backend/internal/verification"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CatalogService administers users, videos, questions, question groups and
// schemas. Nothing here hard-deletes; rows are archived instead.
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type" binding:"omitempty,oneof=human model admin"`
}

func (s *CatalogService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	userType := req.UserType
	if userType == "" {
		userType = models.UserTypeHuman
	}
	if userType != models.UserTypeModel && req.Password == "" {
		return nil, invalid("password is required for %s users", userType)
	}

	user := &models.User{Username: req.Username, UserType: userType}
	if req.Email != "" {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		user.Email = &email
	}
	if req.Password != "" {
		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	}

	var count int64
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", user.Username)
	if user.Email != nil {
		q = q.Or("email = ?", *user.Email)
	}
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, invalid("user %q or its email already exists", req.Username)
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *CatalogService) ListUsers(ctx context.Context, includeArchived bool) ([]models.User, error) {
	var users []models.User
	q := s.db.WithContext(ctx).Order("id ASC")
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}
	err := q.Find(&users).Error
	return users, err
}

type CreateVideoRequest struct {
	VideoUID string                 `json:"video_uid" binding:"required"`
	URL      string                 `json:"url" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
	Tags     []string               `json:"tags"`
}

func (s *CatalogService) CreateVideo(ctx context.Context, req *CreateVideoRequest) (*models.Video, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Video{}).Where("video_uid = ?", req.VideoUID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, invalid("video %q already exists", req.VideoUID)
	}

	video := &models.Video{VideoUID: req.VideoUID, URL: req.URL, Tags: datatypes.JSONSlice[string](req.Tags)}
	if req.Metadata != nil {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, invalid("metadata: %v", err)
		}
		video.Metadata = datatypes.JSON(meta)
	} else {
		video.Metadata = datatypes.JSON("{}")
	}
	if video.Tags == nil {
		video.Tags = datatypes.JSONSlice[string]{}
	}

	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		return nil, err
	}
	return video, nil
}

func (s *CatalogService) ListVideos(ctx context.Context, includeArchived bool) ([]models.Video, error) {
	var videos []models.Video
	q := s.db.WithContext(ctx).Order("video_uid ASC")
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}
	err := q.Find(&videos).Error
	return videos, err
}

type QuestionRequest struct {
	Text          string    `json:"text" binding:"required"`
	DisplayText   string    `json:"display_text"`
	Type          string    `json:"type" binding:"required,oneof=single description"`
	Options       []string  `json:"options"`
	DisplayValues []string  `json:"display_values"`
	OptionWeights []float64 `json:"option_weights"`
	DefaultOption *string   `json:"default_option"`
}

func (s *CatalogService) CreateQuestion(ctx context.Context, req *QuestionRequest) (*models.Question, error) {
	if err := models.CheckOptions(req.Type, req.Options, req.DisplayValues, req.OptionWeights, req.DefaultOption); err != nil {
		return nil, invalid("%v", err)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Question{}).Where("text = ?", req.Text).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, invalid("question %q already exists", req.Text)
	}

	q := &models.Question{
		Text:          req.Text,
		DisplayText:   req.DisplayText,
		Type:          req.Type,
		DefaultOption: req.DefaultOption,
	}
	if q.DisplayText == "" {
		q.DisplayText = req.Text
	}
	fillOptions(q, req.Options, req.DisplayValues, req.OptionWeights)

	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

func fillOptions(q *models.Question, options, displayValues []string, weights []float64) {
	q.Options = datatypes.JSONSlice[string](append([]string{}, options...))
	if len(displayValues) == 0 {
		displayValues = options
	}
	q.DisplayValues = datatypes.JSONSlice[string](append([]string{}, displayValues...))
	if len(weights) == 0 && len(options) > 0 {
		weights = make([]float64, len(options))
		for i := range weights {
			weights[i] = 1
		}
	}
	q.OptionWeights = datatypes.JSONSlice[float64](append([]float64{}, weights...))
}

// UpdateQuestion edits a question in place. The text and type are fixed and
// options may only be extended.
func (s *CatalogService) UpdateQuestion(ctx context.Context, id uint, req *QuestionRequest) (*models.Question, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("question", id)
		}
		return nil, err
	}
	if req.Text != q.Text {
		return nil, invalid("question text cannot change")
	}
	if req.Type != q.Type {
		return nil, invalid("question type cannot change")
	}
	if err := models.CheckOptions(q.Type, req.Options, req.DisplayValues, req.OptionWeights, req.DefaultOption); err != nil {
		return nil, invalid("%v", err)
	}
	if err := models.CheckOptionExtension(q.Options, req.Options); err != nil {
		return nil, invalid("%v", err)
	}

	if req.DisplayText != "" {
		q.DisplayText = req.DisplayText
	}
	q.DefaultOption = req.DefaultOption
	fillOptions(&q, req.Options, req.DisplayValues, req.OptionWeights)

	if err := s.db.WithContext(ctx).Save(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *CatalogService) ListQuestions(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.WithContext(ctx).Order("id ASC").Find(&questions).Error
	return questions, err
}

type GroupQuestionInput struct {
	QuestionID uint  `json:"question_id" binding:"required"`
	Required   *bool `json:"required"`
}

type CreateQuestionGroupRequest struct {
	Title                string               `json:"title" binding:"required"`
	DisplayTitle         string               `json:"display_title"`
	Description          string               `json:"description"`
	IsReusable           bool                 `json:"is_reusable"`
	IsAutoSubmit         bool                 `json:"is_auto_submit"`
	VerificationFunction string               `json:"verification_function"`
	Questions            []GroupQuestionInput `json:"questions" binding:"required,min=1"`
}

// CreateQuestionGroup creates a group over existing questions. The
// verification function, if any, must be a registered check.
func (s *CatalogService) CreateQuestionGroup(ctx context.Context, req *CreateQuestionGroupRequest) (*GroupDefinition, error) {
	if !verification.Exists(req.VerificationFunction) {
		return nil, invalid("unknown verification function %q (known: %s)",
			req.VerificationFunction, strings.Join(verification.IDs(), ", "))
	}
	if len(req.Questions) == 0 {
		return nil, invalid("a question group needs at least one question")
	}

	seen := map[uint]bool{}
	ids := make([]uint, 0, len(req.Questions))
	for _, in := range req.Questions {
		if seen[in.QuestionID] {
			return nil, invalid("question %d listed twice", in.QuestionID)
		}
		seen[in.QuestionID] = true
		ids = append(ids, in.QuestionID)
	}

	var questions []models.Question
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	if len(questions) != len(ids) {
		return nil, notFound("question", "in request")
	}
	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		if q.IsArchived {
			return nil, &StateError{Entity: "question", Key: q.Text, Reason: "archived"}
		}
		byID[q.ID] = q
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.QuestionGroup{}).Where("title = ?", req.Title).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, invalid("question group %q already exists", req.Title)
	}

	group := models.QuestionGroup{
		Title:                req.Title,
		DisplayTitle:         req.DisplayTitle,
		Description:          req.Description,
		IsReusable:           req.IsReusable,
		IsAutoSubmit:         req.IsAutoSubmit,
		VerificationFunction: req.VerificationFunction,
	}
	if group.DisplayTitle == "" {
		group.DisplayTitle = group.Title
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		links := make([]models.QuestionGroupQuestion, len(req.Questions))
		for i, in := range req.Questions {
			required := true
			if in.Required != nil {
				required = *in.Required
			}
			links[i] = models.QuestionGroupQuestion{
				QuestionGroupID: group.ID,
				QuestionID:      in.QuestionID,
				DisplayOrder:    i,
				Required:        required,
			}
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return nil, err
	}

	def := &GroupDefinition{Group: group}
	for i, in := range req.Questions {
		required := in.Required == nil || *in.Required
		def.Questions = append(def.Questions, GroupQuestion{Question: byID[in.QuestionID], Required: required, DisplayOrder: i})
	}
	return def, nil
}

func (s *CatalogService) ListQuestionGroups(ctx context.Context) ([]models.QuestionGroup, error) {
	var groups []models.QuestionGroup
	err := s.db.WithContext(ctx).Order("id ASC").Find(&groups).Error
	return groups, err
}

type CreateSchemaRequest struct {
	Name             string `json:"name" binding:"required"`
	QuestionGroupIDs []uint `json:"question_group_ids" binding:"required,min=1"`
	HasCustomDisplay bool   `json:"has_custom_display"`
}

// CreateSchema orders existing groups into a schema. A question may appear in
// only one group of a schema so that every cell maps to a single group.
func (s *CatalogService) CreateSchema(ctx context.Context, req *CreateSchemaRequest) (*models.Schema, error) {
	ids := uniqueUints(req.QuestionGroupIDs)
	if len(ids) != len(req.QuestionGroupIDs) {
		return nil, invalid("question groups listed twice")
	}

	var groups []models.QuestionGroup
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&groups).Error; err != nil {
		return nil, err
	}
	if len(groups) != len(ids) {
		return nil, notFound("question group", "in request")
	}
	for _, g := range groups {
		if g.IsArchived {
			return nil, &StateError{Entity: "question group", Key: g.Title, Reason: "archived"}
		}
	}

	var dupes []struct {
		QuestionID uint
		N          int64
	}
	if err := s.db.WithContext(ctx).Model(&models.QuestionGroupQuestion{}).
		Select("question_id, COUNT(*) AS n").
		Where("question_group_id IN ?", ids).
		Group("question_id").
		Having("COUNT(*) > 1").
		Scan(&dupes).Error; err != nil {
		return nil, err
	}
	if len(dupes) > 0 {
		return nil, invalid("question %d appears in more than one group of the schema", dupes[0].QuestionID)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Schema{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, invalid("schema %q already exists", req.Name)
	}

	schema := &models.Schema{Name: req.Name, HasCustomDisplay: req.HasCustomDisplay}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(schema).Error; err != nil {
			return err
		}
		links := make([]models.SchemaQuestionGroup, len(ids))
		for i, id := range ids {
			links[i] = models.SchemaQuestionGroup{SchemaID: schema.ID, QuestionGroupID: id, DisplayOrder: i}
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *CatalogService) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	var schemas []models.Schema
	err := s.db.WithContext(ctx).Order("id ASC").Find(&schemas).Error
	return schemas, err
}

// archivable maps entity names to their models.
var archivable = map[string]interface{}{
	"user":           &models.User{},
	"video":          &models.Video{},
	"question":       &models.Question{},
	"question_group": &models.QuestionGroup{},
	"schema":         &models.Schema{},
	"project":        &models.Project{},
}

// SetArchived archives or restores any catalog entity.
func (s *CatalogService) SetArchived(ctx context.Context, entity string, id uint, archived bool) error {
	model, ok := archivable[entity]
	if !ok {
		return invalid("cannot archive %q", entity)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound(entity, id)
	}
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Update("is_archived", archived).Error; err != nil {
		return fmt.Errorf("archive %s %d: %w", entity, id, err)
	}
	return nil
}
