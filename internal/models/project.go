package models

import "time"

// Project roles
const (
	RoleAnnotator = "annotator"
	RoleReviewer  = "reviewer"
	RoleAdmin     = "admin"
	RoleModel     = "model"
)

// Project modes derived from ground truth completion.
const (
	ModeAnnotation = "Annotation"
	ModeTraining   = "Training"
)

// ValidRole reports whether role is a known project role.
func ValidRole(role string) bool {
	switch role {
	case RoleAnnotator, RoleReviewer, RoleAdmin, RoleModel:
		return true
	}
	return false
}

// ImpliedRoles returns role plus the roles it grants: admin implies reviewer
// and annotator, reviewer implies annotator.
func ImpliedRoles(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{RoleAdmin, RoleReviewer, RoleAnnotator}
	case RoleReviewer:
		return []string{RoleReviewer, RoleAnnotator}
	default:
		return []string{role}
	}
}

// Project combines a schema with a set of videos and user role assignments.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	SchemaID    uint      `gorm:"not null;index" json:"schema_id"`
	Schema      *Schema   `gorm:"foreignKey:SchemaID" json:"schema,omitempty"`
	IsArchived  bool      `gorm:"default:false" json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

type ProjectVideo struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"uniqueIndex:idx_project_video;not null" json:"project_id"`
	Project   *Project  `gorm:"foreignKey:ProjectID" json:"-"`
	VideoID   uint      `gorm:"uniqueIndex:idx_project_video;not null;index" json:"video_id"`
	Video     *Video    `gorm:"foreignKey:VideoID" json:"video,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectVideo) TableName() string { return "project_videos" }

// ProjectUserRole is a user's role within a project. A user holds one row per role.
type ProjectUserRole struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProjectID  uint      `gorm:"uniqueIndex:idx_project_user_role;not null" json:"project_id"`
	Project    *Project  `gorm:"foreignKey:ProjectID" json:"-"`
	UserID     uint      `gorm:"uniqueIndex:idx_project_user_role;not null;index" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role       string    `gorm:"uniqueIndex:idx_project_user_role;size:20;not null" json:"role"`
	UserWeight float64   `gorm:"not null" json:"user_weight"`
	AssignedAt time.Time `json:"assigned_at"`
}

func (ProjectUserRole) TableName() string { return "project_user_roles" }
