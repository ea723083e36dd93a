package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ForeignKey is one belongs-to edge between two tables.
type ForeignKey struct {
	Table        string // child table holding the column
	Column       string
	ParentTable  string
	ParentColumn string
	Nullable     bool
}

// staticDeletionOrder is used only when the model graph cannot be parsed.
var staticDeletionOrder = []string{
	"answer_reviews",
	"annotator_answers",
	"reviewer_ground_truths",
	"project_video_question_displays",
	"project_user_roles",
	"project_videos",
	"projects",
	"schema_question_groups",
	"schemas",
	"question_group_questions",
	"question_groups",
	"questions",
	"videos",
	"scheduler_locks",
	"system_logs",
	"users",
}

var graphCache struct {
	sync.Mutex
	order []string
	keys  []ForeignKey
}

// ForeignKeys returns every belongs-to relationship declared on the models.
func ForeignKeys(db *gorm.DB) ([]ForeignKey, error) {
	graphCache.Lock()
	defer graphCache.Unlock()
	if graphCache.keys != nil {
		return graphCache.keys, nil
	}
	keys, _, err := parseGraph(db)
	if err != nil {
		return nil, err
	}
	graphCache.keys = keys
	return keys, nil
}

// DeletionOrder returns all tables ordered so that every table appears before
// the tables it references. The order is computed once from the gorm schema
// graph; the static list is cached instead if parsing fails.
func DeletionOrder(db *gorm.DB) ([]string, error) {
	graphCache.Lock()
	defer graphCache.Unlock()
	if graphCache.order != nil {
		return graphCache.order, nil
	}

	keys, tables, err := parseGraph(db)
	if err == nil {
		var order []string
		order, err = topoSort(tables, keys)
		if err == nil {
			graphCache.order = order
			graphCache.keys = keys
			return order, nil
		}
	}

	logger.Warn().Err(err).Msg("[Database] Falling back to static deletion order")
	graphCache.order = staticDeletionOrder
	return graphCache.order, nil
}

// InsertionOrder is DeletionOrder reversed: parents first.
func InsertionOrder(db *gorm.DB) ([]string, error) {
	order, err := DeletionOrder(db)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(order))
	for i, t := range order {
		out[len(order)-1-i] = t
	}
	return out, nil
}

func parseGraph(db *gorm.DB) ([]ForeignKey, []string, error) {
	cache := &sync.Map{}
	var keys []ForeignKey
	var tables []string

	for _, model := range All() {
		s, err := schema.Parse(model, cache, db.NamingStrategy)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %T: %w", model, err)
		}
		tables = append(tables, s.Table)

		for _, rel := range s.Relationships.BelongsTo {
			for _, ref := range rel.References {
				if ref.ForeignKey == nil || ref.PrimaryKey == nil {
					continue
				}
				keys = append(keys, ForeignKey{
					Table:        s.Table,
					Column:       ref.ForeignKey.DBName,
					ParentTable:  rel.FieldSchema.Table,
					ParentColumn: ref.PrimaryKey.DBName,
					Nullable:     !ref.ForeignKey.NotNull,
				})
			}
		}
	}
	return keys, tables, nil
}

// topoSort orders tables children first with Kahn's algorithm. Ties are
// broken by table name so the order is stable across runs.
func topoSort(tables []string, keys []ForeignKey) ([]string, error) {
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t] = true
	}

	// referrers[p] counts distinct child tables still pointing at p.
	referrers := make(map[string]map[string]bool, len(tables))
	parents := make(map[string]map[string]bool, len(tables))
	for _, t := range tables {
		referrers[t] = map[string]bool{}
		parents[t] = map[string]bool{}
	}
	for _, k := range keys {
		if k.Table == k.ParentTable {
			continue
		}
		if !known[k.ParentTable] {
			return nil, fmt.Errorf("table %s references unregistered table %s", k.Table, k.ParentTable)
		}
		referrers[k.ParentTable][k.Table] = true
		parents[k.Table][k.ParentTable] = true
	}

	var ready []string
	for _, t := range tables {
		if len(referrers[t]) == 0 {
			ready = append(ready, t)
		}
	}

	order := make([]string, 0, len(tables))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for parent := range parents[next] {
			delete(referrers[parent], next)
			if len(referrers[parent]) == 0 {
				ready = append(ready, parent)
			}
		}
	}

	if len(order) != len(tables) {
		return nil, fmt.Errorf("foreign key cycle among %d tables", len(tables)-len(order))
	}
	return order, nil
}
