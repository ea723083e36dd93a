package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CascadeService deletes rows together with everything that depends on them.
type CascadeService struct {
	db    *gorm.DB
	cache *ProgressCache
}

func NewCascadeService(db *gorm.DB, cache *ProgressCache) *CascadeService {
	return &CascadeService{db: db, cache: cache}
}

// CascadePlan lists what a cascade delete touches.
type CascadePlan struct {
	Delete map[string][]uint `json:"delete"`
	Null   []NullUpdate      `json:"null,omitempty"`
}

// NullUpdate clears a nullable reference to a deleted row.
type NullUpdate struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	IDs    []uint `json:"ids"`
}

// CascadeResult reports the rows affected by a cascade delete.
type CascadeResult struct {
	Deleted  map[string]int64 `json:"deleted"`
	Nulled   map[string]int64 `json:"nulled,omitempty"`
	Reverted int64            `json:"reverted"`
}

func uintsToValues(ids []uint) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// Plan walks the foreign key graph from table/ids and returns every row that
// must go. Non-nullable references pull their rows into the delete set;
// nullable references are cleared instead.
func (s *CascadeService) Plan(ctx context.Context, table string, ids []uint) (*CascadePlan, error) {
	return s.plan(s.db.WithContext(ctx), table, ids)
}

func (s *CascadeService) plan(tx *gorm.DB, table string, ids []uint) (*CascadePlan, error) {
	order, err := models.DeletionOrder(tx)
	if err != nil {
		return nil, err
	}
	known := false
	for _, t := range order {
		if t == table {
			known = true
			break
		}
	}
	if !known {
		return nil, invalid("unknown table %q", table)
	}
	if len(ids) == 0 {
		return nil, invalid("no ids given")
	}

	keys, err := models.ForeignKeys(tx)
	if err != nil {
		return nil, err
	}
	children := make(map[string][]models.ForeignKey)
	for _, k := range keys {
		children[k.ParentTable] = append(children[k.ParentTable], k)
	}

	pending := map[string]map[uint]bool{table: {}}
	for _, id := range ids {
		pending[table][id] = true
	}
	type work struct {
		table string
		ids   []uint
	}
	queue := []work{{table, ids}}
	var nulls []NullUpdate

	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		for _, k := range children[w.table] {
			var childIDs []uint
			if err := tx.Table(k.Table).
				Where(clause.IN{Column: clause.Column{Name: k.Column}, Values: uintsToValues(w.ids)}).
				Pluck("id", &childIDs).Error; err != nil {
				return nil, fmt.Errorf("scan %s.%s: %w", k.Table, k.Column, err)
			}
			if len(childIDs) == 0 {
				continue
			}
			if k.Nullable {
				nulls = append(nulls, NullUpdate{Table: k.Table, Column: k.Column, IDs: w.ids})
				continue
			}

			set, ok := pending[k.Table]
			if !ok {
				set = map[uint]bool{}
				pending[k.Table] = set
			}
			var fresh []uint
			for _, id := range childIDs {
				if !set[id] {
					set[id] = true
					fresh = append(fresh, id)
				}
			}
			if len(fresh) > 0 {
				queue = append(queue, work{k.Table, fresh})
			}
		}
	}

	plan := &CascadePlan{Delete: make(map[string][]uint, len(pending)), Null: nulls}
	for t, set := range pending {
		list := make([]uint, 0, len(set))
		for id := range set {
			list = append(list, id)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		plan.Delete[t] = list
	}
	return plan, nil
}

// Cascade deletes ids from table and all dependent rows in one transaction.
// Ground truth overridden by any admin role being removed is reverted first.
func (s *CascadeService) Cascade(ctx context.Context, table string, ids []uint) (*CascadeResult, error) {
	result := &CascadeResult{Deleted: map[string]int64{}, Nulled: map[string]int64{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.plan(tx, table, ids)
		if err != nil {
			return err
		}

		if roleIDs := plan.Delete["project_user_roles"]; len(roleIDs) > 0 {
			var admins []models.ProjectUserRole
			if err := tx.Where("id IN ? AND role = ?", roleIDs, models.RoleAdmin).Find(&admins).Error; err != nil {
				return err
			}
			for _, r := range admins {
				n, err := RevertAdminModifications(tx, r.ProjectID, r.UserID)
				if err != nil {
					return err
				}
				result.Reverted += n
			}
		}

		if userIDs := plan.Delete["users"]; len(userIDs) > 0 {
			type override struct {
				ProjectID         uint
				ModifiedByAdminID uint
			}
			var overrides []override
			if err := tx.Model(&models.ReviewerGroundTruth{}).
				Distinct("project_id", "modified_by_admin_id").
				Where("modified_by_admin_id IN ?", userIDs).
				Scan(&overrides).Error; err != nil {
				return err
			}
			for _, o := range overrides {
				n, err := RevertAdminModifications(tx, o.ProjectID, o.ModifiedByAdminID)
				if err != nil {
					return err
				}
				result.Reverted += n
			}
		}

		for _, n := range plan.Null {
			res := tx.Table(n.Table).
				Where(clause.IN{Column: clause.Column{Name: n.Column}, Values: uintsToValues(n.IDs)}).
				Update(n.Column, nil)
			if res.Error != nil {
				return fmt.Errorf("clear %s.%s: %w", n.Table, n.Column, res.Error)
			}
			result.Nulled[n.Table+"."+n.Column] += res.RowsAffected
		}

		order, err := models.DeletionOrder(tx)
		if err != nil {
			return err
		}
		for _, t := range order {
			rowIDs := plan.Delete[t]
			if len(rowIDs) == 0 {
				continue
			}
			res := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id IN ?", tx.Statement.Quote(t)), rowIDs)
			if res.Error != nil {
				return fmt.Errorf("delete from %s: %w", t, res.Error)
			}
			result.Deleted[t] = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateAll()
	logger.Info().Str("table", table).Interface("deleted", result.Deleted).Int64("reverted", result.Reverted).
		Msg("[Cascade] Rows deleted")
	return result, nil
}
