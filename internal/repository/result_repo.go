package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ResultFilter narrows result listings.
type ResultFilter struct {
	UserID   *uint
	TestID   *uint
	Page     int
	PageSize int
}

// ResultStats aggregates stored results.
type ResultStats struct {
	Total             int64
	Passed            int64
	AveragePercentage float64
}

// ResultRepository persists results and the retake grants that gate them.
// Every write that touches both tables runs in one transaction.
type ResultRepository interface {
	Exists(ctx context.Context, userID, testID uint) (bool, error)
	HasGrant(ctx context.Context, userID, testID uint) (bool, error)
	TakenTests(ctx context.Context, userID uint) (map[uint]bool, error)
	GrantedTests(ctx context.Context, userID uint) (map[uint]bool, error)
	CreateConsumingGrant(ctx context.Context, result *models.Result) error
	GrantRetake(ctx context.Context, grant *models.RetakeGrant) (int64, error)
	ConsumeGrant(ctx context.Context, userID, testID uint) (bool, error)
	GetByID(ctx context.Context, id uint) (models.Result, error)
	List(ctx context.Context, filter ResultFilter) ([]models.Result, int64, error)
	Stats(ctx context.Context) (ResultStats, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository constructs the result repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) Exists(ctx context.Context, userID, testID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Result{}).
		Where("user_id = ? AND test_id = ?", userID, testID).
		Count(&count).Error
	return count > 0, err
}

func (r *resultRepository) HasGrant(ctx context.Context, userID, testID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RetakeGrant{}).
		Where("user_id = ? AND test_id = ?", userID, testID).
		Count(&count).Error
	return count > 0, err
}

func (r *resultRepository) TakenTests(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Result{}).Where("user_id = ?", userID).Pluck("test_id", &ids).Error; err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

func (r *resultRepository) GrantedTests(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.RetakeGrant{}).Where("user_id = ?", userID).Pluck("test_id", &ids).Error; err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

// CreateConsumingGrant stores the result and drops any grant for the pair.
// The unique index on (user_id, test_id) rejects a concurrent duplicate.
func (r *resultRepository) CreateConsumingGrant(ctx context.Context, result *models.Result) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND test_id = ?", result.UserID, result.TestID).Delete(&models.RetakeGrant{}).Error; err != nil {
			return err
		}
		return tx.Create(result).Error
	})
}

// GrantRetake deletes the stored results for the pair and records the grant.
// It returns the number of results removed.
func (r *resultRepository) GrantRetake(ctx context.Context, grant *models.RetakeGrant) (int64, error) {
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}

	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND test_id = ?", grant.UserID, grant.TestID).Delete(&models.Result{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "test_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted_by", "granted_at"}),
		}).Create(grant).Error
	})
	return removed, err
}

func (r *resultRepository) ConsumeGrant(ctx context.Context, userID, testID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND test_id = ?", userID, testID).Delete(&models.RetakeGrant{})
	return res.RowsAffected > 0, res.Error
}

func (r *resultRepository) GetByID(ctx context.Context, id uint) (models.Result, error) {
	var result models.Result
	err := r.db.WithContext(ctx).Preload("User").Preload("Test").First(&result, id).Error
	return result, err
}

func (r *resultRepository) List(ctx context.Context, filter ResultFilter) ([]models.Result, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Result{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.TestID != nil {
		query = query.Where("test_id = ?", *filter.TestID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []models.Result
	err := paginate(query, filter.Page, filter.PageSize).
		Preload("User").
		Preload("Test").
		Order("submitted_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

func (r *resultRepository) Stats(ctx context.Context) (ResultStats, error) {
	var row struct {
		Total   int64
		Passed  int64
		Average float64
	}
	err := r.db.WithContext(ctx).Model(&models.Result{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0) AS passed, COALESCE(AVG(percentage), 0) AS average").
		Scan(&row).Error
	if err != nil {
		return ResultStats{}, err
	}
	return ResultStats{Total: row.Total, Passed: row.Passed, AveragePercentage: row.Average}, nil
}

func toSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
