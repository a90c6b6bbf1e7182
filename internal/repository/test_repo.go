package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// TestFilter narrows test listings.
type TestFilter struct {
	GroupCode string
	ActiveAt  *time.Time
	Page      int
	PageSize  int
}

// TestRepository persists test definitions with their questions and groups.
type TestRepository interface {
	Create(ctx context.Context, test *models.Test) error
	GetByID(ctx context.Context, id uint) (models.Test, error)
	List(ctx context.Context, filter TestFilter) ([]models.Test, int64, error)
	Replace(ctx context.Context, test *models.Test) error
	SetGroups(ctx context.Context, testID uint, groupCodes []string) error
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

type testRepository struct {
	db *gorm.DB
}

// NewTestRepository constructs the test repository.
func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *testRepository) Create(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *testRepository) GetByID(ctx context.Context, id uint) (models.Test, error) {
	var test models.Test
	err := r.db.WithContext(ctx).
		Preload("Questions", orderedQuestions).
		Preload("Groups").
		First(&test, id).Error
	return test, err
}

func (r *testRepository) List(ctx context.Context, filter TestFilter) ([]models.Test, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Test{})

	if filter.GroupCode != "" {
		query = query.Where("id IN (?)", r.db.Model(&models.TestGroup{}).Select("test_id").Where("group_code = ?", filter.GroupCode))
	}
	if filter.ActiveAt != nil {
		query = query.Where("start_time <= ? AND end_time >= ?", *filter.ActiveAt, *filter.ActiveAt)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tests []models.Test
	err := paginate(query, filter.Page, filter.PageSize).
		Preload("Questions", orderedQuestions).
		Preload("Groups").
		Order("created_at DESC").
		Find(&tests).Error
	if err != nil {
		return nil, 0, err
	}

	return tests, total, nil
}

// Replace overwrites the test row and swaps its questions and groups.
func (r *testRepository) Replace(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Test
		if err := tx.Select("id", "created_at", "created_by").First(&existing, test.ID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"title":       test.Title,
			"course_name": test.CourseName,
			"description": test.Description,
			"total_score": test.TotalScore,
			"time_limit":  test.TimeLimit,
			"start_time":  test.StartTime,
			"end_time":    test.EndTime,
		}
		if err := tx.Model(&models.Test{}).Where("id = ?", test.ID).Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Where("test_id = ?", test.ID).Delete(&models.TestQuestion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("test_id = ?", test.ID).Delete(&models.TestGroup{}).Error; err != nil {
			return err
		}

		for i := range test.Questions {
			test.Questions[i].ID = 0
			test.Questions[i].TestID = test.ID
		}
		if len(test.Questions) > 0 {
			if err := tx.Create(&test.Questions).Error; err != nil {
				return err
			}
		}
		for i := range test.Groups {
			test.Groups[i].ID = 0
			test.Groups[i].TestID = test.ID
		}
		if len(test.Groups) > 0 {
			if err := tx.Create(&test.Groups).Error; err != nil {
				return err
			}
		}

		test.CreatedAt = existing.CreatedAt
		test.CreatedBy = existing.CreatedBy
		return nil
	})
}

func (r *testRepository) SetGroups(ctx context.Context, testID uint, groupCodes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var test models.Test
		if err := tx.Select("id").First(&test, testID).Error; err != nil {
			return err
		}
		if err := tx.Where("test_id = ?", testID).Delete(&models.TestGroup{}).Error; err != nil {
			return err
		}
		if len(groupCodes) == 0 {
			return nil
		}
		groups := make([]models.TestGroup, 0, len(groupCodes))
		for _, code := range groupCodes {
			groups = append(groups, models.TestGroup{TestID: testID, GroupCode: code})
		}
		return tx.Create(&groups).Error
	})
}

// Delete removes the test with everything that references it.
func (r *testRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var test models.Test
		if err := tx.Select("id").First(&test, id).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{&models.Result{}, &models.RetakeGrant{}, &models.TestQuestion{}, &models.TestGroup{}} {
			if err := tx.Where("test_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Test{}, id).Error
	})
}

func (r *testRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Test{}).Count(&total).Error
	return total, err
}
