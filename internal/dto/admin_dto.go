package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta derives page counts from a total.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	if page < 1 {
		page = 1
	}
	meta := PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: 1}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// AdminStudentListRequest defines filters for listing students.
type AdminStudentListRequest struct {
	Page      int
	PageSize  int
	Search    string
	GroupCode string
}

// StudentResponse serializes a student profile.
type StudentResponse struct {
	ID               uint      `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	FullName         string    `json:"full_name"`
	Phone            string    `json:"phone"`
	GroupCode        string    `json:"group_code"`
	TelegramUsername string    `json:"telegram_username,omitempty"`
	RetakeTestIDs    []uint    `json:"retake_test_ids"`
	CreatedAt        time.Time `json:"created_at"`
}

// AdminStudentListResponse wraps a paginated student response.
type AdminStudentListResponse struct {
	Items      []StudentResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
}

// NewStudentResponse converts a user model into a DTO.
func NewStudentResponse(user models.User) StudentResponse {
	retakes := make([]uint, 0, len(user.RetakeGrants))
	for _, grant := range user.RetakeGrants {
		retakes = append(retakes, grant.TestID)
	}
	return StudentResponse{
		ID:               user.ID,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		FullName:         user.FullName(),
		Phone:            user.Phone,
		GroupCode:        user.GroupCode,
		TelegramUsername: user.TelegramUsername,
		RetakeTestIDs:    retakes,
		CreatedAt:        user.CreatedAt,
	}
}

// AllowRetakeRequest grants a student another attempt at a test.
type AllowRetakeRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
	TestID    uint `json:"test_id" validate:"required"`
}

// AllowRetakeResponse reports what a retake grant changed.
type AllowRetakeResponse struct {
	StudentID      uint      `json:"student_id"`
	TestID         uint      `json:"test_id"`
	ResultsRemoved int64     `json:"results_removed"`
	GrantedAt      time.Time `json:"granted_at"`
}

// AdminActivityListRequest defines filters for retrieving activity logs.
type AdminActivityListRequest struct {
	Page     int
	PageSize int
	ActorID  uint
	TestID   uint
	Action   string
}

// AdminActivityResponse serializes activity log entries.
type AdminActivityResponse struct {
	ID        uint                   `json:"id"`
	ActorID   uint                   `json:"actor_id"`
	ActorName string                 `json:"actor_name"`
	Action    string                 `json:"action"`
	TestID    *uint                  `json:"test_id,omitempty"`
	TestTitle string                 `json:"test_title,omitempty"`
	Score     *int                   `json:"score,omitempty"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// AdminActivityListResponse wraps paginated activity logs.
type AdminActivityListResponse struct {
	Items      []AdminActivityResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}

func metadataFromJSON(data datatypes.JSONMap) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(data)
}

// NewAdminActivityResponse converts a model into an activity DTO.
func NewAdminActivityResponse(entry models.ActivityLog) AdminActivityResponse {
	return AdminActivityResponse{
		ID:        entry.ID,
		ActorID:   entry.ActorID,
		ActorName: entry.ActorName,
		Action:    entry.Action,
		TestID:    entry.TestID,
		TestTitle: entry.TestTitle,
		Score:     entry.Score,
		Metadata:  metadataFromJSON(entry.Metadata),
		CreatedAt: entry.CreatedAt,
	}
}

// DashboardResponse summarises the platform for administrators.
type DashboardResponse struct {
	TotalStudents     int64                   `json:"total_students"`
	TotalTests        int64                   `json:"total_tests"`
	TotalResults      int64                   `json:"total_results"`
	PassedResults     int64                   `json:"passed_results"`
	AveragePercentage float64                 `json:"average_percentage"`
	PassRate          float64                 `json:"pass_rate"`
	OnlineStudents    int                     `json:"online_students"`
	TestingStudents   int                     `json:"testing_students"`
	RecentActivity    []AdminActivityResponse `json:"recent_activity"`
	GeneratedAt       time.Time               `json:"generated_at"`
	CacheHit          bool                    `json:"cache_hit"`
}
