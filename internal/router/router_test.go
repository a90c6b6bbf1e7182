package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/router"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
	"github.com/noah-isme/gema-exam-api/internal/service"
)

type examApp struct {
	app     *fiber.App
	db      *gorm.DB
	student models.User
	admin   models.User
}

func setupExamApp(t *testing.T) examApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	student := models.User{FirstName: "Siti", LastName: "Aminah", Phone: "0811", GroupCode: "A1", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)
	admin := models.User{FirstName: "Bu", LastName: "Guru", Phone: "0812", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	relay := realtime.NewRelay(64, logger)
	registry := realtime.NewRegistry(relay, logger)
	bridge := realtime.NewBridge(relay, nil, nil, "", "node-test", logger)
	t.Cleanup(func() {
		registry.Close()
		relay.Close()
	})

	scorer, err := scoring.NewScorer(scoring.DefaultPolicy())
	require.NoError(t, err)

	testRepo := repository.NewTestRepository(db)
	userRepo := repository.NewUserRepository(db)
	resultRepo := repository.NewResultRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	eligibilityService := service.NewEligibilityService(resultRepo, userRepo, testRepo, nil, validate, activityService, bridge, logger)
	testService := service.NewTestService(testRepo, userRepo, resultRepo, validate, service.TestDefaults{}, activityService, bridge, logger)
	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		Tests:       testRepo,
		Users:       userRepo,
		Results:     resultRepo,
		Eligibility: eligibilityService,
		Scorer:      scorer,
		Presence:    registry,
		Activity:    activityService,
		Broadcaster: bridge,
		Validator:   validate,
	}, service.SubmissionConfig{}, logger)
	resultService := service.NewResultService(resultRepo, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "Exam Test", AppEnv: "test", JWTSecret: "secret"}, router.Dependencies{
		StudentTestHandler:   handler.NewStudentTestHandler(testService, submissionService, eligibilityService, logger),
		ResultHandler:        handler.NewResultHandler(resultService, logger),
		AdminTestHandler:     handler.NewAdminTestHandler(testService, service.NewGeneratorService(nil, validate, service.GeneratorConfig{}, logger), 0, logger),
		AdminStudentHandler:  handler.NewAdminStudentHandler(service.NewAdminStudentService(userRepo, resultService, activityService, bridge, logger), eligibilityService, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activityService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if strings.HasPrefix(c.Path(), "/api/v1/admin") {
				c.Locals("user_id", admin.ID)
				c.Locals("user_role", "admin")
			} else {
				c.Locals("user_id", student.ID)
				c.Locals("user_role", "student")
			}
			return c.Next()
		},
		ExposeMetrics: true,
	})

	return examApp{app: app, db: db, student: student, admin: admin}
}

func decode[T any](t *testing.T, resp *http.Response, target *T) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}

func sendJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestExamEndToEndFlow(t *testing.T) {
	env := setupExamApp(t)
	app := env.app

	// Step 1: admin creates a test for group A1
	createResp := sendJSON(t, app, http.MethodPost, "/api/v1/admin/tests", map[string]interface{}{
		"title":       "Ulangan Harian",
		"group_codes": []string{"a1"},
		"questions": []map[string]interface{}{
			{"text": "Q1", "options": []string{"A", "B", "C", "D"}, "correct_answer": "B"},
			{"text": "Q2", "options": []string{"A", "B", "C", "D"}, "correct_answer": "C"},
		},
	})
	require.Equal(t, fiber.StatusCreated, createResp.StatusCode)

	var created struct {
		Success bool             `json:"success"`
		Data    dto.TestResponse `json:"data"`
	}
	decode(t, createResp, &created)
	require.True(t, created.Success)
	require.Equal(t, []string{"A1"}, created.Data.GroupCodes)
	testPath := "/api/v1/tests/" + strconv.Itoa(int(created.Data.ID))

	// Step 2: student sees it untaken
	listResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, listResp.StatusCode)
	var listed struct {
		Data []dto.StudentTestResponse `json:"data"`
	}
	decode(t, listResp, &listed)
	require.Len(t, listed.Data, 1)
	require.False(t, listed.Data[0].IsTaken)

	// Step 3: student submits with one correct answer
	submitResp := sendJSON(t, app, http.MethodPost, testPath+"/submit", map[string]interface{}{
		"answers":    []interface{}{"b", nil},
		"time_taken": 90,
	})
	require.Equal(t, fiber.StatusCreated, submitResp.StatusCode)
	var submitted struct {
		Data dto.SubmitTestResponse `json:"data"`
	}
	decode(t, submitResp, &submitted)
	require.Equal(t, 50, submitted.Data.Percentage)
	require.True(t, submitted.Data.Passed)
	require.Equal(t, 1, submitted.Data.CorrectCount)

	// Step 4: a second attempt is refused
	again := sendJSON(t, app, http.MethodPost, testPath+"/submit", map[string]interface{}{"answers": []string{"B", "C"}})
	require.Equal(t, fiber.StatusConflict, again.StatusCode)

	// Step 5: admin allows a retake and the student improves
	grant := sendJSON(t, app, http.MethodPost, "/api/v1/admin/students/allow-retake", map[string]interface{}{
		"student_id": env.student.ID,
		"test_id":    created.Data.ID,
	})
	require.Equal(t, fiber.StatusOK, grant.StatusCode)

	retake := sendJSON(t, app, http.MethodPost, testPath+"/submit", map[string]interface{}{"answers": []string{"B", "C"}})
	require.Equal(t, fiber.StatusCreated, retake.StatusCode)
	decode(t, retake, &submitted)
	require.Equal(t, 100, submitted.Data.Percentage)

	// Step 6: student reads the stored result without correct answers
	resultResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/results/"+strconv.Itoa(int(submitted.Data.ResultID)), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resultResp.StatusCode)
	var result struct {
		Data dto.ResultResponse `json:"data"`
	}
	decode(t, resultResp, &result)
	require.Len(t, result.Data.Outcomes, 2)
	require.Empty(t, result.Data.Outcomes[0].Correct)

	// Step 7: the activity log recorded the flow
	activityResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/activity?test_id="+strconv.Itoa(int(created.Data.ID)), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, activityResp.StatusCode)
	var activities struct {
		Data []dto.AdminActivityResponse `json:"data"`
	}
	decode(t, activityResp, &activities)
	require.GreaterOrEqual(t, len(activities.Data), 3)
}

func TestStudentCannotReachAdminRoutes(t *testing.T) {
	env := setupExamApp(t)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Exam Test"}, router.Dependencies{
		AdminActivityHandler: handler.NewAdminActivityHandler(service.NewActivityService(repository.NewActivityLogRepository(env.db), zerolog.Nop()), zerolog.Nop()),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", env.student.ID)
			c.Locals("user_role", "student")
			return c.Next()
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/activity", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupExamApp(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Exam Test", resp.Header.Get("X-Application"))

	var health struct {
		Success bool                   `json:"success"`
		Data    handler.HealthResponse `json:"data"`
	}
	decode(t, resp, &health)
	require.True(t, health.Success)
	require.Equal(t, "ok", health.Data.Status)
	require.Equal(t, "test", health.Data.Environment)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
