package handlers

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"timed-voting-backend/database"
	"timed-voting-backend/models"
	"timed-voting-backend/mq"
	"timed-voting-backend/session"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestEnvironment wires the Gin router, an in-memory SQLite database, a
// fresh session registry and an in-memory tally relay, mirroring the wiring
// in main.
func SetupTestEnvironment(t *testing.T) (*gin.Engine, *session.Registry) {
	t.Helper()
	testing.Init()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	// 内存SQLite串行化访问，避免并发事务互相锁表
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to access underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	database.DB = db
	err = database.DB.AutoMigrate(&models.User{}, &models.Poll{}, &models.PollOption{}, &models.Vote{})
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	// 未调用Initialize的适配器保持内存直投模式，测试里投递是同步且确定的
	registry := session.NewRegistry()
	relay := mq.NewAdapter()
	_ = relay.RegisterHandler(func(evt mq.TallyEvent) {
		registry.Publish(evt.PollID, session.TallySnapshot{
			Options:   evt.Options,
			Timestamp: evt.Timestamp,
		})
	})

	InitHandlers(registry, relay)

	// 路由与main.go保持一致
	router := gin.New()
	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)
		api.GET("/status", SystemStatus)
		api.POST("/users/:username", CreateUser)

		polls := api.Group("/polls")
		{
			polls.POST("", CreatePoll)
			polls.GET("", GetPolls)
			polls.GET("/:id", GetPoll)
			polls.POST("/:id/vote", SubmitVote)
			polls.GET("/:id/ws", HandleWebSocket)
			polls.GET("/:id/live", HandleSSE)
		}
	}

	return router, registry
}

// doJSON 发送JSON请求并返回响应记录器
func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// registerUser 注册测试用户并断言成功
func registerUser(t *testing.T, router *gin.Engine, username string) {
	t.Helper()
	w := doJSON(router, "POST", "/api/users/"+username, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("failed to register user %s: status %d, body %s", username, w.Code, w.Body.String())
	}
}

// createPoll 创建测试投票并返回对外句柄
func createPoll(t *testing.T, router *gin.Engine, body gin.H) string {
	t.Helper()
	w := doJSON(router, "POST", "/api/polls", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("failed to create poll: status %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		PollID string `json:"poll_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	return resp.PollID
}

// optionIDsFor 读取投票的选项ID，按返回顺序
func optionIDsFor(t *testing.T, router *gin.Engine, externalID string) []uint {
	t.Helper()
	w := doJSON(router, "GET", "/api/polls/"+externalID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to fetch poll %s: status %d, body %s", externalID, w.Code, w.Body.String())
	}

	var resp struct {
		Options []models.OptionTally `json:"options"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode poll response: %v", err)
	}

	ids := make([]uint, len(resp.Options))
	for i, opt := range resp.Options {
		ids[i] = opt.ID
	}
	return ids
}
