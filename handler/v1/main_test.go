package v1_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/config"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"
	"github.com/modestprophet/gonzo-pit-strategy/router"

	"github.com/gin-gonic/gin"
)

var testRouter *gin.Engine

func TestMain(m *testing.M) {
	// 内存库跑测试，不依赖外部 mysql/redis
	config.AppConfig = &config.Config{
		DB:  config.DBConfig{Driver: "sqlite", Path: "file::memory:?cache=shared"},
		Log: config.LogConfig{Path: filepath.Join(os.TempDir(), "gonzo_handler_test.log")},
	}

	if err := db.InitDB(); err != nil {
		panic(err)
	}

	// 设置 Gin 为测试模式
	gin.SetMode(gin.TestMode)
	testRouter = router.SetupRouter()

	// 运行测试
	code := m.Run()
	os.Exit(code)
}

// performRequest 执行请求的辅助函数
func performRequest(r http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
