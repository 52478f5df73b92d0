package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/artifact"
	"github.com/modestprophet/gonzo-pit-strategy/config"
	"github.com/modestprophet/gonzo-pit-strategy/dao"
	"github.com/modestprophet/gonzo-pit-strategy/infrastructure/db"
	"github.com/modestprophet/gonzo-pit-strategy/router"
	"github.com/modestprophet/gonzo-pit-strategy/training"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// 启动时把卡在 RUNNING 超过这个时长的运行标记为 FAILED
const staleRunCutoff = 24 * time.Hour

// overrideFlag 可重复的 -set path=value，值按 yaml 标量解析以保留类型
type overrideFlag map[string]interface{}

func (o overrideFlag) String() string { return fmt.Sprintf("%v", map[string]interface{}(o)) }

func (o overrideFlag) Set(kv string) error {
	idx := strings.Index(kv, "=")
	if idx <= 0 {
		return fmt.Errorf("override %q is not in path=value form", kv)
	}
	var value interface{}
	if err := yaml.Unmarshal([]byte(kv[idx+1:]), &value); err != nil {
		return fmt.Errorf("override %q: %v", kv, err)
	}
	o[kv[:idx]] = value
	return nil
}

func main() {
	overrides := overrideFlag{}
	var (
		configPath     = flag.String("config", "", "application config file path")
		mode           = flag.String("mode", "serve", "serve | train | sweep")
		experimentPath = flag.String("experiment", "", "experiment config file (train mode)")
		sweepPath      = flag.String("sweep-file", "", "sweep config file (sweep mode)")
	)
	flag.Var(overrides, "set", "single-field override, e.g. -set learning_rate=0.01 (repeatable, train mode)")
	flag.Parse()

	// 默认使用 release，避免线上以 debug 模式启动
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Initialize configuration
	var err error
	if *configPath != "" {
		err = config.InitConfigFrom(*configPath)
	} else {
		err = config.InitConfig()
	}
	if err != nil {
		log.Fatalf("Init config failed: %v", err)
	}

	// 2. Initialize logger
	config.InitLogger()

	// 3. Initialize database
	if err := db.InitDB(); err != nil {
		log.Fatalf("Init database failed: %v", err)
	}

	// 4. Initialize redis (可选，配置为空时跳过)
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Init redis failed: %v", err)
	}
	defer config.CloseRedis()

	// 5. Reconcile runs orphaned by a previous crash
	if n, err := dao.NewTrainingRunDAO().MarkStaleRunning(context.Background(), time.Now().Add(-staleRunCutoff)); err != nil {
		log.Printf("Mark stale runs failed: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d stale running run(s) as failed", n)
	}

	switch *mode {
	case "serve":
		runServer()
	case "train":
		if *experimentPath == "" {
			log.Fatal("train mode requires -experiment")
		}
		runExperiment(*experimentPath, overrides)
	case "sweep":
		if *sweepPath == "" {
			log.Fatal("sweep mode requires -sweep-file")
		}
		runSweep(*sweepPath)
	default:
		log.Fatalf("Unknown mode: %s", *mode)
	}
}

func runServer() {
	r := router.SetupRouter()

	port := config.AppConfig.Server.Port
	if port == 0 {
		port = 8080
	}

	fmt.Printf("Server is running on port %d...\n", port)
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("Server run failed: %v", err)
	}
}

func newRunner() *training.Runner {
	store := artifact.NewStore(config.AppConfig.Artifacts.Root)
	mirror, err := artifact.NewMirror(config.AppConfig.Artifacts.Mirror)
	if err != nil {
		log.Fatalf("Init artifact mirror failed: %v", err)
	}
	store.Mirror = mirror
	return training.NewRunner(store)
}

func runExperiment(path string, overrides map[string]interface{}) {
	raw, err := training.LoadConfigFile(path)
	if err != nil {
		log.Fatalf("Load experiment config failed: %v", err)
	}
	if len(overrides) > 0 {
		raw = training.ApplyOverrides(raw, overrides)
	}
	cfg, err := training.Parse(raw)
	if err != nil {
		log.Fatalf("Invalid experiment config: %v", err)
	}

	result, err := newRunner().RunFromStore(context.Background(), cfg, config.AppConfig.Training.SourceTable)
	if err != nil {
		log.Fatalf("Training run failed: %v", err)
	}
	printResult(result)
}

func runSweep(path string) {
	sf, err := training.LoadSweepFile(path)
	if err != nil {
		log.Fatalf("Load sweep file failed: %v", err)
	}

	ctx := context.Background()
	table, err := dao.NewTrainingDataDAO().LoadTable(ctx, config.AppConfig.Training.SourceTable)
	if err != nil {
		log.Fatalf("Load training data failed: %v", err)
	}

	results, err := newRunner().RunSweep(ctx, sf.Base, sf.Axes, table)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	fmt.Printf("Sweep finished: %d run(s) completed\n", len(results))
	for _, result := range results {
		printResult(result)
	}
}

func printResult(result *training.RunResult) {
	fmt.Printf("Run %d completed: model %s (id=%d), epochs=%d, early_stop=%v\n",
		result.RunID, result.ModelVersion, result.ModelID, result.EpochsCompleted, result.StoppedEarly)
	for name, value := range result.FinalMetrics {
		fmt.Printf("  %s: %.6f\n", name, value)
	}
}
