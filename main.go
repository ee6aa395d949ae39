package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mammo-overlay/api"
	"mammo-overlay/constants"
	"mammo-overlay/metadata"
	"mammo-overlay/overlay"
	"mammo-overlay/pipeline"
	"mammo-overlay/report"
	"mammo-overlay/study"

	"github.com/bsm/redislock"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger() *zap.Logger {
	env := viper.GetString("workspace.env")
	var logger *zap.Logger
	switch env {
	case "DEVELOPMENT":
		logger, _ = zap.NewDevelopment()
	default:
		logger, _ = zap.NewProduction()
	}
	return logger
}

func initConfigs(env string) {
	viper.AddConfigPath("conf")
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "__")
	viper.SetEnvKeyReplacer(replacer)

	viper.SetDefault("input.source", constants.SourceDir)
	viper.SetDefault("input.subject_column", constants.DefaultSubjectColumn)
	viper.SetDefault("input.series_column", constants.DefaultSeriesColumn)
	viper.SetDefault("matching.tie_break", constants.TieBreakFirstMatch)
	viper.SetDefault("render.color", constants.DefaultColor)
	viper.SetDefault("render.line_width", constants.DefaultLineWidth)
	viper.SetDefault("render.point_radius", constants.DefaultPointRadius)
	viper.SetDefault("orthanc.timeout", "30s")
	viper.SetDefault("output.sink", constants.SinkFile)
	viper.SetDefault("redis.lock_ttl", "5m")
	viper.SetDefault("webserver.port", "8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}
}

func getMapEnvVars() *map[string]string {
	ret := make(map[string]string)
	envsOS := os.Environ()
	for _, envOS := range envsOS {
		items := strings.SplitN(envOS, "=", 2)
		if len(items) > 1 {
			ret[items[0]] = items[1]
		}
	}
	return &ret
}

func style() overlay.Style {
	return overlay.Style{
		Color:       viper.GetString("render.color"),
		LineWidth:   viper.GetFloat64("render.line_width"),
		PointRadius: viper.GetFloat64("render.point_radius"),
	}
}

func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Manifest:      viper.GetString("input.manifest"),
		SubjectColumn: viper.GetString("input.subject_column"),
		SeriesColumn:  viper.GetString("input.series_column"),
		AnnotationDir: viper.GetString("input.annotation_dir"),
		TieBreak:      viper.GetString("matching.tie_break"),
		Style:         style(),
		RenderInline:  viper.GetBool("render.inline"),
		Workers:       viper.GetInt("pipeline.workers"),
	}
}

func newSource(logger *zap.Logger) study.Source {
	switch viper.GetString("input.source") {
	case constants.SourceOrthanc:
		return study.NewOrthancSource(viper.GetString("orthanc.uri"), viper.GetString("orthanc.cache_dir"),
			viper.GetDuration("orthanc.timeout"), logger)
	default:
		return study.NewDirSource(viper.GetString("input.dicom_root"))
	}
}

func newSink(logger *zap.Logger) overlay.Sink {
	if viper.GetString("output.sink") != constants.SinkMinIO {
		return overlay.NewFileSink(viper.GetString("output.dir"))
	}

	minioClient, err := minio.New(
		viper.GetString("minio.uri"),
		&minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_key_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.secure"),
		})
	if err != nil {
		logger.Fatal("Cannot connect to MinIO", zap.Error(err))
	}
	return overlay.NewMinIOSink(minioClient, viper.GetString("minio.bucket_name"), logger)
}

// newStore also returns the Elasticsearch store as archive when one is
// configured.
func newStore(logger *zap.Logger) (report.Store, api.Archive) {
	var archive api.Archive
	stores := make(report.MultiStore, 0)
	if path := viper.GetString("output.report"); path != "" {
		stores = append(stores, report.NewJSONFileStore(path))
	}

	prefix := viper.GetString("elasticsearch.report_index_prefix")
	var esAddresses []string
	if esSingleNode := viper.GetString("elasticsearch.uri"); esSingleNode != "" {
		esAddresses = []string{esSingleNode}
	} else {
		esAddresses = viper.GetStringSlice("elasticsearch.uris")
	}
	if prefix != "" && len(esAddresses) > 0 {
		es, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: esAddresses,
		})
		if err == nil {
			_, err = es.Info()
		}
		if err != nil {
			logger.Fatal("Cannot connect to ES", zap.Strings("addresses", esAddresses), zap.Error(err))
		}
		esStore := report.NewESStore(es, prefix, logger)
		stores = append(stores, esStore)
		archive = esStore
	}
	return stores, archive
}

func newLocker() (pipeline.Locker, func()) {
	uri := viper.GetString("redis.uri")
	if uri == "" {
		return nil, func() {}
	}
	clientRedis := redis.NewClient(&redis.Options{
		Network:    "tcp",
		Addr:       uri,
		MaxRetries: 3,
	})
	lockerRedis := redislock.New(clientRedis)
	locker := pipeline.NewRedisLocker(lockerRedis, "mammo-overlay:", viper.GetDuration("redis.lock_ttl"))
	return locker, func() { clientRedis.Close() }
}

func main() {
	envVars := getMapEnvVars()
	env := "development"
	if value, found := (*envVars)[constants.ENV]; found {
		env = value
	}
	mode := constants.ModeBatch
	if value, found := (*envVars)[constants.MODE]; found {
		mode = value
	}
	initConfigs(env)

	logger := newLogger()
	defer logger.Sync()
	logger.Info("starting", zap.String("env", env), zap.String("mode", mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := metadata.NewExtractor(logger)

	if mode == constants.ModeSingle {
		_, err := pipeline.OverlayOne(ctx, extractor,
			viper.GetString("single.dicom"), viper.GetString("single.annotation"), viper.GetString("single.output"),
			style(), logger)
		if err != nil {
			logger.Fatal("overlay failed", zap.Error(err))
		}
		return
	}

	locker, closeLocker := newLocker()
	defer closeLocker()

	var lines report.LineSink
	if path := viper.GetString("output.diagnostics_log"); path != "" {
		lines = report.NewJSONLog(path)
	}

	store, archive := newStore(logger)
	runner, err := pipeline.NewRunner(pipelineConfig(), newSource(logger), extractor, newSink(logger),
		store, lines, locker, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if mode == constants.ModeServer {
		route := api.NewEngine()
		runAPI := api.NewRunAPI(runner, archive, logger)
		runAPI.InitRoute(route, "runs")
		if err := route.Run("0.0.0.0:" + viper.GetString("webserver.port")); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
		return
	}

	rep, err := runner.Run(ctx, "")
	if err != nil {
		logger.Fatal("run failed", zap.String("run", rep.RunID), zap.Error(err))
	}
	logger.Info("run done",
		zap.String("run", rep.RunID),
		zap.Int("outputs", len(rep.Outputs)),
		zap.Any("counts", rep.Counts))
}
