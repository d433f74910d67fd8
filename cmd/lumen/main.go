// Command lumen starts the judging core: the task queue, the record state
// machine, the judger gateway and contest scoring, behind one http server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/lumen-oj/lumen/bus"
	"github.com/lumen-oj/lumen/cmd/lumen/config"
	"github.com/lumen-oj/lumen/cmd/lumen/version"
	"github.com/lumen-oj/lumen/contest"
	"github.com/lumen-oj/lumen/judge"
	"github.com/lumen-oj/lumen/problem"
	"github.com/lumen-oj/lumen/rating"
	"github.com/lumen-oj/lumen/record"
	"github.com/lumen-oj/lumen/storage"
	"github.com/lumen-oj/lumen/taskqueue"
)

var logger *zap.Logger

func main() {
	conf := loadConf()
	if conf.Version {
		fmt.Println(version.Version)
		return
	}
	initLogger(conf)
	defer logger.Sync()
	if ce := logger.Check(zap.InfoLevel, "Config loaded"); ce != nil {
		ce.Write(zap.String("config", fmt.Sprintf("%+v", conf)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Connect(ctx, conf.MongoURI, conf.MongoDB, logger)
	if err != nil {
		log.Fatalln("storage connect failed ", err)
	}

	eventBus, err := newBus(conf)
	if err != nil {
		log.Fatalln("bus init failed ", err)
	}

	queue := taskqueue.NewMongoQueue(db.Collection(storage.CollTask))
	problems := problem.NewMongoSource(db.Collection(storage.CollProblem))
	records := record.NewService(
		record.NewMongoStore(db.Collection(storage.CollRecord)),
		queue, problems, eventBus, logger)
	contests := contest.NewModel(
		db.Collection(storage.CollContest),
		db.Collection(storage.CollContestStatus), queue, logger)
	ratings := rating.NewMongoStore(db.Collection(storage.CollRating))
	judgeSrv := judge.NewService(queue, records, logger)

	hook := judge.NewContestHook(eventBus, records, contests, logger)
	go hook.Run(ctx)
	logger.Info("Contest post-judge hook started", zap.String("bus", conf.BusBackend))

	servers := []initFunc{
		cleanUpStorage(db),
		initScheduleWorker(ctx, conf, queue, contests, ratings),
		initHTTPServer(conf, judgeSrv, contests),
		initMonitorHTTPServer(conf),
	}

	// Gracefully shutdown, with signal / HTTP server / Monitor HTTP server
	sig := make(chan os.Signal, 1+len(servers))

	stops := []stopFunc{}
	for _, s := range servers {
		start, stop := s()
		if start != nil {
			go func() {
				start()
				sig <- os.Interrupt
			}()
		}
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	// Graceful shutdown...
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Shutting Down...")
	cancel()

	sctx, scancel := context.WithTimeout(context.TODO(), time.Second*3)
	defer scancel()

	var eg errgroup.Group
	for _, s := range stops {
		s := s
		eg.Go(func() error {
			return s(sctx)
		})
	}

	go func() {
		logger.Info("Shutdown Finished", zap.Error(eg.Wait()))
		scancel()
	}()
	<-sctx.Done()
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	return &conf
}

type (
	stopFunc func(ctx context.Context) error
	initFunc func() (start func(), cleanUp stopFunc)
)

func newBus(conf *config.Config) (bus.Bus, error) {
	switch conf.BusBackend {
	case "channel":
		return bus.NewChannelBus(logger), nil
	case "redis":
		return bus.NewRedisBus(redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
		}), logger), nil
	case "amqp":
		return bus.NewAMQPBus(conf.AMQPURL, logger)
	default:
		return nil, fmt.Errorf("unknown bus backend: %s", conf.BusBackend)
	}
}

func cleanUpStorage(db *storage.Database) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return nil, func(ctx context.Context) error {
			err := db.Disconnect(ctx)
			logger.Info("Storage disconnected")
			return err
		}
	}
}

func initScheduleWorker(ctx context.Context, conf *config.Config, queue taskqueue.Queue, contests *contest.Model, ratings rating.Store) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		if !conf.EnableScheduler {
			return nil, nil
		}
		w := taskqueue.NewWorker(queue, conf.PollInterval, logger)
		w.AddHandler(contest.SubTypeRating, func(ctx context.Context, t *taskqueue.Task) error {
			var p contest.RatingTask
			if err := t.Bind(&p); err != nil {
				return err
			}
			return settleContestRating(ctx, contests, ratings, p.DomainID, p.ContestID)
		})
		w.Start(ctx)
		logger.Info("Schedule worker started", zap.Duration("pollInterval", conf.PollInterval))
		return nil, func(ctx context.Context) error {
			w.Stop()
			logger.Info("Schedule worker stopped")
			return nil
		}
	}
}

// settleContestRating applies the rating calculator to the final ranking
// of a finished rated contest
func settleContestRating(ctx context.Context, contests *contest.Model, ratings rating.Store, domainID string, tid primitive.ObjectID) error {
	c, err := contests.Get(ctx, domainID, tid)
	if err != nil {
		return err
	}
	if !c.Rated {
		logger.Info("skipping rating for unrated contest", zap.String("tid", tid.Hex()))
		return nil
	}
	if !c.IsDone(time.Now()) {
		// the end time moved after this task was scheduled
		logger.Info("contest still running, rescheduling rating settlement",
			zap.String("tid", tid.Hex()), zap.Time("endAt", c.EndAt))
		return contests.ScheduleSettlement(ctx, c)
	}
	ranked, err := contests.Ranked(ctx, c)
	if err != nil {
		return err
	}
	users := make([]rating.RankedUser, 0, len(ranked))
	for _, r := range ranked {
		users = append(users, rating.RankedUser{UID: r.Status.UID, Rank: r.Rank})
	}
	if err := rating.ApplyContest(ctx, ratings, domainID, users); err != nil {
		return err
	}
	logger.Info("contest ratings settled",
		zap.String("tid", tid.Hex()), zap.Int("contestants", len(users)))
	return nil
}

func initHTTPServer(conf *config.Config, judgeSrv *judge.Service, contests *contest.Model) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		r := initHTTPMux(conf, judgeSrv, contests)
		srv := http.Server{
			Addr:    conf.HTTPAddr,
			Handler: r,
		}
		return func() {
				logger.Info("Starting http server", zap.String("addr", conf.HTTPAddr))
				if err := srv.ListenAndServe(); errors.Is(err, http.ErrServerClosed) {
					logger.Info("Http server stopped", zap.Error(err))
				} else {
					logger.Error("Http server stopped", zap.Error(err))
				}
			}, func(ctx context.Context) error {
				logger.Info("Http server shutting down")
				return srv.Shutdown(ctx)
			}
	}
}

func initMonitorHTTPServer(conf *config.Config) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		mr := initMonitorHTTPMux(conf)
		if mr == nil {
			return nil, nil
		}
		msrv := http.Server{
			Addr:    conf.MonitorAddr,
			Handler: mr,
		}
		return func() {
				logger.Info("Starting monitoring http server", zap.String("addr", conf.MonitorAddr))
				logger.Info("Monitoring http server stopped", zap.Error(msrv.ListenAndServe()))
			}, func(ctx context.Context) error {
				logger.Info("Monitoring http server shutdown")
				return msrv.Shutdown(ctx)
			}
	}
}

func initHTTPMux(conf *config.Config, judgeSrv *judge.Service, contests *contest.Model) http.Handler {
	var r *gin.Engine
	if conf.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r = gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	// Metrics Handle
	if conf.EnableMetrics {
		initGinMetrics(r)
	}

	// Version handle
	r.GET("/version", handleVersion)

	// Add auth token
	if conf.AuthToken != "" {
		r.Use(tokenAuth(conf.AuthToken))
		logger.Info("Attach token auth")
	}

	// Judger handles
	restHandle := judge.NewRestHandle(judgeSrv, logger)
	restHandle.Register(r)
	wsHandle := judge.NewWSHandle(judgeSrv, logger)
	wsHandle.Register(r)

	// Scoreboard handle
	r.GET("/contest/:tid/scoreboard", handleScoreboard(contests))

	return r
}

func handleScoreboard(contests *contest.Model) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tid, err := primitive.ObjectIDFromHex(ctx.Param("tid"))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
			return
		}
		domainID := ctx.DefaultQuery("domainId", "system")
		isExport := ctx.Query("export") != ""
		c, rows, err := contests.Scoreboard(ctx.Request.Context(), domainID, tid, isExport, nil, nil, nil)
		switch {
		case errors.Is(err, contest.ErrContestNotFound):
			ctx.AbortWithStatusJSON(http.StatusNotFound, err.Error())
			return
		case errors.Is(err, contest.ErrScoreboardHidden):
			ctx.AbortWithStatusJSON(http.StatusForbidden, err.Error())
			return
		case err != nil:
			ctx.Error(err)
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"title":  c.Title,
			"rule":   c.Rule,
			"status": c.StatusText(time.Now()),
			"rows":   rows,
		})
	}
}

func initMonitorHTTPMux(conf *config.Config) http.Handler {
	if !conf.EnableMetrics && !conf.EnableDebug {
		return nil
	}
	mux := http.NewServeMux()
	if conf.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if conf.EnableDebug {
		initDebugRoute(mux)
	}
	return mux
}

func initDebugRoute(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func initGinMetrics(r *gin.Engine) {
	p := ginprometheus.NewPrometheus("gin")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	r.Use(p.HandlerFunc())
}

func handleVersion(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"buildVersion": version.Version,
	})
}

func tokenAuth(token string) gin.HandlerFunc {
	const bearer = "Bearer "
	return func(c *gin.Context) {
		reqToken := c.GetHeader("Authorization")
		if strings.HasPrefix(reqToken, bearer) && reqToken[len(bearer):] == token {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Level.SetLevel(zap.InfoLevel)
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}
