package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	v1 "go-mensajeria/cmd/api/router/v1"
	"go-mensajeria/internal/config"
	blobAdapter "go-mensajeria/internal/infrastructure/blob/adapter"
	cacheAdapter "go-mensajeria/internal/infrastructure/cache/adapter"
	cachePort "go-mensajeria/internal/infrastructure/cache/port"
	"go-mensajeria/internal/infrastructure/database"
	"go-mensajeria/internal/infrastructure/identity"
	pubsubAdapter "go-mensajeria/internal/infrastructure/pubsub/adapter"
	pubsubPort "go-mensajeria/internal/infrastructure/pubsub/port"
	pushAdapter "go-mensajeria/internal/infrastructure/push/adapter"
	pushPort "go-mensajeria/internal/infrastructure/push/port"
	queueAdapter "go-mensajeria/internal/infrastructure/queue/adapter"
	queuePort "go-mensajeria/internal/infrastructure/queue/port"
	"go-mensajeria/internal/infrastructure/realtime"
	"go-mensajeria/internal/logging"
	chatUsecase "go-mensajeria/internal/pkg/chat/application/usecase"
	chatRepoAdapter "go-mensajeria/internal/pkg/chat/persistence/repository/adapter"
	chatRepoPort "go-mensajeria/internal/pkg/chat/persistence/repository/port"
	chatHTTP "go-mensajeria/internal/pkg/chat/presentation/http"
	"go-mensajeria/internal/pkg/notification/application/presence"
	"go-mensajeria/internal/pkg/notification/application/task"
	"go-mensajeria/internal/pkg/notification/application/token"
	notificationUsecase "go-mensajeria/internal/pkg/notification/application/usecase"
	notificationHTTP "go-mensajeria/internal/pkg/notification/presentation/http"
	profileUsecase "go-mensajeria/internal/pkg/profile/application/usecase"
	profileHTTP "go-mensajeria/internal/pkg/profile/presentation/http"
	repoAdapter "go-mensajeria/internal/repository/adapter"
	repoPort "go-mensajeria/internal/repository/port"
	"go-mensajeria/internal/retry"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	health := map[string]v1.Pinger{}

	// Storage: postgres or in-process
	var (
		chatRepo    chatRepoPort.ChatRepository
		profileRepo repoPort.ProfileRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := database.Connect(connectCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		chatRepo = chatRepoAdapter.NewPgChatRepository(pool)
		profileRepo = repoAdapter.NewPgProfileRepository(pool)
		health["postgres"] = pool
	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		chatRepo = chatRepoAdapter.NewMemoryChatRepository()
		profileRepo = repoAdapter.NewMemoryProfileRepository()
	}

	// Cache, pub/sub and the push queue: redis or in-process
	var (
		cache  cachePort.Cache
		broker pubsubPort.Broker
		client queuePort.Client
		server queuePort.Server
	)
	if cfg.UsesRedis() {
		rdb, err := cacheAdapter.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		redisCache := cacheAdapter.NewRedisCache(rdb)
		defer redisCache.Close()
		cache = redisCache
		broker = pubsubAdapter.NewRedisBroker(rdb)

		asynqClient, err := queueAdapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer asynqClient.Close()
		client = asynqClient

		server, err = queueAdapter.NewAsynqServer(cfg.RedisURL, cfg.AsynqConcurrency, cfg.AsynqQueues, log)
		if err != nil {
			return err
		}
		health["redis"] = redisCache
	} else {
		log.Warn().Msg("REDIS_URL not set; cache, pub/sub and push queue run in-process")
		cache = cacheAdapter.NewMemoryCache()
		broker = pubsubAdapter.NewLocalBroker()
		inline := queueAdapter.NewInlineQueue(log)
		client, server = inline, inline
	}
	defer broker.Close()

	var sender pushPort.Sender
	switch {
	case cfg.UsesFCM():
		fcm, err := pushAdapter.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMCredentialsFile)
		if err != nil {
			return err
		}
		sender = fcm
	case cfg.PushEndpoint != "":
		sender = pushAdapter.NewHTTPSender(cfg.PushEndpoint, cfg.PushAPIKey, &http.Client{Timeout: 10 * time.Second})
	default:
		log.Warn().Msg("FCM_PROJECT_ID and PUSH_ENDPOINT not set; push notifications are recorded but not delivered")
		sender = pushAdapter.NewFakeSender()
	}

	blobs, err := blobAdapter.NewFilesystemStore(cfg.BlobDir, cfg.BlobBaseURL)
	if err != nil {
		return err
	}

	tracker := presence.NewTracker(cache, cfg.PresenceTTL)
	tokens := token.NewManager(cache, profileRepo, log)
	dispatch := notificationUsecase.NewDispatchPushUseCase(profileRepo, tracker, sender, log)
	task.RegisterDispatchPushTask(server, dispatch, log)

	policy := retry.Default()
	send := chatUsecase.NewSendMessageUseCase(chatRepo, broker, task.NewEnqueuer(client), policy, log)
	rt := realtime.NewRouter()
	defer rt.Close()

	r := gin.New()
	r.Use(logging.GinMiddleware(log), gin.Recovery())
	v1.RegisterRoutes(r, v1.Dependencies{
		Verifier: identity.NewVerifier(cfg.IdentitySecret),
		Chat: chatHTTP.Deps{
			Send:      send,
			History:   chatUsecase.NewGetMessageUseCase(chatRepo),
			Subscribe: chatUsecase.NewSubscribeConversationUseCase(chatRepo, broker, log),
			Blobs:     blobs,
			Realtime:  rt,
			Presence:  tracker,
			Log:       log,
		},
		Profile: profileHTTP.Deps{
			Ensure: profileUsecase.NewEnsureProfileUseCase(profileRepo, policy),
			Get:    profileUsecase.NewGetProfileUseCase(profileRepo),
			List:   profileUsecase.NewListProfilesUseCase(profileRepo),
			Update: profileUsecase.NewUpdateProfileUseCase(profileRepo),
		},
		Notification: notificationHTTP.Deps{Tokens: tokens, Presence: tracker},
		BlobDir:      blobs.Root(),
		Health:       health,
		Sessions:     rt.Sessions,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Bool("redis", cfg.UsesRedis()).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// sockets are hijacked, so Shutdown does not wait for them
		rt.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
