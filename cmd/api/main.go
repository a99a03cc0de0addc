package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-identity-quota/internal/application/admin"
	"github.com/go-identity-quota/internal/application/auth"
	"github.com/go-identity-quota/internal/application/otp"
	"github.com/go-identity-quota/internal/application/quota"
	"github.com/go-identity-quota/internal/application/reset"
	"github.com/go-identity-quota/internal/application/sweeper"
	"github.com/go-identity-quota/internal/config"
	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/infrastructure/audit"
	"github.com/go-identity-quota/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-identity-quota/internal/infrastructure/jwt"
	"github.com/go-identity-quota/internal/infrastructure/logging"
	"github.com/go-identity-quota/internal/infrastructure/metrics"
	"github.com/go-identity-quota/internal/infrastructure/smtp"
	"github.com/go-identity-quota/internal/infrastructure/sns"
	"github.com/go-identity-quota/internal/infrastructure/sqlite"
	"github.com/go-identity-quota/internal/infrastructure/telemetry"
	"github.com/go-identity-quota/internal/pkg/password"
	transporthttp "github.com/go-identity-quota/internal/transport/http"
	"github.com/go-identity-quota/internal/transport/http/handler"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const serviceName = "identity-quota"

// identityRepo is what every backend's identity repository provides.
type identityRepo interface {
	auth.IdentityStore
	quota.IdentityLookup
	SetSubscriptionLevel(ctx context.Context, id string, level int) error
	List(ctx context.Context) ([]domain.Identity, error)
	ListUnverified(ctx context.Context) ([]domain.Identity, error)
	ListRegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Identity, error)
	DeleteUnverified(ctx context.Context) (int, error)
}

type tierRepo interface {
	quota.TierTable
	Seed(ctx context.Context, tiers []domain.SubscriptionTier) error
}

type stores struct {
	identities identityRepo
	codes      otp.Repository
	tiers      tierRepo
	counters   quota.CounterRepository
	pinger     handler.Pinger
	close      func() error
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracer shutdown", "err", err)
		}
	}()

	clock := clockwork.NewRealClock()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}()
	if err := st.tiers.Seed(ctx, domain.DefaultTiers); err != nil {
		return fmt.Errorf("seed tiers: %w", err)
	}

	mailer, err := newMailer(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	otpStore := otp.NewStore(st.codes, clock)
	tracker := quota.NewTracker(st.tiers, st.counters, st.identities, clock).WithObserver(m)

	authDeps := auth.ServiceDeps{
		Identities: st.identities,
		Codes:      otpStore,
		Resets:     reset.NewStore(clock),
		Mailer:     mailer,
		Hasher:     password.NewBcrypt(),
		Clock:      clock,
		Observer:   m,
	}
	adminDeps := admin.ServiceDeps{Identities: st.identities, Tiers: st.tiers, Clock: clock}
	routerDeps := &transporthttp.Deps{Quota: tracker, Metrics: m.Handler(), Store: st.pinger, Clock: clock}

	// JWT provider (optional; logins work without bearers when keys are missing).
	if p, err := jwtinfra.NewProvider(cfg, clock); err == nil {
		authDeps.Signer = p
		routerDeps.Verifier = p
	} else {
		slog.Warn("JWT provider not available", "err", err)
	}

	if cfg.AuditLogDir != "" {
		sink, err := audit.NewCSVSink(cfg.AuditLogDir, cfg.AuditLogMaxAge, clock)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		defer sink.Close()
		authDeps.Audit = sink
		adminDeps.Audit = sink
	}

	routerDeps.Auth = auth.NewService(authDeps)
	routerDeps.Admin = admin.NewService(adminDeps)

	sweeps := sweeper.NewRegistry(clock).WithObserver(m)
	if err := sweeps.Register("otp", cfg.OTPSweepInterval, otpStore.Sweep); err != nil {
		return err
	}
	if err := sweeps.Register("quota", cfg.QuotaSweepInterval, tracker.Sweep); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, routerDeps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeps.Run(gctx) })
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend, "mail", cfg.MailBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("dynamo client: %w", err)
		}
		// Bootstrap DynamoDB tables (creates them if they don't exist).
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		t := cfg.DynamoTables
		return &stores{
			identities: dynamo.NewIdentityRepo(client, t.Identities),
			codes:      dynamo.NewOneTimeCodeRepo(client, t.OneTimeCodes),
			tiers:      dynamo.NewTierRepo(client, t.SubscriptionTiers),
			counters:   dynamo.NewQuotaRepo(client, t.QuotaCounters),
			pinger:     dynamo.NewPinger(client, t.Identities, t.OneTimeCodes, t.SubscriptionTiers, t.QuotaCounters),
			close:      func() error { return nil },
		}, nil
	default:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &stores{
			identities: sqlite.NewIdentityRepo(db),
			codes:      sqlite.NewOneTimeCodeRepo(db),
			tiers:      sqlite.NewTierRepo(db),
			counters:   sqlite.NewQuotaRepo(db),
			pinger:     db,
			close:      db.Close,
		}, nil
	}
}

func newMailer(ctx context.Context, cfg *config.Config) (auth.EmailSender, error) {
	if cfg.MailBackend == config.MailSNS {
		awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg, cfg.SNSRegion)
		if err != nil {
			return nil, fmt.Errorf("sns config: %w", err)
		}
		return sns.NewPublisher(awsCfg, cfg.SNSTopicARN), nil
	}
	return smtp.NewMailer(cfg), nil
}
