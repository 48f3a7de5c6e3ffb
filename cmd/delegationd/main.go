package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authdelegation/config"
	"authdelegation/crypto"
	"authdelegation/native/delegation"
	"authdelegation/observability/logging"
	dmetrics "authdelegation/observability/metrics"
	telemetry "authdelegation/observability/otel"
	"authdelegation/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	exportKeystore := flag.String("export-keystore", "", "Write the operator key to this path as an encrypted keystore file and exit")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DELEGATION_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if *exportKeystore != "" {
		key, err := crypto.PrivateKeyFromBytes(mustHexDecode(cfg.OperatorKey))
		if err != nil {
			panic(fmt.Sprintf("failed to parse operator key: %v", err))
		}
		passphrase := os.Getenv("DELEGATION_KEYSTORE_PASSPHRASE")
		if err := crypto.SaveToKeystore(*exportKeystore, key, passphrase); err != nil {
			panic(fmt.Sprintf("failed to export keystore: %v", err))
		}
		fmt.Printf("operator key exported to %s\n", *exportKeystore)
		return
	}

	logger := setupLogger(env, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	logger.Info("config loaded",
		logging.MaskField("operatorKey", cfg.OperatorKey),
		slog.String("dataDir", cfg.DataDir),
		slog.String("listenAddress", cfg.ListenAddress))

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if otlpEndpoint == "" {
		otlpEndpoint = cfg.OTLPEndpoint
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "delegationd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    true,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialise telemetry: %v", err))
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	operatorKey, err := loadOperatorKey(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to load operator key: %v", err))
	}
	operator := operatorKey.PubKey().Address()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	defer db.Close()

	store := delegation.NewKVStore(db)
	metrics := dmetrics.Delegation()

	authEngine := delegation.NewAuthorityEngine(store)
	authEngine.SetLogger(logger.With(slog.String("component", "authority_engine")))

	policyEngine := delegation.NewPolicyEngine(store, authEngine)
	policyEngine.SetLogger(logger.With(slog.String("component", "policy_engine")))

	ledger := delegation.NewLedger(store, authEngine)
	ledger.SetLogger(logger.With(slog.String("component", "ledger")))

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	relID := seedDemoRelationship(logger, authEngine, metrics, cfg, operator)

	logger.Info("delegationd initialised and running", slog.String("listenAddress", cfg.ListenAddress))
	pollEffectiveAuthority(context.Background(), logger, authEngine, ledger, metrics, relID)
}

func setupLogger(env, logFile string, maxSizeMB, maxBackups int) *slog.Logger {
	return logging.SetupRotating("delegationd", env, logFile, maxSizeMB, maxBackups)
}

// loadOperatorKey prefers an encrypted keystore file when cfg.KeystorePath is
// set, falling back to the raw hex key in cfg.OperatorKey otherwise.
func loadOperatorKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		passphrase := os.Getenv("DELEGATION_KEYSTORE_PASSPHRASE")
		return crypto.LoadFromKeystore(cfg.KeystorePath, passphrase)
	}
	return crypto.PrivateKeyFromBytes(mustHexDecode(cfg.OperatorKey))
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		panic(fmt.Sprintf("invalid hex key material: %v", err))
	}
	return b
}

// seedDemoRelationship creates a single relationship from the daemon's
// configured defaults so operators have something to observe on first
// boot. Production deployments drive the engines from their own
// orchestrator instead of this seed.
func seedDemoRelationship(logger *slog.Logger, authEngine *delegation.AuthorityEngine, metrics *dmetrics.DelegationMetrics, cfg *config.Config, operator crypto.Address) delegation.Hash {
	agentKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(fmt.Sprintf("failed to generate demo agent key: %v", err))
	}
	agent := agentKey.PubKey().Address()

	ceiling, ok := new(big.Int).SetString(cfg.DefaultCeiling, 10)
	if !ok {
		panic(fmt.Sprintf("invalid DefaultCeiling %q", cfg.DefaultCeiling))
	}
	decay, ok := new(big.Int).SetString(cfg.DefaultDecayPerSecond, 10)
	if !ok {
		panic(fmt.Sprintf("invalid DefaultDecayPerSecond %q", cfg.DefaultDecayPerSecond))
	}

	id, err := authEngine.Create(operator, agent, ceiling, ceiling, decay)
	metrics.ObserveCreate(err)
	if err != nil {
		panic(fmt.Sprintf("failed to seed demo relationship: %v", err))
	}
	logger.Info("seeded demo relationship", slog.String("relationship", fmt.Sprintf("%x", id)), slog.String("agent", agent.String()))
	return id
}

// pollEffectiveAuthority runs forever, periodically sampling the seeded
// relationship's decayed authority into the metrics gauge. It never
// mutates engine state; it is strictly observational.
func pollEffectiveAuthority(ctx context.Context, logger *slog.Logger, authEngine *delegation.AuthorityEngine, ledger *delegation.Ledger, metrics *dmetrics.DelegationMetrics, relID delegation.Hash) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	label := fmt.Sprintf("%x", relID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eff, err := authEngine.EffectiveAuthority(relID)
			if err != nil {
				logger.Error("poll effective authority failed", slog.Any("error", err))
				continue
			}
			floatVal, _ := new(big.Float).SetInt(eff).Float64()
			metrics.SetEffectiveAuthority(label, floatVal)

			ok, err := ledger.VerifyChain(relID)
			if err != nil {
				logger.Error("poll verify chain failed", slog.Any("error", err))
				continue
			}
			metrics.ObserveChainVerification(ok)
		}
	}
}
