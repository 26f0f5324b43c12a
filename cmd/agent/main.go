// cmd/agent/main.go runs one dwn-agent-core agent: it opens the identity
// vault, assembles the agent aggregate, serves incoming DWN traffic over
// HTTP and starts the sync engine's tick loop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sage-x-project/dwn-agent-core/config"
	"github.com/sage-x-project/dwn-agent-core/core"
	"github.com/sage-x-project/dwn-agent-core/dwn"
	"github.com/sage-x-project/dwn-agent-core/logger"
	"github.com/sage-x-project/dwn-agent-core/types"
	"github.com/sage-x-project/dwn-agent-core/vault"
)

func main() {
	configPath := flag.String("config", "", "path to agent config YAML")
	addr := flag.String("addr", ":8787", "address the agent's DWN HTTP endpoint listens on")
	flag.Parse()

	log := logger.GetLogger().WithField("component", "cmd/agent")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", err)
	}
	logger.GetLogger().SetJSONFormat(cfg.LogFormat != "text")
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := vault.OpenBoltStore(cfg.VaultPath)
	if err != nil {
		log.Fatal("open vault store", err)
	}
	defer store.Close()

	agent, err := core.New(ctx, core.Config{
		AgentDID:           cfg.DID,
		VaultStore:         store,
		VaultOpts:          vault.Options{WorkFactor: cfg.KeyDerivationWorkFactor},
		SyncDBPath:         cfg.SyncDBPath,
		IndexTTL:           cfg.IndexTTL,
		EndpointsSelection: cfg.EndpointsSelection,
	})
	if err != nil {
		log.Fatal("assemble agent", err)
	}
	defer agent.Close()

	if err := ensureVaultInitialized(ctx, agent.Vault, log); err != nil {
		log.Fatal("initialize vault", err)
	}

	dwnServer := dwn.NewServer(agent.Node)
	mux := http.NewServeMux()
	mux.HandleFunc("/", dwnServer.ServeHTTP)
	mux.HandleFunc("/subscribe", dwnServer.SubscribeHandler)
	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.Infof("dwn endpoint listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("dwn server stopped: %v", err)
		}
	}()

	agent.Sync.StartSync(ctx, cfg.SyncInterval)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	agent.Sync.StopSync()
}

// ensureVaultInitialized initializes the vault on first run using the
// AGENT_VAULT_PASSWORD environment variable; on subsequent runs it only
// unlocks. The password is never read from a flag to keep it out of the
// process list.
func ensureVaultInitialized(ctx context.Context, v *vault.Vault, log *logger.Logger) error {
	password := os.Getenv("AGENT_VAULT_PASSWORD")
	if password == "" {
		log.Warn("AGENT_VAULT_PASSWORD not set; vault will remain locked")
		return nil
	}

	if _, err := v.PublicKey(ctx); err != nil {
		log.Info("initializing vault with a freshly generated identity key")
		if _, err := v.Initialize(ctx, password, nil, types.AlgEd25519); err != nil {
			return err
		}
	}
	return v.Unlock(ctx, password)
}
