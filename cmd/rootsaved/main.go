package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Smartdevs17/rootsave/internal/chain/solanarpc"
	"github.com/Smartdevs17/rootsave/internal/config"
	"github.com/Smartdevs17/rootsave/internal/httpapi"
	"github.com/Smartdevs17/rootsave/internal/ledger"
	"github.com/Smartdevs17/rootsave/internal/rates"
	"github.com/Smartdevs17/rootsave/internal/session"
	"github.com/Smartdevs17/rootsave/internal/vault"
	"github.com/Smartdevs17/rootsave/internal/vault/securestore/filestore"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// @title           Rootsave Wallet API
// @version         1.0
// @description     Localhost API for the embedded self-custodial savings wallet.
// @host            localhost:8080
// @BasePath        /
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(level)

	ledgerStore, err := ledger.Open(cfg.LedgerDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open ledger")
	}
	defer func() {
		if err := ledgerStore.Close(); err != nil {
			log.WithError(err).Warn("failed to close ledger")
		}
	}()

	// The passphrase is captured once at startup so vault operations do not
	// block on the terminal while serving requests.
	auth := filestore.NewStaticAuthenticator(nil)
	if (filestore.TerminalAuthenticator{}).Enrolled() {
		passphrase, err := (filestore.TerminalAuthenticator{}).Passphrase(
			context.Background(), "Rootsave needs the wallet passphrase to start.")
		if err != nil && !errors.Is(err, filestore.ErrPromptCancelled) {
			log.WithError(err).Fatal("failed to read passphrase")
		}
		auth = filestore.NewStaticAuthenticator(passphrase)
		clear(passphrase)
	}
	defer auth.Zero()

	store := filestore.New(cfg.WalletFilePath, auth)
	walletVault := vault.New(store, vault.DefaultService)

	chainClient, err := solanarpc.New(cfg.SolanaRPCURL, cfg.VaultProgramID)
	if err != nil {
		log.WithError(err).Fatal("failed to create chain client")
	}

	sess := session.New(walletVault, ledgerStore, chainClient, rates.NewCoinGeckoClient(), session.Config{
		StaleEntryWindow:      cfg.StaleEntryWindow,
		YieldTickInterval:     cfg.YieldTickInterval,
		YieldMinDeltaLamports: cfg.YieldMinDeltaLamports,
		AnnualRateBps:         cfg.AnnualRateBps,
	})
	log.WithField("state", sess.InitializeFromStored().String()).Info("session initialized")

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(cfg.YieldTickInterval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := sess.RecordYieldTick(ctx); err != nil {
			log.WithError(err).Warn("yield tick failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule yield ticks")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:    "127.0.0.1:" + cfg.Port,
		Handler: httpapi.SetupRouter(sess, ledgerStore),
	}

	go func() {
		log.WithField("addr", server.Addr).Info("starting service...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("forced shutdown")
	}
	sess.Lock()
}
