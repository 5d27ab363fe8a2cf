package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/obagg/internal/aggregator"
	"github.com/Aidin1998/obagg/internal/config"
	"github.com/Aidin1998/obagg/internal/feed"
	"github.com/Aidin1998/obagg/internal/server"
	"github.com/Aidin1998/obagg/internal/subscriber"
	"github.com/Aidin1998/obagg/pkg/client"
	"github.com/Aidin1998/obagg/pkg/logger"
	pb "github.com/Aidin1998/obagg/proto/orderbook"
)

var version = "dev"

const (
	feedRestartBackoff = 2 * time.Second
	clientReconnect    = time.Second
	updateBuffer       = 1024
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "server"
	}
	if cmd == "version" {
		fmt.Printf("obagg %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "server":
		err = runServer(ctx, cfg, zapLogger)
	case "client":
		err = runClient(ctx, cfg, zapLogger)
	default:
		log.Fatalf("Unknown command %q (expected server, client or version)", cmd)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Fatal("Command failed", zap.Error(err))
	}
}

func runServer(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	pool := subscriber.NewPool(zapLogger)
	updates := make(chan feed.Update, updateBuffer)

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			zapLogger.Info("Metrics endpoint listening", zap.String("addr", cfg.MetricsAddress))
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				zapLogger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	var wg sync.WaitGroup
	if cfg.Exchanges.Binance.Enable {
		f := feed.NewBinance(cfg.Exchanges.Binance, cfg.Ticker, cfg.Depth, zapLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Supervise(ctx, f, updates, zapLogger, feedRestartBackoff)
		}()
	}
	if cfg.Exchanges.Bitstamp.Enable {
		f := feed.NewBitstamp(cfg.Exchanges.Bitstamp, cfg.Ticker, cfg.Depth, zapLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Supervise(ctx, f, updates, zapLogger, feedRestartBackoff)
		}()
	}

	agg := aggregator.New(cfg.Depth, cfg.IdenticalLevelOrder, pool, zapLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Run(ctx, updates)
	}()

	srv := server.New(pool, zapLogger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(cfg.BindAddress)
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutting down")
		srv.Stop()
		wg.Wait()
		return nil
	case err := <-errCh:
		return err
	}
}

func runClient(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	c := client.New(cfg.BindAddress, clientReconnect, zapLogger)
	go c.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-c.Summaries():
			if !ok {
				return nil
			}
			render(cfg.Ticker, s)
		}
	}
}

// render prints the aggregated book the way a terminal watcher expects:
// spread on top, bids and asks side by side, best first.
func render(ticker string, s *pb.Summary) {
	fmt.Print("\033c")
	fmt.Println("_____________________________________________________________")
	fmt.Printf("        %s          SPREAD = %.8f\n", ticker, s.Spread)
	fmt.Println("_____________________________________________________________")
	fmt.Println("             Bids             |             Asks             ")
	fmt.Println("______________________________|______________________________")
	rows := len(s.Bids)
	if len(s.Asks) > rows {
		rows = len(s.Asks)
	}
	for i := 0; i < rows; i++ {
		left, right := "", ""
		if i < len(s.Bids) {
			left = fmt.Sprintf("%-9s %10.5f @ %12.8f", s.Bids[i].Exchange, s.Bids[i].Amount, s.Bids[i].Price)
		}
		if i < len(s.Asks) {
			right = fmt.Sprintf("%10.5f @ %12.8f %9s", s.Asks[i].Amount, s.Asks[i].Price, s.Asks[i].Exchange)
		}
		fmt.Printf("%-30s|%30s\n", left, right)
	}
}
