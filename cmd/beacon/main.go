// Command convgate-beacon exercises the client wire contract against a
// running gateway: it loads the published beacon configuration, fabricates
// the vendor cookies, and sends one encrypted test conversion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/beacon"
	"github.com/adscale-labs/convgate/internal/clientconfig"
)

func main() {
	configURL := flag.String("config-url", "", "published beacon config URL (required)")
	orderID := flag.String("order-id", "", "order id to report (required)")
	amount := flag.Int64("amount", 1000, "amount in minor units")
	clickID := flag.String("click-id", "", "click id; defaults to a fresh search-network one")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	if *configURL == "" || *orderID == "" {
		logger.Fatal("missing required flags (--config-url, --order-id)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := fetchConfig(ctx, *configURL)
	if err != nil {
		logger.Fatal("load beacon config", zap.Error(err))
	}
	logger.Info("loaded config",
		zap.String("kid", cfg.Key.KeyID),
		zap.String("endpoint", cfg.Endpoint),
	)

	now := time.Now()
	id := *clickID
	if id == "" {
		id = fmt.Sprintf("YSS.%d.testclick", now.Add(-10*time.Minute).Unix())
	}
	cookies := []*http.Cookie{{Name: "_uclid_s", Value: id}}

	sender := beacon.NewSender(cfg, nil, logger)
	err = sender.Send(ctx, cookies, beacon.Purchase{
		OrderID:   *orderID,
		Amount:    *amount,
		VisitedAt: now.Add(-10 * time.Minute).Format("2006-01-02 15:04:05"),
		Completed: now,
	})
	if err != nil {
		logger.Fatal("send", zap.Error(err))
	}
	logger.Info("beacon sent")
}

func fetchConfig(ctx context.Context, url string) (clientconfig.BeaconConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return clientconfig.BeaconConfig{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return clientconfig.BeaconConfig{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return clientconfig.BeaconConfig{}, fmt.Errorf("config fetch: status %d", resp.StatusCode)
	}

	var cfg clientconfig.BeaconConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return clientconfig.BeaconConfig{}, err
	}
	return cfg, nil
}
