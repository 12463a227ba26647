package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hetulpatel/cexarb/internal/cache"
	"github.com/hetulpatel/cexarb/internal/collectors"
	"github.com/hetulpatel/cexarb/internal/logging"
)

func collectCmd() *cobra.Command {
	var every, ttl time.Duration
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Poll feed urls of Redis-backed exchanges and publish prices into Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Infra.Redis.Addr == "" {
				return fmt.Errorf("collect needs infra.redis.addr")
			}
			feeds, err := cfg.FeedSources()
			if err != nil {
				return err
			}
			if len(feeds) == 0 {
				return fmt.Errorf("no exchange has a redis source with a feed url")
			}
			client, err := cache.NewClient(ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
			if err != nil {
				return err
			}
			defer client.Close()
			writer, err := collectors.NewRedisWriter(client, cfg.Infra.Redis.PricePrefix, ttl)
			if err != nil {
				return err
			}

			opts := collectors.FetchOptions{Symbols: cfg.Symbols}
			var wg sync.WaitGroup
			for name, src := range feeds {
				wg.Add(1)
				go func(name string, c collectors.Collector) {
					defer wg.Done()
					logging.Infof("[collect] %s every %s for %d symbols", name, every, len(opts.Symbols))
					collectors.RunLoop(ctx, c, opts, every, writer.Write)
				}(name, collectors.NewSourceCollector(src))
			}
			wg.Wait()
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 2*time.Second, "poll interval per exchange")
	cmd.Flags().DurationVar(&ttl, "ttl", 2*time.Minute, "expiry of published price hashes")
	return cmd
}
