package main

import (
	"bufio"
	"bytes"
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/pagestream/pkg/client"
	"github.com/Sternrassler/pagestream/pkg/config"
	"github.com/Sternrassler/pagestream/pkg/logging"
	"github.com/Sternrassler/pagestream/pkg/pagination"
	jsoniter "github.com/json-iterator/go"
)

type mode string

const (
	modeSequential mode = "sequential"
	modeOrdered    mode = "ordered"
	modeUnordered  mode = "unordered"
)

type dumpOptions struct {
	Endpoint    string
	Mode        mode
	Query       map[string]string
	Source      client.PageSourceConfig
	MetricsAddr string

	// PageSize overrides the process-wide default page size when positive.
	PageSize int
	Parallel pagination.Config
}

func run(ctx context.Context, cfg *config.Config, opts dumpOptions, out io.Writer) error {
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("pagedump")

	if err := cfg.Apply(); err != nil {
		return err
	}
	opts.Parallel = cfg.ParallelConfig()

	redisClient := cfg.NewRedisClient()
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	c, err := client.New(cfg.ClientConfig(redisClient))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	if opts.MetricsAddr != "" {
		srv := newMetricsServer(opts.MetricsAddr, redisClient)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", opts.MetricsAddr).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("base_url", cfg.BaseURL).
		Str("endpoint", opts.Endpoint).
		Str("mode", string(opts.Mode)).
		Int("page_size", cfg.Pagination.PageSize).
		Msg("Starting dump")

	startTime := time.Now()
	n, err := dump(ctx, c, opts, out)
	if err != nil {
		logger.Error().Err(err).Int("elements", n).Msg("Dump failed")
		return err
	}

	logger.Info().
		Int("elements", n).
		Dur("duration", time.Since(startTime)).
		Msg("Dump complete")
	return nil
}

// dump writes every element of the endpoint to out, one JSON document per
// line, and returns the number of lines written.
func dump(ctx context.Context, c *client.Client, opts dumpOptions, out io.Writer) (int, error) {
	switch opts.Mode {
	case "", modeSequential, modeOrdered, modeUnordered:
	default:
		return 0, fmt.Errorf("unknown mode %q (want sequential, ordered or unordered)", opts.Mode)
	}

	sourceCfg := opts.Source
	if len(opts.Query) > 0 {
		sourceCfg.Query = make(url.Values, len(opts.Query))
		for k, v := range opts.Query {
			sourceCfg.Query.Set(k, v)
		}
	}
	source := client.NewPageSource[jsoniter.RawMessage](c, opts.Endpoint, sourceCfg)

	var (
		seq *pagination.Sequence[jsoniter.RawMessage]
		err error
	)
	if opts.PageSize > 0 {
		seq, err = pagination.New[jsoniter.RawMessage](ctx, source, opts.PageSize)
	} else {
		seq, err = pagination.NewDefault[jsoniter.RawMessage](ctx, source)
	}
	if err != nil {
		return 0, err
	}

	w := newLineWriter(out)

	switch opts.Mode {
	case "", modeSequential:
		for item, err := range seq.All(ctx) {
			if err != nil {
				return w.count, errors.Join(err, w.flush())
			}
			if err := w.write(item); err != nil {
				return w.count, err
			}
		}

	case modeOrdered:
		items, err := seq.CollectOrdered(ctx, opts.Parallel)
		if err != nil {
			return 0, err
		}
		for _, item := range items {
			if err := w.write(item); err != nil {
				return w.count, err
			}
		}

	case modeUnordered:
		var mu sync.Mutex
		err := seq.ForEach(ctx, opts.Parallel, func(item jsoniter.RawMessage) error {
			mu.Lock()
			defer mu.Unlock()
			return w.write(item)
		})
		if err != nil {
			return w.count, errors.Join(err, w.flush())
		}
	}

	return w.count, w.flush()
}

// lineWriter writes JSON documents as JSON Lines.
type lineWriter struct {
	out     *bufio.Writer
	scratch bytes.Buffer
	count   int
}

func newLineWriter(out io.Writer) *lineWriter {
	return &lineWriter{out: bufio.NewWriter(out)}
}

func (w *lineWriter) write(doc jsoniter.RawMessage) error {
	w.scratch.Reset()
	if err := stdjson.Compact(&w.scratch, doc); err != nil {
		return fmt.Errorf("element %d: %w", w.count, err)
	}
	w.scratch.WriteByte('\n')
	if _, err := w.out.Write(w.scratch.Bytes()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	w.count++
	return nil
}

func (w *lineWriter) flush() error {
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
