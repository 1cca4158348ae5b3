package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/facade"
)

// maxRequestLine bounds one JSON-lines request.
const maxRequestLine = 4 << 20

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	File        string
	Workers     int
	MetricsAddr string
}

// ExecStats summarizes an exec run.
type ExecStats struct {
	Requests int `json:"requests"`
	OK       int `json:"ok"`
	Failed   int `json:"failed"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Dispatch JSON-lines requests through the façade",
		Long: `Read one request per line from stdin (or --file), dispatch each through the
universal façade and write one response per line to stdout.

A request looks like:
  {"id":"1","kind":"entity","verb":"upsert","organization_id":"org-a",
   "payload":{"entity_type":"service","entity_name":"Haircut","smart_code":"HERA.SALON.SERVICE.ENTITY.v1"}}

Responses carry the request id. With --workers above 1, requests run concurrently
and responses are written in completion order.

Failed operations are reported in their response and do not change the exit code.

Examples:
  recordstore exec --db ./recordstore.db < requests.jsonl
  recordstore exec --file requests.jsonl --workers 4 --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read requests from file instead of stdin")
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "number of concurrent workers")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runExec(opts *ExecOptions, cmd *cobra.Command) error {
	if opts.Workers < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--workers must be at least 1, got %d", opts.Workers))
	}

	in := cmd.InOrStdin()
	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open request file", err)
		}
		defer f.Close()
		in = f
	}

	st, logger, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc := facade.New(st, facade.Options{Logger: logger, Registerer: registry})

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.MetricsAddr != "" {
		shutdown, err := serveMetrics(opts.MetricsAddr, registry, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer shutdown()
	}

	stats, err := execStream(ctx, svc, in, cmd.OutOrStdout(), opts.Workers)
	logger.WithFields(logrus.Fields{
		"module":   "cli",
		"requests": stats.Requests,
		"ok":       stats.OK,
		"failed":   stats.Failed,
	}).Info("Exec finished")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "interrupted", err)
		}
		return WrapExitError(ExitCommandError, "exec failed", err)
	}
	return nil
}

// serveMetrics starts a /metrics endpoint for registry. The returned func stops it.
func serveMetrics(addr string, registry *prometheus.Registry, logger logrus.FieldLogger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	logger.WithField("addr", ln.Addr().String()).Info("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// Dispatcher is the part of the façade exec needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req facade.Request) facade.Response
}

// execStream dispatches every non-blank line of in and writes one response line per
// request. One reader feeds workers dispatchers; writes are serialized.
func execStream(ctx context.Context, d Dispatcher, in io.Reader, out io.Writer, workers int) (ExecStats, error) {
	var (
		mu    sync.Mutex
		stats ExecStats
		enc   = json.NewEncoder(out)
	)

	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan []byte)

	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			buf := append([]byte(nil), line...)
			select {
			case lines <- buf:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read requests: %w", err)
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for line := range lines {
				resp := dispatchLine(ctx, d, line)

				mu.Lock()
				stats.Requests++
				if resp.OK {
					stats.OK++
				} else {
					stats.Failed++
				}
				err := enc.Encode(resp)
				mu.Unlock()
				if err != nil {
					return fmt.Errorf("write response: %w", err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return stats, err
}

// dispatchLine decodes one request and dispatches it. Undecodable lines get an
// InvalidInput response without an id.
func dispatchLine(ctx context.Context, d Dispatcher, line []byte) facade.Response {
	var req facade.Request
	if err := json.Unmarshal(line, &req); err != nil {
		e := apperr.Wrap(apperr.KindInvalidInput, "request is not valid JSON", err).WithField("request")
		return facade.Response{Error: facade.NewErrorBody(e)}
	}
	return d.Dispatch(ctx, req)
}
