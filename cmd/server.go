package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/debug"
	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/server"
	"github.com/LeeDigitalWorks/zaptable/pkg/storage/index"
	"github.com/LeeDigitalWorks/zaptable/pkg/table"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Readiness announcement written to stdout with --announce.
const (
	AnnounceListening = "LISTENING"
	AnnounceReady     = "READY"
)

type ServerOpts struct {
	BindAddr  string // Address to bind gRPC server (host:port)
	DebugPort int    // Debug HTTP port on the bind host; -1 disables, 0 picks a free port

	Engine    index.Kind
	DataDir   string
	RedisAddr string

	Tables []table.Schema

	Announce        bool // Print LISTENING/READY lines on stdout
	StdinLifeline   bool // Shut down when stdin reaches EOF
	ShutdownTimeout time.Duration
}

// tableConfig is one [[tables]] entry of the config file.
type tableConfig struct {
	Name        string `mapstructure:"name"`
	KeyColumn   string `mapstructure:"key_column"`
	ValueColumn string `mapstructure:"value_column"`
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start table server",
		Long: `Start a ZapTable server that serves the TableService and the gRPC
health service. With --announce it prints one "LISTENING <name> <addr>" line
per listener followed by "READY" once it accepts requests.`,
		RunE: runServer,
	}

	f := serverCmd.Flags()

	f.String("bind_addr", utils.JoinHostPort(utils.Loopback, 0), "Address to bind gRPC server (host:port). Port 0 picks a free port.")
	f.Int("debug_port", -1, "Debug/metrics HTTP port (-1 disables, 0 picks a free port)")

	f.String("engine", string(index.KindMemory), "Storage engine: memory, leveldb or redis")
	f.String("data_dir", "", "Data directory for the leveldb engine")
	f.String("redis_addr", "127.0.0.1:6379", "Redis address for the redis engine")

	f.StringSlice("table", nil, "Table to create at startup (repeatable)")

	f.Bool("announce", false, "Print LISTENING/READY lines on stdout")
	f.Bool("stdin_lifeline", false, "Shut down when stdin is closed")
	f.Duration("shutdown_timeout", server.DefaultShutdownTimeout, "Maximum time to drain in-flight requests")

	viper.BindPFlags(f)
	return serverCmd
}

func runServer(cmd *cobra.Command, args []string) error {
	utils.LoadConfiguration("server", false)
	opts, err := loadServerOpts(cmd)
	if err != nil {
		return err
	}

	started := time.Now()
	debug.SetNotReady()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if opts.Engine == index.KindRedis {
		rdb = redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", opts.RedisAddr, err)
		}
	}
	if opts.Engine == index.KindLevelDB {
		if err := utils.EnsureWritableDir(opts.DataDir); err != nil {
			return err
		}
	}

	catalog, err := table.Open(ctx, table.Config{
		Engine:  opts.Engine,
		DataDir: opts.DataDir,
		Redis:   rdb,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close catalog")
		}
	}()

	for _, schema := range opts.Tables {
		if _, err := catalog.Ensure(ctx, schema); err != nil {
			return fmt.Errorf("create table %s: %w", schema.Name, err)
		}
	}

	cfg := server.Config{
		BindAddr:        opts.BindAddr,
		ShutdownTimeout: opts.ShutdownTimeout,
		Registerer:      debug.Registry(),
	}
	if opts.DebugPort >= 0 {
		bindHost, err := bindHost(opts.BindAddr)
		if err != nil {
			return err
		}
		cfg.DebugAddr = utils.JoinHostPort(bindHost, opts.DebugPort)
	}

	srv, err := server.New(cfg, catalog)
	if err != nil {
		return err
	}
	srv.Start()

	logger.Info().
		Str("engine", string(opts.Engine)).
		Int("tables", len(catalog.List())).
		Str("bind_addr", srv.Addr()).
		Msg("Table server ready")

	if opts.Announce {
		if err := announce(cmd.OutOrStdout(), srv); err != nil {
			srv.Shutdown(context.Background())
			return err
		}
	}

	if opts.StdinLifeline {
		ctx = watchLifeline(ctx, cmd.InOrStdin())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown requested")
	case serveErr = <-srv.Errors():
		logger.Error().Err(serveErr).Msg("server failed")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("failed to shut down debug server")
	}

	logger.Info().
		Str("uptime", humanize.RelTime(started, time.Now(), "", "")).
		Msg("Table server stopped")
	return serveErr
}

func loadServerOpts(cmd *cobra.Command) (ServerOpts, error) {
	f := NewFlagLoader(cmd)

	engine, err := index.ParseKind(f.String("engine"))
	if err != nil {
		return ServerOpts{}, err
	}

	opts := ServerOpts{
		BindAddr:        f.String("bind_addr"),
		DebugPort:       f.Int("debug_port"),
		Engine:          engine,
		DataDir:         utils.ResolvePath(f.String("data_dir")),
		RedisAddr:       f.String("redis_addr"),
		Announce:        f.Bool("announce"),
		StdinLifeline:   f.Bool("stdin_lifeline"),
		ShutdownTimeout: f.Duration("shutdown_timeout"),
	}
	if opts.Engine == index.KindLevelDB && opts.DataDir == "" {
		return ServerOpts{}, errors.New("--data_dir is required for the leveldb engine")
	}

	var configured []tableConfig
	if err := viper.UnmarshalKey("tables", &configured); err != nil {
		return ServerOpts{}, fmt.Errorf("invalid tables configuration: %w", err)
	}
	for _, tc := range configured {
		opts.Tables = append(opts.Tables, table.Schema{
			Name:        tc.Name,
			KeyColumn:   tc.KeyColumn,
			ValueColumn: tc.ValueColumn,
		})
	}
	for _, name := range f.StringSlice("table") {
		opts.Tables = append(opts.Tables, table.Schema{Name: name})
	}
	return opts, nil
}

func bindHost(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid bind_addr %q, expected host:port: %w", addr, err)
	}
	return host, nil
}

// announce writes the readiness lines read by test harnesses.
func announce(w io.Writer, srv *server.Server) error {
	lines := []string{fmt.Sprintf("%s grpc %s", AnnounceListening, srv.Addr())}
	if addr := srv.DebugAddr(); addr != "" {
		lines = append(lines, fmt.Sprintf("%s debug %s", AnnounceListening, addr))
	}
	lines = append(lines, AnnounceReady)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("announce readiness: %w", err)
		}
	}
	return nil
}

// watchLifeline returns a context that is cancelled once r reaches EOF.
func watchLifeline(ctx context.Context, r io.Reader) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		n, err := io.Copy(io.Discard, r)
		logger.Info().
			Str("read", humanize.Bytes(uint64(n))).
			AnErr("error", err).
			Msg("stdin closed")
	}()
	return ctx
}
