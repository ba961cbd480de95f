package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/changestore/internal/changes"
	"github.com/roach88/changestore/internal/config"
	"github.com/roach88/changestore/internal/record"
	"github.com/roach88/changestore/internal/storage"
)

// session is the per-command state shared by store commands.
type session struct {
	formatter *OutputFormatter
	config    *config.Config
	engine    *storage.SQLite
	store     *changes.Store
	logger    *slog.Logger
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Diagnostics go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger logs to stderr; debug level with --verbose.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Dir != "" {
		cfg.Dir = opts.Dir
	}
	return cfg, nil
}

// openSession loads configuration and prepares the store. The caller must
// call close.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	s := &session{
		formatter: newFormatter(opts, cmd),
		logger:    newLogger(opts, cmd),
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return s, err
	}
	s.config = cfg
	s.formatter.VerboseLog("Using store %q version %d in %s", cfg.Store, cfg.Version, cfg.Dir)

	engine, err := storage.NewSQLite(cfg.Dir)
	if err != nil {
		return s, err
	}
	s.engine = engine

	store, err := changes.New(engine, cfg.Connection(), changes.WithLogger(s.logger))
	if err != nil {
		return s, err
	}
	s.store = store
	return s, nil
}

func (s *session) close() {
	if s.engine == nil {
		return
	}
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("failed to close store engine", "error", err)
	}
}

// argError marks err as a usage problem.
func argError(err error) *ExitError {
	return WrapExitError(ExitCommandError, ErrCodeArgument, err)
}

// parseRecord parses a JSON object argument.
func parseRecord(arg string) (record.Record, error) {
	r, err := record.Unmarshal([]byte(arg))
	if err != nil {
		return nil, argError(err)
	}
	return r, nil
}

// parseKey interprets a key argument as a string, or as a number when
// numeric is set.
func parseKey(arg string, numeric bool) (any, error) {
	if !numeric {
		return arg, nil
	}
	n := json.Number(arg)
	if _, err := n.Float64(); err != nil {
		return nil, argError(fmt.Errorf("key %q is not a number", arg))
	}
	if _, err := record.EncodeKey(n); err != nil {
		return nil, argError(err)
	}
	return n, nil
}
