package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/ttyio/pkg/config"
	"github.com/srg/ttyio/pkg/loop"
	"github.com/srg/ttyio/pkg/tty"
)

// session bundles the loop and handle a command works with.
type session struct {
	logger *logrus.Logger
	loop   *loop.Loop
	handle *tty.Handle
}

// openSession configures logging, loads the optional config file and binds
// fd into a fresh loop as an initialized console handle.
func openSession(cmd *cobra.Command, fd int, readable bool) (*session, error) {
	logger, err := configureLogger(cmd)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	// Arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	lp := loop.New(logger)
	h := tty.NewWithOptions(lp, fd, readable, &tty.Options{
		Logger: logger,
		Stream: cfg.StreamOptions(logger),
	})
	if err := h.Init(); err != nil {
		_ = h.Close()
		_ = lp.Close()
		return nil, fmt.Errorf("bind fd %d: %w", fd, err)
	}

	return &session{logger: logger, loop: lp, handle: h}, nil
}

// close tears the session down; the handle release drops the last guard
// reference, which fires the one-shot terminal reset.
func (s *session) close() {
	if err := s.handle.Close(); err != nil {
		s.logger.WithError(err).Warn("handle close failed")
	}
	if err := s.loop.Close(); err != nil {
		s.logger.WithError(err).Warn("loop close failed")
	}
}
