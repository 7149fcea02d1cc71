package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/config"
	"github.com/polzovatel/form-autofill-agent/internal/control"
	"github.com/polzovatel/form-autofill-agent/internal/model"
	"github.com/polzovatel/form-autofill-agent/internal/tools"
)

func newRootCmd() *cobra.Command {
	var opts pageOptions
	root := &cobra.Command{
		Use:           "autofill",
		Short:         "Detect and fill web forms from a user profile",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.url, "url", "", "page to open in a browser")
	pf.StringVar(&opts.file, "file", "", "saved HTML page to work on offline")
	pf.StringVar(&opts.fileURL, "file-url", "", "address the --file page was saved from")
	pf.StringVar(&opts.profile, "profile", "", "JSON profile used as user data")
	pf.StringVar(&opts.storage, "storage", "", "path to Playwright storage state")
	pf.StringVar(&opts.saveState, "save-state", "", "path to save updated storage state")
	pf.BoolVar(&opts.install, "install-browser", false, "download Chromium before launch")

	root.AddCommand(
		newDetectCmd(&opts),
		newFillCmd(&opts),
		newServeCmd(&opts),
	)
	return root
}

// withSession loads config, opens the page and runs fn against it.
func withSession(cmd *cobra.Command, opts *pageOptions, fn func(ctx context.Context, s *session) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, *opts, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDetectCmd(opts *pageOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "List the forms and fields found on the page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if _, err := s.orch.Detect(ctx); err != nil {
					return err
				}
				snap := s.orch.Current()
				if snap == nil || len(snap.Forms) == 0 {
					return agent.ErrNoForms
				}
				return printJSON(cmd.OutOrStdout(), snap.Notification())
			})
		},
	}
}

func newFillCmd(opts *pageOptions) *cobra.Command {
	var (
		formID     string
		valuesPath string
		dryRun     bool
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Resolve values for the page's forms and write them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				req := agent.FillRequest{FormID: formID, DryRun: dryRun}
				if valuesPath != "" {
					values, err := readValues(valuesPath)
					if err != nil {
						return err
					}
					req.Values = values
				}
				report, err := s.orch.Fill(ctx, req)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if outPath == "" || s.doc == nil {
					return nil
				}
				return writeRendered(s, outPath)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&formID, "form", "", "fill only the form with this id")
	f.StringVar(&valuesPath, "values", "", "JSON file of pre-resolved values keyed by field name")
	f.BoolVar(&dryRun, "dry-run", false, "resolve without writing")
	f.StringVarP(&outPath, "out", "o", "", "write the filled --file page here")
	return cmd
}

func readValues(path string) (model.ValueMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse values: %w", err)
	}
	out := make(model.ValueMap, len(raw))
	for k, v := range raw {
		if val, ok := model.ValueFromAny(v); ok {
			out[k] = val
		}
	}
	return out, nil
}

func writeRendered(s *session, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := s.doc.Render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("render page: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.logger.Info().Str("path", path).Msg("filled page written")
	return nil
}

func newServeCmd(opts *pageOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep watching the page and serve commands over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if addr == "" {
					addr = s.cfg.Control.Addr
				}
				srv := control.New(tools.New(s.orch, s.navigator()), s.latest, s.metrics, s.logger.With().Str("comp", "control").Logger())

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					err := s.orch.Run(ctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
				g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, AUTOFILL_CONTROL_ADDR when empty")
	return cmd
}
