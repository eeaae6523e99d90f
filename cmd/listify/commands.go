package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Macrina/Listify-Agent-sub000/internal/bootstrap"
	"github.com/Macrina/Listify-Agent-sub000/internal/config"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/queue/nats"
	"github.com/Macrina/Listify-Agent-sub000/internal/observability/logging"
)

const serviceName = "listify-cli"

type cliOptions struct {
	envFile     string
	logLevel    string
	listName    string
	description string
	screenshot  bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "listify",
		Short:         "Turn photos, text, web pages and PDFs into stored lists",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			} else {
				_ = godotenv.Load()
			}
			level := opts.logLevel
			if level == "" {
				level = config.Load().LogLevel
			}
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), serviceName, level))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	extractFlags := func(cmd *cobra.Command) *cobra.Command {
		cmd.Flags().StringVarP(&opts.listName, "name", "n", "", "name of the created list")
		cmd.Flags().StringVarP(&opts.description, "description", "d", "", "description of the created list")
		return cmd
	}

	root.AddCommand(
		extractFlags(newTextCmd(opts)),
		extractFlags(newURLCmd(opts)),
		extractFlags(newImageCmd(opts)),
		extractFlags(newPDFCmd(opts)),
		newSchemaCmd(),
		newWatchCmd(),
	)
	return root
}

func newTextCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "text [TEXT|-]",
		Short: "Extract items from text; '-' or no argument reads stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runExtraction(cmd, opts, domain.NewTextSource(text))
		},
	}
}

func newURLCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "url URL",
		Short: "Extract items from a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtraction(cmd, opts, domain.NewURLSource(args[0]))
		},
	}
}

func newImageCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image FILE",
		Short: "Extract items from a photo or screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, mimeType, err := readFile(args[0])
			if err != nil {
				return err
			}
			source := domain.NewImageSource(data, mimeType)
			if opts.screenshot {
				source = domain.NewScreenshotSource(data, mimeType)
			}
			return runExtraction(cmd, opts, source)
		},
	}
	cmd.Flags().BoolVar(&opts.screenshot, "screenshot", false, "store items as coming from a screenshot")
	return cmd
}

func newPDFCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pdf FILE",
		Short: "Extract items from a PDF with a text layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, mimeType, err := readFile(args[0])
			if err != nil {
				return err
			}
			return runExtraction(cmd, opts, domain.NewDocumentSource(data, mimeType))
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the list tables in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			app, err := bootstrap.OpenRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.StoreDriver)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print list.created events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cfg.NATSURL == "" {
				return errors.New("NATS_URL is not set")
			}
			queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
			if err != nil {
				return err
			}
			defer queue.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return queue.SubscribeListCreated(ctx, func(_ context.Context, ev nats.ListCreatedEvent) error {
				return enc.Encode(ev)
			})
		},
	}
}

func runExtraction(cmd *cobra.Command, opts *cliOptions, source domain.SourceDescriptor) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	result, runErr := app.Extractor.Run(ctx, source, domain.ExtractOptions{
		ListName:        opts.listName,
		ListDescription: opts.description,
	})
	if result != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return runErr
}

func textInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no text given")
	}
	return string(data), nil
}

func readFile(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return data, http.DetectContentType(data), nil
}
