package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmy/vismatch/internal/bootstrap"
	"github.com/timmy/vismatch/internal/config"
	"github.com/timmy/vismatch/internal/logger"
	"github.com/timmy/vismatch/internal/service"
)

var configPath string

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "vismatch-catalog",
	})
	logger.SetDefaultLogger(appLogger)

	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Maintain the product catalog and its embeddings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to config file")
	root.AddCommand(precomputeCmd(), addCmd(), listCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		appLogger.WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}

// withApp loads the configuration, builds the services and runs fn.
func withApp(ctx context.Context, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func precomputeCmd() *cobra.Command {
	var opts service.PrecomputeOptions
	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Compute catalog embeddings and rewrite the embedding store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				start := time.Now()
				res, err := app.Catalog.Precompute(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "total=%d computed=%d failed=%d skipped=%d elapsed=%s\n",
					res.Total, res.Computed, res.Failed, res.Skipped, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.MissingOnly, "missing-only", false, "Only compute items without a stored vector")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Parallel extractions (0 uses the configured default)")
	return cmd
}

func addCmd() *cobra.Command {
	var req service.AddProductRequest
	var image string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product from a local image file or an image URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") || service.IsDataURL(image) {
				req.Image = service.ImageInput{URL: image}
			} else {
				data, err := os.ReadFile(image)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				req.Image = service.ImageInput{Data: data}
			}
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				item, err := app.Catalog.AddProduct(ctx, &req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added product %d: %s\n", item.ID, item.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Product name")
	cmd.Flags().StringVar(&req.Category, "category", "", "Product category")
	cmd.Flags().Float64Var(&req.Price, "price", 0, "Product price")
	cmd.Flags().StringVar(&image, "image", "", "Image file path or URL")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				items, err := app.Catalog.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(items)
				}
				for _, item := range items {
					fmt.Fprintf(out, "%d\t%s\t%s\t%.2f\n", item.ID, item.Name, item.Category, item.Price)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}
