package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mailwright/internal"
	pkgconfig "github.com/starford/mailwright/pkg/config"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func templates(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := internal.LoadCatalog(cfg)
	if err != nil {
		return err
	}

	key := color.New(color.FgCyan, color.Bold)
	required := color.New(color.FgRed)
	image := color.New(color.FgMagenta)
	for _, t := range cat.List() {
		fmt.Printf("%s  %s\n", key.Sprint(t.Key), t.Name)
		if t.Description != "" {
			fmt.Printf("  %s\n", t.Description)
		}
		for _, f := range t.Fields {
			kind := string(f.Kind)
			if f.IsImage() {
				kind = image.Sprint(kind)
			}
			var notes []string
			if f.Required {
				notes = append(notes, required.Sprint("required"))
			}
			if v, ok := f.DefaultValue(); ok {
				notes = append(notes, fmt.Sprintf("default %q", v))
			}
			fmt.Printf("    %-16s %-10s %s\n", f.ID, kind, strings.Join(notes, ", "))
		}
		fmt.Println()
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "mailwright",
		Usage:  "Email template authoring backend: fill templates, preview, save, export and share designs",
		Action: serve,
		Flags:  []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and SSE event stream",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve editing tools over MCP stdio",
				Flags:  []cli.Flag{configFlag()},
				Action: mcp,
			},
			{
				Name:   "templates",
				Usage:  "List the template catalog",
				Flags:  []cli.Flag{configFlag()},
				Action: templates,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
