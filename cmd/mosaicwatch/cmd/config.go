package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/output"
)

// ProjectConfigName is the file 'config init --project' writes.
const ProjectConfigName = ".mosaicwatch.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the mosaicwatch configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/mosaicwatch/config.yaml)
  3. Project config (.mosaicwatch.yaml in the working directory)
  4. Environment variables (MOSAICWATCH_*)
  5. Command-line flags`,
		Example: `  # Create user config with the defaults
  mosaicwatch config init

  # Show effective configuration (merged from all sources)
  mosaicwatch config show

  # Print user config file path
  mosaicwatch config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		project bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Write a configuration file containing the defaults.

By default the user configuration is created at ~/.config/mosaicwatch/config.yaml
(or $XDG_CONFIG_HOME/mosaicwatch/config.yaml). With --project the file is
written as .mosaicwatch.yaml in the current directory instead.

An existing file is only replaced with --force; the old file is kept as .bak.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force, project)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write "+ProjectConfigName+" in the current directory")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources.

Use --source to show a single layer: user, project or defaults.`,
		Example: `  # Show merged configuration
  mosaicwatch config show

  # Show as JSON
  mosaicwatch config show --json

  # Show only user config
  mosaicwatch config show --source user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, project, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Long:  `Print the path to the user configuration file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force, project bool) error {
	out := output.New(cmd.OutOrStdout(), noColor)

	path := config.GetUserConfigPath()
	if project {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, ProjectConfigName)
	}

	if fileExists(path) && !force {
		out.Warning("Configuration already exists")
		out.Field("Location", path)
		out.Newline()
		out.Info("Use --force to replace it with the defaults (a .bak copy is kept)")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Field("Location", path)
	out.Newline()
	out.Info("Edit the file, then run 'mosaicwatch config show' to verify")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout(), noColor)

	var (
		cfg        *config.Config
		sourceDesc string
	)

	switch source {
	case "merged":
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		sourceDesc = "merged (defaults + user + project + env)"

	case "user":
		path := config.GetUserConfigPath()
		if !config.UserConfigExists() {
			out.Warning("No user configuration file found")
			out.Field("Expected at", path)
			out.Info("Run 'mosaicwatch config init' to create one")
			return nil
		}
		var err error
		if cfg, err = readConfigFile(path); err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("user (%s)", path)

	case "project":
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path := config.ProjectConfigPath(cwd)
		if path == "" {
			out.Warning("No project configuration file found")
			out.Field("Expected at", filepath.Join(cwd, ProjectConfigName))
			out.Info("Run 'mosaicwatch config init --project' to create one")
			return nil
		}
		if cfg, err = readConfigFile(path); err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("project (%s)", path)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, project, defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out.Info("Configuration source: " + sourceDesc)
	out.Newline()
	_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

// readConfigFile reads one file on top of the defaults, without the other
// layers.
func readConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg := config.NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
