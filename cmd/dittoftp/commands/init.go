package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoftp/internal/cli/prompt"
	"github.com/marmos91/dittoftp/pkg/auth"
	"github.com/marmos91/dittoftp/pkg/config"
)

var (
	initForce    bool
	initDefaults bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a dittoftp configuration file interactively.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittoftp/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize interactively at the default location
  dittoftp init

  # Initialize with custom path
  dittoftp init --config /etc/dittoftp/config.yaml

  # Write defaults without prompting
  dittoftp init --defaults

  # Force overwrite existing config
  dittoftp init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "Write default configuration without prompting")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		overwrite, err := prompt.Confirm(fmt.Sprintf("Config file %s exists, overwrite", configPath), false)
		if err != nil || !overwrite {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.GetDefaultConfig()

	if !initDefaults {
		if err := promptConfig(cfg); err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review the configuration file")
	fmt.Println("  2. Start the server with: dittoftp start")
	fmt.Printf("  3. Or specify custom config: dittoftp start --config %s\n", configPath)

	return nil
}

// promptConfig walks through the interactive questions, mutating cfg in place.
func promptConfig(cfg *config.Config) error {
	rootDir, err := prompt.Input("Root directory to serve", cfg.Server.RootDir)
	if err != nil {
		return err
	}
	cfg.Server.RootDir = rootDir

	port, err := prompt.InputPort("Control port", cfg.Server.Port)
	if err != nil {
		return err
	}
	cfg.Server.Port = port

	allowAnon, err := prompt.Confirm("Allow anonymous logins", true)
	if err != nil {
		return err
	}
	cfg.Server.AllowAnonymous = allowAnon

	if allowAnon {
		anonWrite, err := prompt.Confirm("Allow anonymous uploads", false)
		if err != nil {
			return err
		}
		cfg.Server.AnonymousWrite = anonWrite
	}

	for {
		addUser, err := prompt.Confirm("Add a named user account", false)
		if err != nil {
			return err
		}
		if !addUser {
			break
		}

		username, err := prompt.InputRequired("Username")
		if err != nil {
			return err
		}
		password, err := prompt.Password("Password")
		if err != nil {
			return err
		}
		readOnly, err := prompt.Confirm("Read-only account", false)
		if err != nil {
			return err
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		cfg.Users = append(cfg.Users, config.UserConfig{
			Username:     username,
			PasswordHash: hash,
			ReadOnly:     readOnly,
		})
	}

	return nil
}
