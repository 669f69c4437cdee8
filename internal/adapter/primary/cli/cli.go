package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"photobooth/internal/config"
	"photobooth/internal/logging"
)

var (
	cfgPath   string
	verbosity int
	logLevel  string
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "photobooth",
		Short:         "Camera booth with countdown overlays and remote triggers",
		Long:          "Shows a live camera preview, counts down with overlays and saves a snapshot on Enter, on a timer or on a remote trigger.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "more logging (-v, -vv, ... up to 4 times)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (error|warn|info|debug|trace)")
	// Without a flag the level stays as it is, so a shell session keeps
	// the level set with its log command.
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		switch {
		case logLevel != "":
			return logging.Apply(logLevel)
		case verbosity > 0:
			logging.SetVerbosity(verbosity)
		}
		return nil
	}

	cmd.AddCommand(
		newServeCmd(),
		newTriggerCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newShellCmd(),
	)

	return cmd
}

// loadConfig reads the config file, or defaults when it does not exist.
func loadConfig() (*config.FileStore, config.Config, error) {
	store, err := config.NewFileStore(cfgPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := store.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	return store, cfg, nil
}

// applyLogging uses the config level unless -v or --log-level was given.
func applyLogging(cfg config.Config) error {
	switch {
	case logLevel != "":
		return logging.Apply(logLevel)
	case verbosity > 0:
		logging.SetVerbosity(verbosity)
		return nil
	default:
		return logging.Apply(cfg.Logging.Level)
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the config file",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigInitCmd(), newConfigKeysCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the configuration or one dotted key (e.g. video.width)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			out, err := config.Get(cfg, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Validate and store one dotted key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.Set(&cfg, args[0], args[1]); err != nil {
				return err
			}
			if _, err := config.Normalize(cfg); err != nil {
				return err
			}
			if err := store.Save(cfg); err != nil {
				return err
			}
			value, _ := config.Get(cfg, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s = %s (%s)\n", args[0], value, store.Path())
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.NewFileStore(cfgPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(store.Path()); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", store.Path())
			}
			if err := store.Save(config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", store.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the settable keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell that runs the other commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveShell(prompt)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "photobooth> ", "shell prompt")
	return cmd
}

func runInteractiveShell(prompt string) error {
	historyFile := filepath.Join(os.TempDir(), "photobooth-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Interactive shell. 'help' for examples, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Println()
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "exit", "quit":
			fmt.Println("Bye!")
			return nil
		case "help":
			printShellHelp()
			continue
		}
		tokens, err := shlex.Split(line)
		if err != nil {
			fmt.Printf("Parse error: %v\n", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "log":
			if err := handleShellLog(tokens[1:]); err != nil {
				fmt.Printf("log: %v\n", err)
			}
			continue
		case "shell":
			fmt.Println("Already in the shell. Enter another command or 'exit'.")
			continue
		case "serve":
			fmt.Println("serve needs the main thread for its window; run it outside the shell.")
			continue
		}

		if err := executeArgs(tokens); err != nil {
			fmt.Printf("command error: %v\n", err)
		}
	}
}

func executeArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

// handleShellLog shows the log level or sets it for the rest of the session.
func handleShellLog(args []string) error {
	switch len(args) {
	case 0:
	case 1:
		if err := logging.Apply(args[0]); err != nil {
			return err
		}
	default:
		return errors.New("usage: log [error|warn|info|debug|trace]")
	}
	fmt.Printf("log level: %s\n", logging.LevelName())
	return nil
}

func printShellHelp() {
	fmt.Println(`Examples:
  trigger                       # take a picture on a running booth
  status                        # show the running booth's status
  config get video              # print a config section
  config set trigger.timeout 5s # change a setting
  config keys                   # list settable keys
  log debug                     # more logging
  log                           # show the log level
  exit / quit                   # leave the shell`)
}
