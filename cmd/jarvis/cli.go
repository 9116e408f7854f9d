package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "jarvis",
		Short: "AI business assistant with per-user memory over Telegram, SMS, and Discord",
		Long: strings.TrimSpace(`jarvis relays messages between chat platforms and an LLM completion
service, remembering who each user is across sessions: recent conversation,
distilled facts, and a running summary.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newPurgeCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.jarvis configuration",
		Example: "  jarvis onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the bot: channel adapters, reply pipeline, and HTTP gateway",
		Long:    "Start the configured platform adapters, the memory-backed reply pipeline, the SMS webhook server, and the metrics endpoint.",
		Example: "  jarvis gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newChatCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "chat",
		Short:   "Chat with the assistant locally",
		Long:    "Run an interactive local session through the same reply pipeline the platform adapters use.",
		Example: "  jarvis chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, provider, and memory store readiness",
		Example: "  jarvis status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "purge <userId>",
		Short:   "Delete all stored memory for one user",
		Long:    "Remove a user's profile, conversation history, and facts. The userId has the form platform:nativeId, e.g. telegram:123456.",
		Example: "  jarvis purge telegram:123456",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(args[0])
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  jarvis version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
