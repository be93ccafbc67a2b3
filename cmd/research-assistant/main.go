package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"research-assistant/api/server"
	"research-assistant/internal/app"
	"research-assistant/internal/config"
	"research-assistant/internal/logging"
	"research-assistant/internal/tui"
	"research-assistant/llm/agents/specialists"
	"research-assistant/llm/services/conversations"
	"research-assistant/llm/tools/shared"
)

var (
	configFile string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "research-assistant",
		Short: "Research Assistant Team - a coordinator and seven specialist agents",
		Long: `A multi-agent research assistant. A coordinator delegates each question to
specialists for web search, crawling, YouTube, email, GitHub, Hacker News and
general knowledge, then synthesizes their findings into one answer.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Serve command
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Long:  `Serve the chat page and its HTTP API on the configured address.`,
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("addr", "a", "", "listen address (overrides server.address)")

	// Chat command
	var chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start the terminal chat",
		Long:  `Open an interactive terminal session with the team.`,
		RunE:  runChat,
	}

	// Ask command
	var askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the team one question",
		Long:  `Send one question to a fresh session and print the answer.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().Bool("raw", false, "stream the answer as plain markdown instead of rendering it")
	askCmd.Flags().Bool("tool-logs", false, "print the tool calls to stderr")

	// Config command
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Manage research assistant configuration files.`,
	}

	var configInitCmd = &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a default configuration file",
		Long:  `Generate a default configuration file with all available options.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}

	var configValidateCmd = &cobra.Command{
		Use:   "validate [filename]",
		Short: "Validate a configuration file",
		Long:  `Validate the syntax and values of a configuration file.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigValidate,
	}

	var configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Print the configuration after defaults, file and environment are applied. Secrets are masked.`,
		RunE:  runConfigShow,
	}

	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)

	// Tools command
	var toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "Inspect and run the specialist tools",
	}

	var toolsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the registered tools",
		RunE:  runToolsList,
	}

	var toolsRunCmd = &cobra.Command{
		Use:   "run [name] [json-input]",
		Short: "Run one tool with a JSON input",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runToolsRun,
	}

	toolsCmd.AddCommand(toolsListCmd, toolsRunCmd)

	// Specialists command
	var specialistsCmd = &cobra.Command{
		Use:   "specialists",
		Short: "List the team members",
		RunE:  runSpecialists,
	}

	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, configCmd, toolsCmd, specialistsCmd)
	return rootCmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// setup loads the configuration and builds the application. Logs go to w.
func setup(ctx context.Context, w io.Writer) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log, w)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := a.Config.Server
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		serverCfg.Address = addr
	}

	srv, err := server.NewServer(serverCfg, server.Deps{
		Sessions:    a.Sessions,
		Tools:       a.Tools,
		Specialists: a.Specialists,
		Model:       a.Config.Model.Name,
		Logger:      a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	a.Logger.Info().Strs("addresses", srv.Addrs()).Str("model", a.Config.Model.Name).Msg("research assistant ready")
	return srv.Run(ctx)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	// The terminal belongs to the chat; logs only surface as errors.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !verbose {
		cfg.Log.Level = "error"
	}
	a, err := app.New(ctx, cfg, logging.New(cfg.Log, io.Discard))
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(ctx, a.Sessions, tui.Options{Model: cfg.Model.Name})
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	raw, _ := cmd.Flags().GetBool("raw")
	showTools, _ := cmd.Flags().GetBool("tool-logs")
	return ask(ctx, a.Sessions, strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr(), raw, showTools)
}

func ask(ctx context.Context, sessions *conversations.Manager, query string, out, errOut io.Writer, raw, showTools bool) error {
	s, err := sessions.Create()
	if err != nil {
		return err
	}
	s.UpdateSettings(conversations.Settings{ShowToolLogs: showTools})

	sink := conversations.SinkFuncs{
		Tool: func(e conversations.ToolLogEntry) { fmt.Fprintf(errOut, "[%s] %s\n", e.Agent, e.Text) },
	}
	if raw {
		sink.Delta = func(text string) { fmt.Fprint(out, text) }
	}

	ans, err := s.Ask(ctx, query, sink)
	if err != nil {
		if ans != nil {
			fmt.Fprintln(errOut, "An error occurred. Please check your API keys and try again.")
		}
		return err
	}
	if raw {
		fmt.Fprintln(out)
		return nil
	}
	if !isTerminal(out) {
		fmt.Fprintln(out, ans.Content)
		return nil
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Fprintln(out, ans.Content)
		return nil
	}
	rendered, err := r.Render(ans.Content)
	if err != nil {
		rendered = ans.Content
	}
	fmt.Fprint(out, rendered)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	filename := "research-assistant.yaml"
	if len(args) > 0 {
		filename = args[0]
	}

	// Create default configuration
	cfg := config.DefaultConfig()

	// Save to file
	if err := cfg.SaveToFile(filename); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Default configuration saved to: %s\n", filename)
	fmt.Fprintf(cmd.OutOrStdout(), "Set OPENAI_API_KEY, RESEND_API_KEY and GITHUB_ACCESS_TOKEN in the environment or a .env file.\n")

	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	filename := args[0]

	cfg, err := config.Load(filename)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file '%s' is valid!\n", filename)
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Not set (those capabilities fail on first use): %s\n", strings.Join(missing, ", "))
	}

	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration details:\n%s\n", cfg.String())
	}

	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	return nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, closer := app.NewToolRegistry(cfg)
	if closer != nil {
		defer closer.Close()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, t := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
	}
	return w.Flush()
}

func runToolsRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, closer := app.NewToolRegistry(cfg)
	if closer != nil {
		defer closer.Close()
	}

	input := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &input); err != nil {
			return fmt.Errorf("invalid JSON input: %w", err)
		}
	}

	ctx, stop := context.WithTimeout(ctx, cfg.Transport.Timeout)
	defer stop()
	result, err := registry.Execute(ctx, &shared.ToolInput{Name: args[0], Data: input})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Text())
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nexecuted in %v\n", result.Stats.ExecutionTime.Round(time.Millisecond))
	}
	if !result.Success {
		return fmt.Errorf("tool %s failed", args[0])
	}
	return nil
}

func runSpecialists(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTOOLS\tDESCRIPTION")
	for _, d := range specialists.Descriptors(specialists.FromConfig(cfg)) {
		tools := strings.Join(d.Tools, ", ")
		if tools == "" {
			tools = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, tools, d.Description)
	}
	return w.Flush()
}
