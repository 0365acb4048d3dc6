// Package main provides the entry point for the narrate CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/config"
	"github.com/dgnsrekt/narrate/internal/segment"
	"github.com/dgnsrekt/narrate/utils"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	outputName string
	apiKeys    []string
	noCache    bool
	subtitles  bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "narrate [SOURCE]",
		Short: "Turn long text into one continuous narration",
		Long: paragraph(
			fmt.Sprintf("\nTurn long text into %s. SOURCE is a text or markdown file, or - for stdin.", keyword("one continuous narration")),
		),
		Example: paragraph("narrate chapter.md\ncat notes.txt | narrate --name notes\nnarrate book.md -k $KEY1 -k $KEY2 --wait-for-recovery"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source provides readable text.
type source struct {
	reader io.ReadCloser
	path   string
}

// sourceFromArg opens a file, or stdin for "-".
func sourceFromArg(arg string) (*source, error) {
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}

	st, err := os.Stat(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory: use narrate watch to narrate every file in it", arg)
	}

	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	u, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, u}, nil
}

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" && cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	if cmd.Flags().Changed("no-cache") {
		viper.Set("cache.enabled", !noCache)
	}

	e, err := config.ParseEnvironment()
	if err != nil {
		return err
	}
	if debug || e.Debug {
		if err := enableDebugLog(); err != nil {
			return err
		}
	}

	// fail fast on a bad config file instead of after reading the source
	if _, err := config.LoadFromViper(viper.GetViper()); err != nil {
		return err
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	var src *source
	switch {
	case len(args) == 1:
		s, err := sourceFromArg(args[0])
		if err != nil {
			return err
		}
		src = s
	default:
		// if stdin is a pipe then use stdin for input. note that you can also
		// explicitly use a - to read from stdin.
		yes, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if !yes {
			return errors.New("missing source: pass a file, or pipe text into narrate")
		}
		src = &source{reader: os.Stdin}
	}
	defer src.reader.Close() //nolint:errcheck

	b, err := io.ReadAll(src.reader)
	if err != nil {
		return fmt.Errorf("unable to read from reader: %w", err)
	}

	cfg, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	name := cfg.Output.Name
	switch {
	case outputName != "":
		name = utils.SafeName(outputName)
	case src.path != "":
		name = utils.NameFromPath(src.path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNarrator(cfg, apiKeys)
	if err != nil {
		return err
	}
	defer n.Close() //nolint:errcheck

	text := prepareText(b, src.path, cfg.Segment.Markdown)
	out, err := n.Narrate(ctx, text, name)
	if err != nil {
		return err
	}

	if subtitles {
		if out.Subtitles, err = n.Transcribe(ctx, out.Result.Path); err != nil {
			return err
		}
	}

	printSummary(os.Stdout, out, term.IsTerminal(int(os.Stdout.Fd())))
	return nil
}

// prepareText strips front matter and, for markdown, the markup.
func prepareText(b []byte, path string, markdown bool) string {
	b = utils.RemoveFrontmatter(b)
	if markdown || utils.IsMarkdownFile(path) {
		return segment.PlainText(string(b))
	}
	return string(b)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringArrayVarP(&apiKeys, "api-key", "k", nil, "synthesis API key, repeat to fail over (prefer NARRATE_API_KEYS)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write a debug log")
	rootCmd.PersistentFlags().StringP("output", "o", ".", "output directory")
	rootCmd.PersistentFlags().BoolP("markdown", "m", false, "strip markdown syntax before narrating")
	rootCmd.PersistentFlags().String("voice", "", "voice name")
	rootCmd.PersistentFlags().String("language", "", "voice language code")
	rootCmd.PersistentFlags().Float64("rate", 0, "speaking rate (0.25 to 4.0)")
	rootCmd.PersistentFlags().IntP("concurrency", "c", 0, "synthesis calls in flight per credential")
	rootCmd.PersistentFlags().Bool("wait-for-recovery", false, "retry an unavailable service forever instead of giving up")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "do not read or write the audio cache")
	rootCmd.PersistentFlags().BoolVar(&subtitles, "subtitles", false, "transcribe the narration into an SRT file")
	rootCmd.Flags().StringVarP(&outputName, "name", "n", "", "output file name (default derived from SOURCE)")

	// Config bindings
	_ = viper.BindPFlag("output.dir", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("segment.markdown", rootCmd.PersistentFlags().Lookup("markdown"))
	_ = viper.BindPFlag("voice.voiceName", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("voice.languageCode", rootCmd.PersistentFlags().Lookup("language"))
	_ = viper.BindPFlag("voice.speakingRate", rootCmd.PersistentFlags().Lookup("rate"))
	_ = viper.BindPFlag("service.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	_ = viper.BindPFlag("retry.waitForRecovery", rootCmd.PersistentFlags().Lookup("wait-for-recovery"))

	if err := config.SetDefaults(viper.GetViper()); err != nil {
		log.Error("Could not register configuration defaults", "error", err)
	}

	rootCmd.AddCommand(configCmd, manCmd, watchCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "narrate")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "narrate")}, dirs...)
	}

	if c := os.Getenv("NARRATE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("narrate")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("narrate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	defaultConfigFile = filepath.Join(dirs[0], "narrate.yml")
	configFile = defaultConfigFile
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
