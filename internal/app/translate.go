package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ownlingo/ownlingo/internal/cli"
	"github.com/ownlingo/ownlingo/internal/config"
	"github.com/ownlingo/ownlingo/internal/language"
	"github.com/ownlingo/ownlingo/internal/logging"
	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/providers"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	from := fs.String("from", "", "Source locale (for example: en)")
	to := fs.String("to", "", "Target locale (for example: de)")
	preserveHTML := fs.Bool("html", false, "Preserve HTML markup in the text")
	preserveLiquid := fs.Bool("liquid", false, "Preserve Liquid template tags in the text")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "translate requires one text argument, or - to read stdin")
		printTranslateUsage()
		return 2
	}

	sourceLocale := language.NormalizeTag(*from)
	targetLocale := language.NormalizeTag(*to)
	if sourceLocale == "" || targetLocale == "" {
		fmt.Fprintln(os.Stderr, "--from and --to are required and must be valid locale tags")
		return 2
	}
	if sourceLocale == targetLocale {
		fmt.Fprintln(os.Stderr, "--to must differ from --from")
		return 2
	}

	text := fs.Arg(0)
	if text == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			return 1
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "translate text must not be empty")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	chain, err := providers.BuildChain(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build provider chain: %v\n", err)
		return 1
	}

	resp, err := chain.Translate(ctx, &translator.TranslationRequest{
		Text:           text,
		SourceLocale:   sourceLocale,
		TargetLocale:   targetLocale,
		PreserveHTML:   *preserveHTML,
		PreserveLiquid: *preserveLiquid,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Translate failed: %v\n", err)
		return 1
	}

	fmt.Println(resp.TranslatedText)
	fmt.Fprintf(os.Stderr, "provider=%s model=%s tokens=%d duration=%s\n",
		resp.Provider, resp.Model, resp.TokensUsed.TotalTokens, resp.Duration.Round(time.Millisecond))
	return 0
}

func printTranslateUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  ownlingo translate <text | -> --from en --to de [--html] [--liquid] [--env .env] [--timeout 2m]")
}
