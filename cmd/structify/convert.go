package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Flashl3opard/structify/internal/bridge"
)

var (
	convertRetries int
	convertTable   bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [prompt...]",
	Short: "Convert one prompt and print the JSON array",
	Long: `Sends the prompt upstream once (plus --retries transient retries) and
prints the recovered array. Use "-" to read the prompt from stdin.

Example:
  structify convert "monthly revenue for Q1, with last year as value2"
  structify convert --table --retries 2 - < prompt.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		b, err := bridge.New(cfg.Bridge(), logger)
		if err != nil {
			return err
		}
		defer b.Close()

		policy := cfg.Retry()
		if cmd.Flags().Changed("retries") {
			policy.MaxRetries = convertRetries
		}
		conv := bridge.WithRetry(b, policy, logger)

		return runConvert(cmd.Context(), conv, prompt, convertTable, cmd.OutOrStdout())
	},
}

func init() {
	convertCmd.Flags().IntVar(&convertRetries, "retries", 0, "retry transient upstream failures up to n times")
	convertCmd.Flags().BoolVar(&convertTable, "table", false, "print name/value/value2 as a table")
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	return strings.Join(args, " "), nil
}

func runConvert(ctx context.Context, conv bridge.Converter, prompt string, asTable bool, out io.Writer) error {
	records, err := conv.Convert(ctx, prompt)
	if err != nil {
		be := bridge.AsError(err)
		logger.Debug("convert failed", zap.String("kind", string(be.Kind)), zap.Error(err))
		msg := be.Message
		if be.Details != "" {
			msg += ": " + be.Details
		}
		return fmt.Errorf("%s (%s)", msg, be.Kind)
	}

	if asTable {
		rows, err := records.Typed()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, renderTable(rows))
		return err
	}

	encoded, err := records.Encode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

func renderTable(rows []bridge.DataRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "VALUE", "VALUE2")

	for _, r := range rows {
		value2 := "-"
		if r.Value2 != nil {
			value2 = strconv.FormatFloat(*r.Value2, 'f', -1, 64)
		}
		t.Row(r.Name, strconv.FormatFloat(r.Value, 'f', -1, 64), value2)
	}
	return t.String()
}

// stdinOrFile opens path, treating "-" as stdin.
func stdinOrFile(stdin io.Reader, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}
