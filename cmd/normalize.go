// File: cmd/normalize.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/normalize"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results/providers"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/runstore"
)

// normalizeOptions holds the flags of the normalize command.
type normalizeOptions struct {
	Input       string
	Scanner     string
	Language    string
	CodeRoot    string
	CVSSMapping string

	// RunDir is the destination directory. When empty and OutputRoot is set,
	// the directory is derived from the run's key.
	RunDir     string
	OutputRoot string
	Model      string
	Key        schemas.GroupKey
	RunNumber  int
}

// newNormalizeCmd creates and configures the `normalize` command.
func newNormalizeCmd() *cobra.Command {
	var opts normalizeOptions

	normalizeCmd := &cobra.Command{
		Use:   "normalize <scanner-output|->",
		Short: "Convert one scanner payload into a run's results.json",
		Long: `Parses the raw output of bandit (JSON), semgrep (JSON) or cppcheck (XML v2)
and writes the normalized findings as a results.json document. The document is
printed to stdout unless a run directory is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cvss-mapping") {
				opts.CVSSMapping = cfg.Analysis().CVSSMapping
			}
			return runNormalize(observability.GetLogger(), cmd.InOrStdin(), cmd.OutOrStdout(), opts, time.Now())
		},
	}

	flags := normalizeCmd.Flags()
	flags.StringVarP(&opts.Language, "language", "l", "", "Language of the scanned code (required)")
	flags.StringVarP(&opts.Scanner, "scanner", "s", "", "Scanner that produced the payload; derived from --language when unset")
	flags.StringVar(&opts.CodeRoot, "code-root", "", "Directory the scanner ran in; absolute paths under it become relative")
	flags.StringVar(&opts.CVSSMapping, "cvss-mapping", "", "JSON file mapping CWE ids to CVSS base scores")
	flags.StringVar(&opts.RunDir, "run-dir", "", "Write results.json into this directory")
	flags.StringVar(&opts.OutputRoot, "output-root", "", "Write into the run directory under this results tree")
	flags.StringVar(&opts.Model, "model", "", "Model directory level of the results tree")
	flags.StringVar(&opts.Key.Domain, "domain", "", "Task domain")
	flags.StringVar(&opts.Key.TaskID, "task", "", "Task id")
	flags.StringVar(&opts.Key.PromptType, "prompt-type", "", "Prompt variant")
	flags.IntVar(&opts.RunNumber, "run", 1, "Run number")
	_ = normalizeCmd.MarkFlagRequired("language")
	normalizeCmd.MarkFlagsMutuallyExclusive("run-dir", "output-root")

	return normalizeCmd
}

// runNormalize contains the core, testable logic of the normalize command.
func runNormalize(logger *zap.Logger, in io.Reader, out io.Writer, opts normalizeOptions, at time.Time) error {
	raw, err := readPayload(in, opts.Input)
	if err != nil {
		return err
	}

	cwe := providers.NewInMemoryCWEProvider()
	if opts.CVSSMapping != "" {
		if _, err := cwe.LoadCVSSMapping(opts.CVSSMapping); err != nil {
			return err
		}
	}
	registry := normalize.NewRegistry(normalize.Options{CodeRoot: opts.CodeRoot, CWE: cwe})

	var n normalize.Normalizer
	if opts.Scanner != "" {
		n, err = registry.ForScanner(opts.Scanner)
	} else {
		n, err = registry.ForLanguage(opts.Language)
	}
	if err != nil {
		return err
	}

	dir, err := opts.destination()
	if err != nil {
		return err
	}

	findings, err := n.Normalize(raw, opts.Language)
	if err != nil {
		if dir != "" && normalize.IsScanParseError(err) {
			path, werr := runstore.WriteFailedRunDocument(dir, opts.Language, err.Error(), at)
			if werr != nil {
				return fmt.Errorf("%w (and failed to record the run: %v)", err, werr)
			}
			logger.Warn("Recorded run as unparseable",
				zap.String("scanner", n.Scanner()),
				zap.String("path", path),
				zap.Error(err))
		}
		return err
	}

	if dir == "" {
		data, err := json.MarshalIndent(runstore.NewRunDocument(opts.Language, findings, at), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode run document: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	path, err := runstore.WriteRunDocument(dir, opts.Language, findings, at)
	if err != nil {
		return err
	}
	logger.Info("Normalized scanner output",
		zap.String("scanner", n.Scanner()),
		zap.Int("findings", len(findings)),
		zap.String("path", path))
	fmt.Fprintf(out, "Wrote %d findings to %s\n", len(findings), path)
	return nil
}

// destination resolves the run directory, or "" when writing to stdout.
func (o normalizeOptions) destination() (string, error) {
	if o.RunDir != "" || o.OutputRoot == "" {
		return o.RunDir, nil
	}
	key := o.Key
	key.Language = o.Language
	if key.Domain == "" || key.TaskID == "" || key.PromptType == "" {
		return "", fmt.Errorf("--domain, --task and --prompt-type are required with --output-root")
	}
	if o.RunNumber < 1 {
		return "", fmt.Errorf("run number must be positive, got %d", o.RunNumber)
	}
	return runstore.RunDir(o.OutputRoot, o.Model, key, o.RunNumber), nil
}

func readPayload(in io.Reader, name string) ([]byte, error) {
	if name == "-" {
		raw, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read scanner output from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read scanner output: %w", err)
	}
	return raw, nil
}
