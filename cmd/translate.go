package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"longdoc-translator/internal/backfill"
	"longdoc-translator/internal/longdoc"
	"longdoc-translator/internal/pdfload"
	"longdoc-translator/internal/provider"
	"longdoc-translator/internal/store"
)

var (
	inputFile  string
	outputFile string
	sourceLang string
	targetLang string

	backend    string
	maxRetries int
	noProtect  bool
	noCache    bool
	noBackfill bool
	fontName   string
	windowSize int
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a PDF document",
	Long: `Translate a PDF document block by block.

The source PDF is parsed into typed text blocks. Formula spans are replaced
with placeholder tokens before translation and restored afterwards. Glossary
terms from the database are enforced across the document. The translated
text is overlaid onto a copy of the source PDF, and a quality report is
written next to it.

Backends:
  openai  direct OpenAI-compatible HTTP client (default)
  eino    eino chat model abstraction`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		loader := pdfload.NewLoader()
		doc, err := loader.Load(inputFile)
		if err != nil {
			return fmt.Errorf("failed to load PDF: %w", err)
		}

		db, err := store.New(viper.GetString("db"))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		glossary, err := db.GlossaryMap(ctx, sourceLang, targetLang)
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}

		capability, err := buildCapability(ctx)
		if err != nil {
			return err
		}
		if !noCache {
			capability = db.WrapCapability(capability)
		}

		svc, err := longdoc.NewService(longdoc.ServiceConfig{Translate: capability})
		if err != nil {
			return err
		}

		opts := longdoc.DefaultTranslationOptions(targetLang)
		opts.ServiceID = backend
		opts.SourceLanguage = sourceLang
		opts.MaxRetriesPerBlock = maxRetries
		opts.EnableFormulaProtection = !noProtect
		opts.Glossary = glossary
		opts.TermWindowPages = windowSize

		result, err := svc.TranslateDocument(ctx, doc, opts)
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}

		if !noBackfill {
			exporter := backfill.NewExporter()
			exporter.SetFont(fontName)
			metrics, err := exporter.Export(inputFile, outputFile, result.Pages)
			if err != nil {
				return fmt.Errorf("failed to write output PDF: %w", err)
			}
			result.Report.Backfill = metrics
		} else {
			if err := writeStructuredOutput(outputFile, result); err != nil {
				return err
			}
		}

		reportPath := strings.TrimSuffix(outputFile, ".pdf") + ".report.json"
		if err := writeReport(reportPath, result.Report); err != nil {
			return err
		}

		fmt.Printf("Translated %d blocks (%d skipped, %d failed) across %d pages\n",
			result.Report.TranslatedBlocks,
			result.Report.SkippedBlocks,
			len(result.Report.FailedBlocks),
			len(result.Pages))
		fmt.Printf("Output: %s\nReport: %s\n", outputFile, reportPath)
		return nil
	},
}

// buildCapability selects the translation backend from the --backend flag.
func buildCapability(ctx context.Context) (longdoc.TranslateCapability, error) {
	apiKey := viper.GetString("api_key")
	model := viper.GetString("model")
	baseURL := viper.GetString("base_url")

	switch backend {
	case "openai":
		client, err := provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: baseURL,
		})
		if err != nil {
			return nil, err
		}
		return client.Capability(), nil
	case "eino":
		translator, err := provider.NewEinoTranslator(ctx, provider.EinoConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: baseURL,
		})
		if err != nil {
			return nil, err
		}
		return translator.Capability(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want openai or eino)", backend)
	}
}

// writeStructuredOutput dumps the translated pages as JSON when PDF
// backfill is disabled.
func writeStructuredOutput(path string, result *longdoc.TranslationResult) error {
	data, err := json.MarshalIndent(result.Pages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func writeReport(path string, report *longdoc.QualityReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input PDF to translate (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output PDF path (required)")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code (required)")

	translateCmd.Flags().StringVar(&backend, "backend", "openai", "Translation backend (openai, eino)")
	translateCmd.Flags().IntVar(&maxRetries, "max-retries", longdoc.DefaultMaxRetriesPerBlock, "Retries per block after the first attempt")
	translateCmd.Flags().BoolVar(&noProtect, "no-formula-protection", false, "Translate formula spans as plain text")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable block translation memory")
	translateCmd.Flags().BoolVar(&noBackfill, "no-backfill", false, "Write structured JSON instead of a backfilled PDF")
	translateCmd.Flags().StringVar(&fontName, "font", "", "Overlay font name for the output PDF")
	translateCmd.Flags().IntVar(&windowSize, "term-window", 0, "Terminology consistency window in pages (0 = default)")

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("output")
	translateCmd.MarkFlagRequired("target")
}
