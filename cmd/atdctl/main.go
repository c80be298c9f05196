// atdctl runs the ATD integration jobs from a terminal or cron, in-process
// against the configured store. Each command performs a single operation,
// making it composable for scripts.
//
// Commands:
//
//	atdctl sweep
//	atdctl scrub -type wheel|tire [-page N]
//	atdctl batches -type wheel|tire
//	atdctl sync -type wheel|tire -batch N [-batches N]
//	atdctl order -order ID -product ID -item ID
//	atdctl migrate
//
// Configuration is read the same way as the service (CONFIG_FILE, env,
// .env, Secret Manager in production).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"atd-sync/internal/app"
	"atd-sync/internal/config"
	"atd-sync/internal/inventory"
	"atd-sync/internal/model"
)

// Global flags (apply to all commands)
var (
	quiet   bool
	noColor bool
	verbose bool
	asJSON  bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow, colorCyan, colorGray = "", "", "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "sweep":
		runSweep(args)
	case "scrub":
		runScrub(args)
	case "batches":
		runBatches(args)
	case "sync":
		runSync(args)
	case "order":
		runOrder(args)
	case "migrate":
		runMigrate(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `atdctl - ATD distributor integration jobs

Usage:
  atdctl <command> [options]

Commands:
  sweep     Pull tracking numbers and complete shipped orders
  scrub     Check one page of products against ATD, hide missing ones
  batches   List scrub pages for a product type
  sync      Run one batch of the full inventory update
  order     Place an ATD order for one order line
  migrate   Apply database migrations (requires DATABASE_URL)

Examples:
  # Nightly tracking sweep
  atdctl sweep

  # Scrub the second page of tires
  atdctl scrub -type tire -page 2

  # Update wheels in 10 batches, first batch
  atdctl sync -type wheel -batch 1 -batches 10

  # Order line 55 of order 100
  atdctl order -order 100 -product 7 -item 55

Run 'atdctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags every command accepts.
func commonFlags(fs *flag.FlagSet) {
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show service logs")
	fs.BoolVar(&asJSON, "json", false, "Print the raw result as JSON")
}

func parseFlags(fs *flag.FlagSet, args []string, usage string) {
	commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atdctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// SETUP
// =============================================================================

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cliLogger discards service logs unless -v is set.
func cliLogger(cfg *config.Config) *slog.Logger {
	if verbose {
		return app.NewLogger(cfg.Environment, cfg.LogLevel)
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadApp(ctx context.Context) *app.App {
	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}
	a, err := app.New(ctx, cfg, cliLogger(cfg))
	if err != nil {
		fatal("Starting: %v", err)
	}
	return a
}

// =============================================================================
// SWEEP COMMAND
// =============================================================================

func runSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	parseFlags(fs, args, "sweep [options]")

	ctx, stop := signalContext()
	defer stop()
	a := loadApp(ctx)
	defer a.Close()

	if !quiet && !asJSON {
		a.Sweeper.Progress = func(line string) {
			fmt.Printf("%s  %s%s\n", colorGray, line, colorReset)
		}
	}

	summary, err := a.Sweeper.Run(ctx)
	if err != nil {
		failWith("Sweep failed", err)
	}
	if asJSON {
		printResult(summary)
		return
	}
	if quiet {
		fmt.Println(summary.OrdersCompleted)
		return
	}
	printSuccess("Sweep %s finished", summary.RunID)
	fmt.Printf("  Checked:             %d\n", summary.Checked)
	fmt.Printf("  Tracking updated:    %d\n", summary.TrackingUpdated)
	fmt.Printf("  Tracking registered: %d\n", summary.TrackingRegistered)
	fmt.Printf("  Orders completed:    %s%d%s\n", colorCyan, summary.OrdersCompleted, colorReset)
	if summary.TrackingPublished+summary.CompletionsPublished > 0 {
		fmt.Printf("  Storefront updates:  %d tracking, %d completions\n", summary.TrackingPublished, summary.CompletionsPublished)
	}
	if summary.PublishErrorCount > 0 {
		printWarning("%d storefront calls failed; retried on the next sweep", summary.PublishErrorCount)
	}
	if summary.APIErrorCount > 0 {
		printWarning("%d ATD lookups failed", summary.APIErrorCount)
	}
}

// =============================================================================
// SCRUB / BATCHES COMMANDS
// =============================================================================

func runScrub(args []string) {
	fs := flag.NewFlagSet("scrub", flag.ExitOnError)
	var kindFlag string
	var page int
	fs.StringVar(&kindFlag, "type", "wheel", "Product type: wheel or tire")
	fs.IntVar(&page, "page", 1, "1-based page of products")
	parseFlags(fs, args, "scrub -type TYPE [-page N] [options]")

	kind := parseKind(kindFlag)
	if page < 1 {
		fatal("-page must be at least 1")
	}

	ctx, stop := signalContext()
	defer stop()
	a := loadApp(ctx)
	defer a.Close()

	res, err := a.Scrubber.Scrub(ctx, kind, page)
	if err != nil {
		failWith("Scrub failed", err)
	}
	if asJSON {
		printResult(res)
		return
	}
	if quiet {
		for _, sku := range res.OutOfStockSKUs {
			fmt.Println(sku)
		}
		return
	}
	printSuccess("%s", res.Message)
	fmt.Printf("  Processed:    %d\n", res.ProcessedCount)
	fmt.Printf("  Out of stock: %s%d%s\n", colorCyan, res.OutOfStockCount, colorReset)
	for _, sku := range res.OutOfStockSKUs {
		fmt.Printf("    %s\n", sku)
	}
	if res.APIErrorCount > 0 {
		printWarning("%d ATD lookups failed", res.APIErrorCount)
	}
}

func runBatches(args []string) {
	fs := flag.NewFlagSet("batches", flag.ExitOnError)
	var kindFlag string
	fs.StringVar(&kindFlag, "type", "wheel", "Product type: wheel or tire")
	parseFlags(fs, args, "batches -type TYPE [options]")

	kind := parseKind(kindFlag)

	ctx, stop := signalContext()
	defer stop()
	a := loadApp(ctx)
	defer a.Close()

	batches, err := a.Scrubber.Batches(ctx, kind)
	if err != nil {
		failWith("Listing batches failed", err)
	}
	if asJSON {
		printResult(batches)
		return
	}
	if len(batches) == 0 {
		printInfo("No %s products", kind)
		return
	}
	for _, b := range batches {
		if quiet {
			fmt.Println(b.Page)
			continue
		}
		fmt.Printf("  %s%3d%s  %s\n", colorCyan, b.Page, colorReset, inventory.BatchLabel(kind, b))
	}
}

// =============================================================================
// SYNC COMMAND
// =============================================================================

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var kindFlag string
	var batch, batches int
	fs.StringVar(&kindFlag, "type", "wheel", "Product type: wheel or tire")
	fs.IntVar(&batch, "batch", 0, "1-based batch number (required)")
	fs.IntVar(&batches, "batches", inventory.DefaultBatches, "Number of batches the catalog is split into")
	parseFlags(fs, args, "sync -type TYPE -batch N [-batches N] [options]")

	kind := parseKind(kindFlag)
	if batch < 1 {
		fs.Usage()
		os.Exit(1)
	}
	if batches < 1 || batch > batches {
		fatal("-batch must be between 1 and -batches (%d)", batches)
	}

	ctx, stop := signalContext()
	defer stop()
	a := loadApp(ctx)
	defer a.Close()

	a.Syncer.Batches = batches
	if !quiet && !asJSON {
		a.Syncer.OnProduct = func(p *model.Product, c inventory.Change) {
			switch {
			case c.Absent:
				fmt.Printf("%s  %s not carried by ATD%s\n", colorGray, p.SKU, colorReset)
			case c.PriceErr != nil:
				printWarning("%s: %v", p.SKU, c.PriceErr)
			case c.Quote != nil:
				fmt.Printf("%s  %s priced %s%s\n", colorGray, p.SKU, p.Price.StringFixed(2), colorReset)
			}
		}
	}

	res, err := a.Syncer.Sync(ctx, kind, batch)
	if err != nil {
		failWith("Sync failed", err)
	}
	if asJSON {
		printResult(res)
		return
	}
	if quiet {
		fmt.Println(res.UpdatedCount)
		return
	}
	printSuccess("Batch %d/%d of %s done (run %s)", res.Batch, batches, res.Kind, res.RunID)
	fmt.Printf("  Products:     %d\n", res.ProductCount)
	fmt.Printf("  Updated:      %d\n", res.UpdatedCount)
	fmt.Printf("  Priced:       %d\n", res.PricedCount)
	fmt.Printf("  Out of stock: %s%d%s\n", colorCyan, len(res.OutOfStockSKUs), colorReset)
	if res.APIErrorCount > 0 {
		printWarning("%d ATD lookups failed", res.APIErrorCount)
	}
}

// =============================================================================
// ORDER COMMAND
// =============================================================================

func runOrder(args []string) {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	var orderID, productID, itemID int64
	fs.Int64Var(&orderID, "order", 0, "Store order ID (required)")
	fs.Int64Var(&productID, "product", 0, "Product ID on the line (required)")
	fs.Int64Var(&itemID, "item", 0, "Order line ID (required)")
	parseFlags(fs, args, "order -order ID -product ID -item ID [options]")

	if orderID <= 0 || productID <= 0 || itemID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signalContext()
	defer stop()
	a := loadApp(ctx)
	defer a.Close()

	res, err := a.Orders.Place(ctx, orderID, productID, itemID)
	if err != nil {
		failWith("Order failed", err)
	}
	if asJSON {
		printResult(res)
		return
	}
	if quiet {
		fmt.Println(res.ATDOrderID)
		return
	}
	printSuccess("%s", res.Message)
	fmt.Printf("  ATD order: %s%s%s\n", colorCyan, res.ATDOrderID, colorReset)
	fmt.Printf("  Edit:      %s\n", res.RedirectURL)
}

// =============================================================================
// MIGRATE COMMAND
// =============================================================================

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	parseFlags(fs, args, "migrate [options]")

	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fatal("DATABASE_URL is required for migrate")
	}

	st, err := app.OpenStore(ctx, cfg, cliLogger(cfg))
	if err != nil {
		fatal("Migrating: %v", err)
	}
	defer st.Close()
	printSuccess("Database schema is up to date")
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func parseKind(s string) model.ProductKind {
	kind, err := model.ParseKind(s)
	if err != nil {
		fatal("%v", err)
	}
	return kind
}

func printResult(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("Encoding result: %v", err)
	}
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

// failWith prints the error code and message of a service error and exits.
func failWith(what string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Code == model.CodeInternal {
			msg = err.Error()
		}
		fatal("%s: %s (%s)", what, msg, apiErr.Code)
	}
	fatal("%s: %v", what, err)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
