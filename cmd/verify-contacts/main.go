// Command verify-contacts validates a contact CSV the way the import
// endpoint would, without touching any backend. Useful for checking a
// file before handing it to the platform.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/adamchain/heyway-core/internal/importer"
	"github.com/adamchain/heyway-core/internal/queue"
)

func main() {
	requireDate := flag.Bool("require-date", false, "require a parseable reference date on every record")
	dateField := flag.String("date-field", "", "field name checked when -require-date is set")
	showErrors := flag.Int("show-errors", 20, "maximum validation errors to print (0 = all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: verify-contacts [flags] <contacts.csv>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	records, err := importer.ParseCSV(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot parse %s: %v\n", path, err)
		os.Exit(1)
	}

	res := importer.Validate(records, importer.Options{
		RequireReferenceDate: *requireDate,
		ReferenceDateField:   *dateField,
	})

	fmt.Println("=========================================================")
	fmt.Println(" Contact Import Verification")
	fmt.Println("=========================================================")
	fmt.Printf("File:           %s\n", path)
	fmt.Printf("Total records:  %d\n", res.Summary.Total)
	fmt.Printf("Valid:          %d\n", res.Summary.Valid)
	fmt.Printf("Invalid:        %d\n", res.Summary.Invalid)
	fmt.Printf("Will import:    %d\n", res.Summary.WillImport)
	fmt.Printf("Will skip:      %d\n", res.Summary.WillSkip)
	fmt.Println("---------------------------------------------------------")

	if len(res.Errors) > 0 {
		limit := *showErrors
		if limit <= 0 || limit > len(res.Errors) {
			limit = len(res.Errors)
		}
		fmt.Printf("First %d of %d errors:\n", limit, len(res.Errors))
		for _, e := range res.Errors[:limit] {
			fmt.Printf("  row %-6d %-24s %s\n", e.Index+1, e.Code, e.Message)
		}
		fmt.Println("---------------------------------------------------------")
	}

	w := queue.EstimateWindow(res.Summary.WillImport,
		queue.DefaultCallsPerSecond, queue.DefaultConcurrencyCap)
	fmt.Printf("Estimated dialing window: %ds", w.Seconds)
	if w.Hours > 0 {
		fmt.Printf(" (~%d hour(s))", w.Hours)
	} else if w.Minutes > 0 {
		fmt.Printf(" (~%d minute(s))", w.Minutes)
	}
	fmt.Println()
	if msg := queue.TimingMessage(res.Summary.WillImport); msg != "" {
		fmt.Println(msg)
	}

	if res.Summary.Invalid > 0 {
		os.Exit(1)
	}
	fmt.Println("✓ All records importable")
}
