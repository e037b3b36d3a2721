// count-sheet exports a cycle count as an xlsx sheet for the counters, and
// imports the filled sheet back. The sheet's count id cell must match the
// -count flag on import; sheets from another count are rejected.
//
// Usage:
//
//	go run ./cmd/count-sheet -export -count 12 -file count12.xlsx
//	go run ./cmd/count-sheet -import -count 12 -file count12.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
	"github.com/bgrlango/WMS-Manufacture-sub000/workflow"
)

func main() {
	doExport := flag.Bool("export", false, "Write the count sheet to -file")
	doImport := flag.Bool("import", false, "Load counted quantities from -file")
	countId := flag.Int("count", 0, "Required: cycle count id")
	filePath := flag.String("file", "", "Required: xlsx path")
	userId := flag.Int("user", 1, "User id recorded as the counter on import")
	flag.Parse()

	if *doExport == *doImport {
		fmt.Fprintln(os.Stderr, "pass exactly one of -export or -import")
		os.Exit(1)
	}
	if *countId <= 0 {
		fmt.Fprintln(os.Stderr, "-count is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*filePath) == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, *userId)

	if *doExport {
		f, err := os.Create(*filePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *filePath, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := workflow.ExportCycleCountSheet(ctx, *countId, f); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("count sheet written to %s\n", *filePath)
		return
	}

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	defer f.Close()
	recorded, err := workflow.ImportCycleCountResults(ctx, *countId, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("count sheet imported: %d rows recorded\n", recorded)
}
