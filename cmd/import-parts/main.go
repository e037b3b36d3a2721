// import-parts bulk loads the part master from an xlsx sheet.
// Expected columns: Part Number | Description | Unit | Part Type | Standard Cost.
// Existing part numbers are updated, new ones created.
//
// Usage:
//
//	go run ./cmd/import-parts -file parts.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

func main() {
	filePath := flag.String("file", "", "Required: path to the xlsx file")
	flag.Parse()

	if strings.TrimSpace(*filePath) == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	defer f.Close()

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "import-parts")

	created, updated, err := models.ImportPartsFromXlsx(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("part import complete: %d created, %d updated\n", created, updated)
}
