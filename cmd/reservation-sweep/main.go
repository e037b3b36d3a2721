// reservation-sweep expires overdue stock reservations and returns their
// held quantity to available. Run it from cron; reservations with no
// expiry are never touched.
//
// Usage:
//
//	go run ./cmd/reservation-sweep
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	expired, err := models.ExpireDueReservations(context.Background(), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reservation sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("reservation sweep complete: %d expired\n", expired)
}
