package main

import (
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"pitchflow-api/config"
	"pitchflow-api/services"
)

// payout-sweep releases every scheduled payout whose hold window has expired.
// Run it from cron, or with -interval to keep it resident.
func main() {
	interval := flag.Duration("interval", 0, "run continuously, sweeping at this interval (e.g. 15m); run once when unset")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logFile, _ := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	config.InitDB()

	hold := services.NewPayoutHoldService(config.LoadPayoutHoldConfig())
	payouts := services.NewPayoutService(config.DB, hold)

	sweep := func() {
		released, err := payouts.ProcessDuePayouts(time.Now())
		if err != nil {
			log.Printf("payout sweep failed: %v", err)
			return
		}
		log.Printf("payout sweep released %d payouts", released)
	}

	sweep()
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		sweep()
	}
}
