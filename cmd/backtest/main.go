// Command backtest runs a strategy artifact over historical candles from
// a CSV file and prints the simulation report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"stratbot/internal/backtest"
	"stratbot/internal/strategy"
	"stratbot/internal/utils"
)

func main() {
	var (
		artifactPath = flag.String("artifact", "", "path to the strategy artifact JSON")
		candlesPath  = flag.String("candles", "", "path to the candle CSV file")
		capital      = flag.Float64("capital", 10000, "initial capital for return calculation")
	)
	flag.Parse()

	if *artifactPath == "" || *candlesPath == "" {
		log.Fatal("both -artifact and -candles are required")
	}

	strat, err := strategy.LoadFile(*artifactPath)
	if err != nil {
		log.Fatalf("loading strategy artifact: %v", err)
	}

	candles, err := utils.ReadCandlesFromCSV(*candlesPath)
	if err != nil {
		log.Fatalf("loading candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatal("candle file is empty")
	}

	result, err := backtest.Run(context.Background(), strat, candles, *capital)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	fmt.Printf("Strategy:      %s\n", strat.Name())
	fmt.Printf("Candles:       %d (%s .. %s)\n", len(candles),
		candles[0].OpenTime.Format("2006-01-02"), candles[len(candles)-1].CloseTime.Format("2006-01-02"))
	fmt.Printf("Total trades:  %d (wins %d / losses %d, win rate %.2f%%)\n",
		result.TotalTrades, result.Wins, result.Losses, result.WinRate)
	fmt.Printf("Total PnL:     %.2f\n", result.TotalPnL)
	fmt.Printf("Return:        %.2f%%\n", result.ReturnPercent)
	fmt.Printf("Max drawdown:  %.2f\n", result.MaxDrawdown)
}
