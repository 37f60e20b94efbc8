package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/honeywatch/internal/domain"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/events", "Target URL for ingestion")
	apiKey := flag.String("api-key", "", "API Key for authentication")
	file := flag.String("file", "", "Replay events from an export file or a JSON-lines honeypot log instead of generating sessions")
	concurrency := flag.Int("c", 4, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the run")
	rps := flag.Int("rps", 100, "Events per second limit")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Seed for generated sessions")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	events := make(chan domain.RawEvent, 256)
	go func() {
		defer close(events)
		if *file != "" {
			loaded, err := loadFile(*file)
			if err != nil {
				log.Printf("Failed to load %s: %v", *file, err)
				return
			}
			log.Printf("Replaying %d events from %s", len(loaded), *file)
			for _, ev := range loaded {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
			return
		}
		rng := rand.New(rand.NewSource(*seed))
		for {
			for _, ev := range session(rng, time.Now().UTC()) {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	log.Printf("Starting replay to %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	limiter := rate.NewLimiter(rate.Limit(*rps), *concurrency)
	start := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for ev := range events {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					errorCount.Add(1)
					continue
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(payload))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				if *apiKey != "" {
					req.Header.Set("X-API-Key", *apiKey)
				}

				resp, err := client.Do(req)
				if err != nil {
					errorCount.Add(1)
					continue
				}
				if resp.StatusCode == http.StatusOK {
					successCount.Add(1)
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	elapsed := time.Since(start)

	log.Println("Replay finished.")
	log.Printf("Total Events: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", float64(totalRequests)/elapsed.Seconds())
}
