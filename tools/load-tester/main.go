package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/statusboard/internal/adapter/normalize"
	"github.com/V4T54L/statusboard/internal/domain"
)

var (
	contentTypes = []string{domain.ContentDocument, domain.ContentImage, domain.ContentPicture, domain.ContentAudio, domain.ContentVideo}
	statuses     = []string{"Queued", "Processing", "Done", "Failed"}
)

func main() {
	targetURL := flag.String("url", "http://localhost:5001/ingest", "Target URL for ingestion")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	batch := flag.Int("batch", 1, "Events per request; more than one sends NDJSON")
	jobs := flag.Int("jobs", 20, "Number of distinct job ids to spread events over")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Batch: %d", *concurrency, *duration, *rps, *batch)

	jobIDs := make([]string, max(*jobs, 1))
	for i := range jobIDs {
		jobIDs[i] = uuid.NewString()
	}

	var wg sync.WaitGroup
	var successCount, errorCount, eventCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				body, contentType := buildBody(jobIDs, *batch)
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(body))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", contentType)

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}

				if resp.StatusCode == http.StatusAccepted {
					successCount.Add(1)
					eventCount.Add(int64(*batch))
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (202 Accepted): %d", successCount.Load())
	log.Printf("Events Accepted: %d", eventCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}

// buildBody returns a single JSON event or an NDJSON batch.
func buildBody(jobIDs []string, n int) ([]byte, string) {
	if n <= 1 {
		b, _ := json.Marshal(syntheticEvent(jobIDs))
		return b, "application/json"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < n; i++ {
		_ = enc.Encode(syntheticEvent(jobIDs))
	}
	return buf.Bytes(), "application/x-ndjson"
}

func syntheticEvent(jobIDs []string) domain.Event {
	status := statuses[rand.IntN(len(statuses))]
	return domain.Event{
		Time:        time.Now().Format(normalize.TimeLayout),
		JobID:       jobIDs[rand.IntN(len(jobIDs))],
		ContentID:   uuid.NewString(),
		ContentType: contentTypes[rand.IntN(len(contentTypes))],
		FileName:    "load-test.bin",
		Status:      status,
		Message:     "synthetic " + status + " event",
	}
}
