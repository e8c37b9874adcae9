// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Command simulator produces mock detection reports against a running
// kerbwatch backend. It drives a virtual bus camera along a circular route
// and emits hazard detections inside configured route zones, pacing the
// reports with a rate limiter so the stream resembles a real camera feed.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/kerbwatch/kerbwatch/internal/logging"
	"github.com/kerbwatch/kerbwatch/internal/models"
)

// Route center: Seoul City Hall.
const (
	centerLat = 37.5665
	centerLon = 126.9780

	// routeRadius in degrees, roughly 500 m.
	routeRadius = 0.0045

	// routeSteps is the number of positions in one loop.
	routeSteps = 400
)

// detectionZone marks a stretch of the route where hazards appear.
type detectionZone struct {
	fromStep, toStep int
	probability      float64
	eventType        string
}

// Zones are placed so repeated loops re-report the same hazards, which is
// what exercises the dedup merge path.
var zones = []detectionZone{
	{fromStep: 50, toStep: 120, probability: 0.25, eventType: "fallen_pm"},
	{fromStep: 200, toStep: 240, probability: 0.4, eventType: "pothole"},
	{fromStep: 350, toStep: 400, probability: 0.3, eventType: "fallen_pm"},
}

type ingestPayload struct {
	Type       string  `json:"type"`
	SourceID   string  `json:"source_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

type summary struct {
	sent, created, merged, failed int
}

func main() {
	backendURL := flag.String("backend-url", "http://localhost:8097", "kerbwatch backend base URL")
	sourceID := flag.String("source-id", "sim-bus-1", "source identifier for emitted reports")
	reportsPerSec := flag.Float64("rate", 2.0, "report pacing in positions per second")
	minutes := flag.Int("minutes", 5, "how long to run, in minutes")
	seed := flag.Int64("seed", 0, "random seed (0 = time-based)")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := waitForBackend(ctx, client, *backendURL); err != nil {
		logging.Fatal().Err(err).Str("backend", *backendURL).Msg("Backend never became ready")
	}

	logging.Info().
		Str("backend", *backendURL).
		Str("source_id", *sourceID).
		Float64("rate", *reportsPerSec).
		Int("minutes", *minutes).
		Msg("Simulator starting")

	limiter := rate.NewLimiter(rate.Limit(*reportsPerSec), 1)
	deadline := time.Now().Add(time.Duration(*minutes) * time.Minute)

	var sum summary
	step := 0
	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			break // context canceled
		}

		lat, lon := routePosition(step % routeSteps)
		if zone := zoneAt(step % routeSteps); zone != nil && rng.Float64() < zone.probability {
			// Jitter the detection around the camera position so reports of
			// one hazard still snap to the same grid cell most of the time.
			payload := ingestPayload{
				Type:       zone.eventType,
				SourceID:   *sourceID,
				Lat:        lat + (rng.Float64()-0.5)*0.00005,
				Lon:        lon + (rng.Float64()-0.5)*0.00005,
				Confidence: 0.5 + rng.Float64()*0.45,
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			}
			sendReport(ctx, client, *backendURL, payload, &sum)
		}
		step++
	}

	logging.Info().
		Int("sent", sum.sent).
		Int("created", sum.created).
		Int("merged", sum.merged).
		Int("failed", sum.failed).
		Msg("Simulator finished")
}

// routePosition returns the coordinates for a step on the circular route.
func routePosition(step int) (lat, lon float64) {
	angle := 2 * math.Pi * float64(step) / float64(routeSteps)
	lat = centerLat + routeRadius*math.Sin(angle)
	lon = centerLon + routeRadius*math.Cos(angle)
	return lat, lon
}

// zoneAt returns the detection zone covering the step, if any.
func zoneAt(step int) *detectionZone {
	for i := range zones {
		if step >= zones[i].fromStep && step < zones[i].toStep {
			return &zones[i]
		}
	}
	return nil
}

// sendReport posts one report with up to three attempts and records the
// outcome in the summary.
func sendReport(ctx context.Context, client *http.Client, baseURL string, payload ingestPayload, sum *summary) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal report")
		sum.failed++
		return
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				sum.failed++
				return
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/events", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var envelope models.APIResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			lastErr = fmt.Errorf("backend returned %d", resp.StatusCode)
			continue
		}

		sum.sent++
		if decodeErr == nil {
			if data, ok := envelope.Data.(map[string]interface{}); ok {
				switch data["kind"] {
				case "new":
					sum.created++
				case "update":
					sum.merged++
				}
			}
		}
		logging.Debug().
			Str("type", payload.Type).
			Int("status", resp.StatusCode).
			Msg("Report accepted")
		return
	}

	sum.failed++
	logging.Warn().Err(lastErr).Str("type", payload.Type).Msg("Report dropped after retries")
}

// waitForBackend polls the readiness probe until the backend answers or the
// context is canceled.
func waitForBackend(ctx context.Context, client *http.Client, baseURL string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/health/ready", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
