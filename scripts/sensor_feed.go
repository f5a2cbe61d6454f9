//go:build ignore

// Генератор тестового потока отчётов о позиции в формате JSON Lines.
// Вывод подаётся агенту на stdin: go run scripts/sensor_feed.go | journey-agent
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"time"
)

type report struct {
	SourceID   string    `json:"source_id"`
	SourceType string    `json:"source_type"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy_m"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

func ptr[T any](v T) *T {
	return &v
}

func main() {
	steps := flag.Int("steps", 120, "Number of ticks")
	interval := flag.Duration("interval", time.Second, "Pause between ticks")
	spoofEvery := flag.Int("spoof-every", 15, "Every N-th rider report jumps far away, 0 disables")
	flag.Parse()

	enc := json.NewEncoder(os.Stdout)

	// автобус едет на северо-восток около 40 км/ч
	lat, lon := 55.7512, 37.6184
	const speed = 11.0
	const heading = 45.0
	dLat := speed * math.Cos(heading*math.Pi/180) / 111320
	dLon := speed * math.Sin(heading*math.Pi/180) / (111320 * math.Cos(lat*math.Pi/180))

	for i := 0; i < *steps; i++ {
		now := time.Now().UTC()
		lat += dLat
		lon += dLon

		reports := []report{
			{SourceID: "device-gps", SourceType: "passenger", Latitude: lat, Longitude: lon, AccuracyM: 8, Speed: ptr(speed), Heading: ptr(heading), ObservedAt: now},
			{SourceID: "bus-12", SourceType: "vehicle", Latitude: lat + 0.00003, Longitude: lon - 0.00002, AccuracyM: 5, Speed: ptr(speed), Heading: ptr(heading), ObservedAt: now},
		}

		rider := report{SourceID: "rider-3", SourceType: "rider", Latitude: lat - 0.00004, Longitude: lon + 0.00003, AccuracyM: 15, ObservedAt: now}
		if *spoofEvery > 0 && i > 0 && i%*spoofEvery == 0 {
			rider.Latitude += 0.5
		}
		reports = append(reports, rider)

		for _, r := range reports {
			if err := enc.Encode(r); err != nil {
				log.Fatalf("Failed to write report: %v", err)
			}
		}
		time.Sleep(*interval)
	}
}
