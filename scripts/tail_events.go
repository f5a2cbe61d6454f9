//go:build ignore

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/redis/go-redis/v9"
)

type journeyEvent struct {
	Type        string          `json:"type"`
	JourneyID   string          `json:"journey_id"`
	PassengerID string          `json:"passenger_id,omitempty"`
	Status      string          `json:"status,omitempty"`
	Position    *point          `json:"position,omitempty"`
	Fused       json.RawMessage `json:"fused,omitempty"`
	OccurredAt  string          `json:"occurred_at"`
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for streams")
	stream := flag.String("stream", "stream:journey:events", "Stream with journey events")
	from := flag.String("from", "$", "Start id: $ for new events only, 0 for the whole stream")
	flag.Parse()

	client := redis.NewClient(&redis.Options{
		Addr: *redisAddr,
	})
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Проверка подключения
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	fmt.Printf("Tailing %s on %s\n", *stream, *redisAddr)

	lastID := *from
	for {
		results, err := client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{*stream, lastID},
			Count:   100,
			Block:   0,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err != redis.Nil {
				log.Printf("XREAD failed: %v", err)
			}
			continue
		}

		for _, s := range results {
			for _, msg := range s.Messages {
				lastID = msg.ID

				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				var event journeyEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					log.Printf("Malformed event %s: %v", msg.ID, err)
					continue
				}

				line := fmt.Sprintf("%s %-16s journey=%s", event.OccurredAt, event.Type, event.JourneyID)
				if event.Status != "" {
					line += " status=" + event.Status
				}
				if event.Position != nil {
					line += fmt.Sprintf(" at=%.6f,%.6f", event.Position.Lat, event.Position.Lon)
				}
				fmt.Println(line)
			}
		}
	}
}
