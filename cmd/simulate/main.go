package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/d20"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
)

// simulate enqueues synthetic interaction events for a session, rolling
// a d20 per entity against a difficulty to decide success and quality.
// Useful for exercising the worker end to end without a live game.
func main() {
	sessionFlag := flag.String("session", "", "session id (defaults to a fresh uuid)")
	entitiesFlag := flag.String("entities", "rusty_gate,guard_post,signal_fire", "comma-separated entity ids to interact with")
	characterFlag := flag.String("character", "sim-pc", "character id performing the interactions")
	skillFlag := flag.Int("skill", 3, "character skill modifier applied to rolls")
	difficultyFlag := flag.Int("difficulty", 12, "difficulty class each roll must meet")
	delayFlag := flag.Duration("delay", 0, "pause between enqueued interactions")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logg := logger.Setup(cfg)

	sessionID := uuid.New()
	if *sessionFlag != "" {
		sessionID, err = uuid.Parse(*sessionFlag)
		if err != nil {
			log.Fatalf("invalid session id: %v", err)
		}
	}

	// The simulated character is a real d20 actor so skill checks behave
	// like the surrounding game's.
	actor, err := d20.NewActor(*characterFlag).
		WithHP(10).
		WithAC(12).
		WithAttributes(map[string]int{"skill": *skillFlag}).
		Build()
	if err != nil {
		log.Fatalf("failed to build actor: %v", err)
	}

	client, err := queue.NewClient(cfg.RedisURL, logg)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer client.Close()

	q := queue.NewInteractionQueue(client)
	ctx := context.Background()

	entities := strings.Split(*entitiesFlag, ",")
	fmt.Printf("Simulating %d interactions for session %s\n\n", len(entities), sessionID)

	for _, entityID := range entities {
		entityID = strings.TrimSpace(entityID)
		if entityID == "" {
			continue
		}

		mod := 0
		if v, ok := actor.Attribute("skill"); ok {
			mod = v
		}
		roll := rand.Intn(20) + 1
		total := roll + mod
		success := total >= *difficultyFlag

		// Quality scales with the margin over the difficulty.
		quality := 0.5 + float64(total-*difficultyFlag)/20
		if quality < 0.1 {
			quality = 0.1
		}
		if quality > 1 {
			quality = 1
		}

		event := &queuePkg.InteractionEvent{
			Type:        queuePkg.EventTypeInteraction,
			SessionID:   sessionID,
			EntityID:    entityID,
			CharacterID: *characterFlag,
			Success:     success,
			Quality:     quality,
		}
		if err := q.Enqueue(ctx, event); err != nil {
			log.Fatalf("failed to enqueue interaction: %v", err)
		}

		outcome := "FAIL"
		if success {
			outcome = fmt.Sprintf("ok (quality %.2f)", quality)
		}
		fmt.Printf("  %-20s d20=%2d +%d vs DC %d -> %s\n", entityID, roll, mod, *difficultyFlag, outcome)

		if *delayFlag > 0 {
			time.Sleep(*delayFlag)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatalf("failed to get queue depth: %v", err)
	}
	fmt.Printf("\nQueue depth: %d events\n", depth)
	fmt.Println("Start the worker to process them: go run cmd/worker/main.go")
}
