package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	core "skirmish/domain"
	"skirmish/server/domain"
)

type loadConfig struct {
	Addr        string
	RequestType string
	Bots        int
	Total       int
	Interval    time.Duration
}

type counters struct {
	sent     atomic.Int64
	received atomic.Int64
	failure  atomic.Int64
}

func main() {
	var (
		addrFlag     = flag.String("addr", "ws://localhost:3000/ws", "websocket endpoint")
		requestFlag  = flag.String("request", "update", "request type: update|shoot|chat")
		botsFlag     = flag.Int("bots", 10, "number of concurrent bots")
		totalFlag    = flag.Int("total", 100, "frames per bot after joining")
		intervalFlag = flag.Duration("interval", 50*time.Millisecond, "delay between frames per bot")
	)
	flag.Parse()

	if *botsFlag <= 0 || *totalFlag <= 0 {
		log.Fatalf("bots and total must be positive")
	}
	if _, err := buildFrame(*requestFlag, 0); err != nil {
		log.Fatalf("%v", err)
	}

	cfg := loadConfig{
		Addr:        *addrFlag,
		RequestType: *requestFlag,
		Bots:        *botsFlag,
		Total:       *totalFlag,
		Interval:    *intervalFlag,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	var c counters
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Bots {
		g.Go(func() error {
			if err := runBot(gctx, cfg, i, &c); err != nil {
				log.Printf("[bot %d] %v", i, err)
				c.failure.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Printf("completed %d bots in %s (sent=%d received=%d failure=%d)",
		cfg.Bots, time.Since(start), c.sent.Load(), c.received.Load(), c.failure.Load())
}

func runBot(ctx context.Context, cfg loadConfig, botID int, c *counters) error {
	conn, _, err := websocket.Dial(ctx, cfg.Addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	// 受信はカウントだけして捨てる。
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go func() {
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				return
			}
			c.received.Add(1)
		}
	}()

	join, err := domain.Encode(core.EventPlayerJoin, map[string]any{
		"nickname":    fmt.Sprintf("bot-%d", botID),
		"machineType": "cyber-beast",
	})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, join); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	c.sent.Add(1)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for seq := range cfg.Total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, err := buildFrame(cfg.RequestType, seq)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		c.sent.Add(1)
	}
	return conn.Close(websocket.StatusNormalClosure, "done")
}

func buildFrame(requestType string, seq int) ([]byte, error) {
	switch requestType {
	case "update":
		return domain.Encode(core.EventPlayerUpdate, map[string]any{
			"position": randomVec(150),
			"rotation": rand.Float64() * 6.28,
			"velocity": randomVec(5),
		})
	case "shoot":
		return domain.Encode(core.EventPlayerShoot, map[string]any{
			"position":  randomVec(150),
			"direction": core.Vec3{X: 0, Y: 0, Z: 1},
			"speed":     60.0,
			"damage":    10,
		})
	case "chat":
		return domain.Encode(core.EventChat, map[string]any{
			"message": fmt.Sprintf("message %d", seq),
		})
	default:
		return nil, fmt.Errorf("unsupported request type %s", requestType)
	}
}

func randomVec(r float64) core.Vec3 {
	return core.Vec3{
		X: (rand.Float64()*2 - 1) * r,
		Y: 0.5,
		Z: (rand.Float64()*2 - 1) * r,
	}
}
