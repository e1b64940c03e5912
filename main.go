// File: main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"marketpulse/internal/alert"
	"marketpulse/internal/breakout"
	"marketpulse/internal/commentary"
	"marketpulse/internal/config"
	"marketpulse/internal/cooldown"
	"marketpulse/internal/feed"
	"marketpulse/internal/hub"
	"marketpulse/internal/indicator"
	"marketpulse/internal/logging"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/state"
	"marketpulse/internal/voice"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	portOverride := flag.Int("port", 0, "override server_port")
	flag.Parse()

	_ = godotenv.Load(".env")
	env := config.LoadEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *portOverride != 0 {
		cfg.ServerPort = *portOverride
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log.Info().Int("port", cfg.ServerPort).Strs("symbols", cfg.Symbols()).Msg("starting marketpulse")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := indicator.NewEngine(indicator.Options{
		WindowSize: cfg.Indicator.WindowSize,
		SMAWindow:  cfg.Indicator.SMAWindow,
		MinSamples: cfg.Indicator.MinSamples,
	})
	detector := breakout.NewDetector(breakout.Options{
		RSIHigh:         cfg.Breakout.RSIHigh,
		RSILow:          cfg.Breakout.RSILow,
		VolumeSpikeMult: cfg.Breakout.VolumeSpikeMult,
		LevelStep:       cfg.Breakout.LevelStep,
		MinSamples:      cfg.Indicator.MinSamples,
	})
	gate := cooldown.NewGate(cfg.Cooldowns())
	h := hub.New(256, log)

	var gen alert.Generator
	if env.GeminiAPIKey != "" {
		gen = commentary.NewClient(env.GeminiAPIKey)
	} else {
		log.Warn().Msg("GEMINI_API_KEY missing, using canned commentary")
		gen = commentary.Canned{}
	}
	var synth alert.Synthesizer
	if env.ElevenLabsAPIKey != "" {
		synth = voice.NewClient(env.ElevenLabsAPIKey)
	} else {
		log.Warn().Msg("ELEVENLABS_API_KEY missing, alerts are text-only")
	}

	orch := alert.NewOrchestrator(gen, synth, h, alert.Options{
		GeneratorTimeout:   time.Duration(cfg.Alert.GeneratorTimeoutMs) * time.Millisecond,
		SynthesizerTimeout: time.Duration(cfg.Alert.SynthesizerTimeoutMs) * time.Millisecond,
		MaxWords:           cfg.Alert.MaxWords,
	}, log)

	cache := state.New(env.RedisAddr, cfg.Redis.DB, time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
	defer cache.Close()

	pipe := pipeline.New(engine, detector, gate, orch, h, cache, pipeline.Options{
		MaxInFlight: cfg.Alert.MaxInFlight,
	}, log)
	go pipe.Run(ctx)

	var stream feed.Stream
	if cfg.Feed.URL != "" {
		stream = feed.NewBinance(cfg.Feed.URL, cfg.Symbols(), log)
	} else {
		log.Warn().Msg("no feed.url configured, using mock feed")
		stream = feed.NewMock(cfg.Symbols(), log)
	}
	go func() {
		if err := stream.Run(ctx, pipe.Offer); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
		}
	}()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/ws", h.ServeWS())

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		delivered, degraded, failed := orch.Stats()
		writeJSON(w, map[string]any{
			"status":      "ok",
			"pipeline":    pipe.Stats(),
			"subscribers": h.Subscribers(),
			"evicted":     h.Evicted(),
			"alerts": map[string]uint64{
				"delivered": delivered,
				"degraded":  degraded,
				"failed":    failed,
			},
		})
	})

	r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
		snaps := make(map[string]any)
		for _, sym := range cfg.Symbols() {
			if s, ok := cache.Snapshot(req.Context(), sym); ok {
				snaps[sym] = s
			}
		}
		writeJSON(w, map[string]any{
			"symbols": cfg.Symbols(),
			"feed":    map[string]any{"url": cfg.Feed.URL, "mock": cfg.Feed.URL == ""},
			"breakout": map[string]any{
				"rsi_high":          cfg.Breakout.RSIHigh,
				"rsi_low":           cfg.Breakout.RSILow,
				"volume_spike_mult": cfg.Breakout.VolumeSpikeMult,
				"level_step":        cfg.Breakout.LevelStep,
			},
			"cooldown_seconds": map[string]int{
				"rsi":    cfg.Cooldown.RSISeconds,
				"volume": cfg.Cooldown.VolumeSeconds,
				"level":  cfg.Cooldown.LevelSeconds,
			},
			"snapshots": snaps,
		})
	})

	r.Post("/api/force", func(w http.ResponseWriter, req *http.Request) {
		var fr struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
			RSI    float64 `json:"rsi"`
		}
		if err := json.NewDecoder(req.Body).Decode(&fr); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if fr.Symbol == "" || fr.Price <= 0 {
			http.Error(w, "symbol and positive price required", http.StatusBadRequest)
			return
		}
		if !pipe.Force(ctx, fr.Symbol, fr.Price, fr.RSI) {
			w.WriteHeader(http.StatusConflict)
			writeJSON(w, map[string]any{"ok": false, "reason": "not admitted"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]any{"ok": true})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("listening on :%d (ws: /ws)", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server")
	}
	log.Info().Msg("shut down")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}
