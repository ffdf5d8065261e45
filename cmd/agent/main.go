package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/storage"
	"voiceagent-platform/internal/voice"
	"voiceagent-platform/pkg/logger"
)

// One process per call. The dispatcher spawns this binary with the call's
// identity in env; it joins the room, serves the conversation, and reports
// the outcome to the backend before exiting.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAgentProcess()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env).With("call_id", cfg.CallID, "agent_id", cfg.AgentID)
	slog.SetDefault(log)

	reporter := voice.NewReporter(cfg.BackendURL, cfg.ServiceToken)

	// Transcript upload is best effort; a missing bucket only disables it.
	var store voice.ArtifactUploader
	if cfg.Storage.S3Bucket != "" {
		s, err := storage.NewStore(rootCtx, storage.Config{
			Bucket: cfg.Storage.S3Bucket,
			Region: cfg.Storage.S3Region,
		})
		if err != nil {
			log.Warn("artifact store unavailable, transcripts will not be uploaded", "err", err)
		} else {
			store = s
		}
	}

	room, err := voice.Connect(voice.RoomConfig{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		RoomName:  cfg.RoomName,
		Identity:  calls.AgentIdentityPrefix + cfg.AgentID,
	})
	if err != nil {
		log.Error("room connect failed", "room", cfg.RoomName, "err", err)
		os.Exit(1)
	}

	runner := voice.NewRunner(voice.RunnerConfig{
		CallID:      cfg.CallID,
		AgentID:     cfg.AgentID,
		RingTimeout: cfg.RingTimeout,
	}, reporter, voice.NewNopSession(cfg.Greeting), store)

	if err := runner.Run(rootCtx, room); err != nil {
		log.Error("call run failed", "err", err)
		os.Exit(1)
	}
	log.Info("call finished")
}
