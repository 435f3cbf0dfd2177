package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callhub/internal/client"
	"callhub/internal/core/domain"
	"callhub/internal/core/services"
	"callhub/pkg/config"
	"callhub/pkg/logger"
)

func main() {
	var (
		serverURL  = flag.String("server", "ws://localhost:8080/ws", "signaling websocket url")
		configPath = flag.String("config", "configs/config.yaml", "config file for ICE servers and the JWT secret")
		roomID     = flag.String("room", "", "explicit room id")
		sessionID  = flag.String("session", "", "scheduled session id")
		peerUserID = flag.String("peer", "", "user id of the other side of a 1:1 call")
		password   = flag.String("password", "", "session password")
		userID     = flag.String("user", "", "user id to mint a token for; empty joins as guest")
		name       = flag.String("name", "", "display name")
		callType   = flag.String("type", string(domain.CallTypeVideo), "audio or video")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	zapLogger, logErr := logger.NewDevelopment(*logLevel)
	if logErr != nil {
		fmt.Fprintln(os.Stderr, logErr)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warnw("config not loaded, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	var token string
	if *userID != "" {
		auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
		displayName := *name
		if displayName == "" {
			displayName = *userID
		}
		if token, err = auth.GenerateToken(domain.UserID(*userID), displayName); err != nil {
			log.Fatalw("failed to mint token", "error", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := client.Dial(ctx, *serverURL, token, *name, log)
	if err != nil {
		log.Fatalw("failed to connect", "error", err)
	}
	defer conn.Close()

	manager, err := client.NewManager(conn, client.ManagerOptions{
		ICEServers: client.ICEServers(cfg.WebRTC.ICEServers),
	}, log)
	if err != nil {
		log.Fatalw("failed to create peer manager", "error", err)
	}
	defer manager.Close()

	// The read loop outlives ctx so a leave frame can still go out on interrupt.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	done := make(chan error, 1)
	go func() { done <- conn.Run(runCtx, manager) }()

	join := domain.JoinPayload{
		CallType:   domain.CallType(*callType),
		Password:   *password,
		SessionID:  domain.SessionID(*sessionID),
		PeerUserID: domain.UserID(*peerUserID),
	}
	if err := conn.Join(domain.RoomID(*roomID), join); err != nil {
		log.Fatalw("failed to join", "error", err)
	}

	lines := readLines(os.Stdin)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := runCommand(conn, manager, line); err != nil {
				log.Warnw("command failed", "command", line, "error", err)
			}
		case err := <-done:
			if err != nil {
				log.Errorw("signaling connection lost", "error", err)
			}
			return
		case <-ctx.Done():
			if room := manager.RoomID(); room != "" {
				if err := conn.Leave(room); err != nil {
					log.Debugw("leave not sent", "error", err)
				}
			}
			return
		case <-ticker.C:
			for _, id := range manager.Peers() {
				log.Infow("peer", "connection_id", id, "packets", manager.PacketsReceived(id))
			}
		}
	}
}
