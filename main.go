package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// runConsole reads host commands until r is exhausted.
func runConsole(ctx context.Context, r io.Reader, g *Game) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "":
		case "start":
			if err := g.StartGame(ctx); err != nil {
				log.Printf("Cannot start the game: %v", err)
			}
		default:
			log.Printf("Unknown command %q (commands: start)", cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		logError("runConsole: read stdin", err)
	}
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags := registerFlags(fs)
	fs.Parse(os.Args[1:])

	cfg := loadConfig(*flags.configPath)
	flags.applyTo(&cfg)
	devMode = cfg.Dev

	// Set up logging to both stdout and file
	logFile, err := setupLogOutput(cfg.LogFile)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()

	if err := InitAppLogger(cfg.toLogConfig()); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()

	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	history, err := OpenHistory(cfg.DB)
	if err != nil {
		log.Fatal("Failed to open history database:", err)
	}
	defer history.Close()
	appLogger.AttachHistory(history)

	LogDBState("after OpenHistory")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	game := NewGame(history, initStoryteller(cfg))
	srv := NewServer(ctx, game)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal("Failed to listen:", err)
	}
	go func() {
		if err := srv.ServeTCP(ln); err != nil {
			logError("ServeTCP", err)
			stop()
		}
	}()

	var httpSrv *http.Server
	if cfg.WSAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.WSAddr,
			Handler:           srv.WSHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("WebSocket gateway starting on %s/ws", cfg.WSAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logError("ListenAndServe", err)
				stop()
			}
		}()
	}

	log.Printf("Game %s waiting for players; type 'start' to begin", game.ID)
	go runConsole(ctx, os.Stdin, game)

	select {
	case <-game.Done():
		log.Printf("Game over: %s", game.Outcome())
	case <-ctx.Done():
		log.Println("Shutting down")
	}

	stop()
	if httpSrv != nil {
		httpSrv.Close()
	}
	srv.Wait()
}
