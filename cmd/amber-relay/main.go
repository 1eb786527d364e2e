// Command amber-relay runs the alert distribution service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bissquit/amber-relay/internal/app"
	"github.com/bissquit/amber-relay/internal/config"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/identity/jwt"
	"github.com/bissquit/amber-relay/internal/version"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("AMBER_CONFIG"), "path to YAML config file")
	issueToken := flag.String("issue-token", "", "print a bearer token for the given subject and exit")
	role := flag.String("role", string(domain.RoleOperator), "role of the issued token (viewer, operator, admin)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		v := version.Get()
		fmt.Printf("amber-relay %s (commit %s, built %s)\n", v.Version, v.GitCommit, v.BuildDate)
		return nil
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *issueToken != "" {
		return printToken(cfg.Auth, *issueToken, domain.Role(*role))
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return application.Shutdown(shutdownCtx)
}

func printToken(cfg config.AuthConfig, subject string, role domain.Role) error {
	auth, err := jwt.NewAuthenticator(jwt.Config{
		SecretKey:           cfg.JWTSecret,
		Issuer:              cfg.Issuer,
		AccessTokenDuration: cfg.TokenDuration,
	})
	if err != nil {
		return err
	}

	token, err := auth.IssueToken(subject, role)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
