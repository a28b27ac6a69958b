package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appointment-watch/internal/config"
	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/infrastructure/dynamo"
	jwtinfra "github.com/appointment-watch/internal/infrastructure/jwt"
	"github.com/appointment-watch/internal/infrastructure/smtp"
	"github.com/appointment-watch/internal/metrics"
	transporthttp "github.com/appointment-watch/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	app := &cli.App{
		Name:   "api",
		Usage:  "registration and access-code API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "token",
				Usage: "print a signed operator token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "ops", Usage: "operator name"},
					&cli.StringFlag{Name: "role", Value: domain.RoleAdmin, Usage: "token role"},
				},
				Action: issueToken,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func issueToken(c *cli.Context) error {
	p, err := jwtinfra.NewProvider(config.Load())
	if err != nil {
		return err
	}
	token, err := p.Sign(c.String("subject"), c.String("role"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func serve(_ *cli.Context) error {
	cfg := config.Load()
	metrics.Init()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// Without keys the access-code route stays unmounted.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available, access-code issuance disabled: %v", err)
	}

	deps := &transporthttp.Deps{
		SubscriptionRepo: dynamo.NewSubscriptionRepo(dynamoClient, cfg.DynamoTables.Subscriptions),
		AccessCodeRepo:   dynamo.NewAccessCodeRepo(dynamoClient, cfg.DynamoTables.AccessCodes),
		Mailer:           smtp.NewMailer(cfg),
		JWTProvider:      jwtProvider,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
