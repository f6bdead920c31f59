package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/exstem-viva/internal/config"
	"github.com/stemsi/exstem-viva/internal/logger"
	"github.com/stemsi/exstem-viva/internal/middleware"
)

const defaultTTL = 8 * time.Hour

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Viva Access Token ===")

	// Token type
	fmt.Print("Token type [admin/student/service] (default admin): ")
	kind, _ := reader.ReadString('\n')
	tokenType := middleware.TokenType(strings.ToLower(strings.TrimSpace(kind)))
	if tokenType == "" {
		tokenType = middleware.TokenTypeAdmin
	}
	switch tokenType {
	case middleware.TokenTypeAdmin, middleware.TokenTypeStudent, middleware.TokenTypeService:
	default:
		fmt.Println("Error: Token type must be admin, student or service")
		return
	}

	// Subject
	fmt.Print("Enter Subject (admin id, registration number or service name): ")
	subject, _ := reader.ReadString('\n')
	subject = strings.TrimSpace(subject)
	if subject == "" {
		fmt.Println("Error: Subject is required")
		return
	}

	// Name
	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	// Permissions
	var perms []string
	if tokenType == middleware.TokenTypeAdmin {
		fmt.Printf("Enter Permissions, comma separated (default %s,%s): ",
			middleware.PermEventsRead, middleware.PermAttemptsRead)
		raw, _ := reader.ReadString('\n')
		perms = splitPermissions(raw)
		if len(perms) == 0 {
			perms = []string{middleware.PermEventsRead, middleware.PermAttemptsRead}
		}
	}

	// TTL
	fmt.Printf("Enter TTL (default %s): ", defaultTTL)
	rawTTL, _ := reader.ReadString('\n')
	ttl := defaultTTL
	if s := strings.TrimSpace(rawTTL); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			fmt.Println("Error: TTL must be a positive duration such as 30m or 8h")
			return
		}
		ttl = d
	}

	// Secret
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Print("Enter JWT Secret: ")
		byteSecret, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\nError reading secret")
			return
		}
		fmt.Println() // Newline after secret input
		secret = string(byteSecret)
	}
	if secret == "" {
		secret = cfg.JWTSecret
		log.Warn().Msg("Falling back to the configured default JWT secret")
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	claims := middleware.Claims{
		TokenType:   tokenType,
		Name:        name,
		Permissions: perms,
	}
	claims.Subject = subject

	token, err := middleware.NewAuthenticator(secret).Sign(claims, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Printf("\nSuccess! %s token for '%s' valid for %s:\n%s\n", tokenType, subject, ttl, token)
}

func splitPermissions(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
