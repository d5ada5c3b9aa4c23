package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
)

var (
	configPath string
	subject    string
	role       string
	expiry     time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml, ./config/config.yaml)")
	flag.StringVar(&subject, "sub", "", "Caller id recorded as the actor of mutations")
	flag.StringVar(&role, "role", string(ports.RoleService), "Caller role: service | admin")
	flag.DurationVar(&expiry, "expiry", 0, "Token lifetime (default: jwt.expiry)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret must be set (WLG_JWT_SECRET)")
		os.Exit(1)
	}
	if expiry <= 0 {
		expiry = cfg.JWT.Expiry
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer)
	token, expiresAt, err := tokenSvc.Generate(subject, ports.Role(role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(2)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
}
