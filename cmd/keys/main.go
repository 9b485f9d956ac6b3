package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/hellocards/internal/config"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	jwtx "github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/store/core"
	"github.com/dropDatabas3/hellocards/internal/store/pg"
)

func main() {
	var (
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env")
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (vacío => solo env)")
		cmdRotate      = flag.Bool("rotate", false, "genera nueva clave ACTIVE y pasa la anterior a RETIRING")
		cmdRetire      = flag.Bool("retire", false, "marca claves RETIRING antiguas como RETIRED (limpia JWKS)")
		cmdList        = flag.Bool("list", false, "lista todas las claves con sus estados")
		flagAge        = flag.String("age", "", "antigüedad mínima para retiring->retired (default issuer.key_rotation_grace)")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}
	cfg, err := config.Load(*flagConfigPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	p := crypto.NewEd25519Provider()

	var repo core.SigningKeyRepository
	switch cfg.Issuer.Keystore {
	case "fs":
		pass := os.Getenv(cfg.Issuer.MasterPasswordEnv)
		if pass == "" {
			log.Fatalf("%s is required for the fs keystore", cfg.Issuer.MasterPasswordEnv)
		}
		fs, err := jwtx.NewFileSigningKeyStore(cfg.Issuer.KeysDir, pass, p)
		if err != nil {
			log.Fatalf("keystore: %v", err)
		}
		repo = fs
	case "postgres":
		s, err := pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{})
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer s.Close()
		repo = s
	default:
		log.Fatalf("keystore %q is not persistent; use fs or postgres", cfg.Issuer.Keystore)
	}
	ks := jwtx.NewPersistentKeystore(repo, p)

	switch {
	case *cmdRotate:
		newKID, prevKID, err := ks.Rotate(ctx)
		if err != nil {
			log.Fatalf("rotate: %v", err)
		}
		if prevKID != "" {
			fmt.Printf("Rotated. new_kid=%s previous_active=%s -> retiring\n", newKID, prevKID)
		} else {
			fmt.Printf("Inserted first active key. kid=%s\n", newKID)
		}
	case *cmdRetire:
		age := config.Duration(cfg.Issuer.KeyRotationGrace, 24*time.Hour)
		if *flagAge != "" {
			d, err := time.ParseDuration(*flagAge)
			if err != nil {
				log.Fatalf("invalid age: %v", err)
			}
			age = d
		}
		n, err := ks.RetireOlderThan(ctx, age)
		if err != nil {
			log.Fatalf("retire: %v", err)
		}
		fmt.Printf("Marked %d retiring keys as retired (older than %s)\n", n, age)
	case *cmdList:
		keys, err := ks.List(ctx)
		if err != nil {
			log.Fatalf("list: %v", err)
		}
		fmt.Printf("KID\t\t\t\t\t\tSTATUS\t\tCREATED_AT\t\t\tROTATED_AT\n")
		for _, k := range keys {
			rotated := ""
			if k.RotatedAt != nil {
				rotated = k.RotatedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s\t%s\t\t%s\t%s\n", k.KID, k.Status, k.CreatedAt.Format(time.RFC3339), rotated)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
