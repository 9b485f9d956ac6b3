package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/directory"
	"github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/keyset"
	"github.com/dropDatabas3/hellocards/internal/util/atomicwrite"
)

type cli struct {
	ServiceURL     string
	ServicePub     string
	AppID          string
	KeyID          string
	KeyFile        string
	KeyPasswordEnv string
	OutFormat      string // "json" | "text"
	Timeout        time.Duration

	p crypto.Provider
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (c *cli) directory() *directory.Client {
	return directory.NewClient(c.ServiceURL, &http.Client{Timeout: c.Timeout})
}

// readPrivate lee una privada en base64: cruda o exportada con password.
func (c *cli) readPrivate(path string) (crypto.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if strings.HasPrefix(string(data), "HCK1") {
		return c.p.ImportPrivateKey(data, os.Getenv(c.KeyPasswordEnv))
	}
	priv := crypto.PrivateKey(data)
	if !priv.Valid() {
		return nil, crypto.ErrInvalidPrivateKey
	}
	return priv, nil
}

func (c *cli) issuer() (*jwt.Issuer, error) {
	if c.AppID == "" || c.KeyID == "" || c.KeyFile == "" {
		return nil, fmt.Errorf("faltan --app-id, --key-id o --key-file")
	}
	priv, err := c.readPrivate(c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("api key: %w", err)
	}
	return jwt.NewIssuer(c.AppID, jwt.StaticKey{KID: c.KeyID, Private: priv}), nil
}

func (c *cli) verifier() (*card.Verifier, error) {
	if c.ServicePub == "" {
		return &card.Verifier{Crypto: c.p}, nil
	}
	pub, err := c.p.ImportPublicKey(c.ServicePub)
	if err != nil {
		return nil, fmt.Errorf("service pubkey: %w", err)
	}
	return card.NewVerifier(c.p, pub), nil
}

func (c *cli) print(v any) error {
	if c.OutFormat == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	switch t := v.(type) {
	case *card.Card:
		fmt.Printf("id=%s identity=%s key=%s created_at=%s outdated=%v\n",
			t.ID, t.Identity, c.p.ExportPublicKey(t.PublicKey), t.CreatedAt.Format(time.RFC3339), t.IsOutdated)
	case []string:
		for _, s := range t {
			fmt.Println(s)
		}
	default:
		fmt.Printf("%v\n", v)
	}
	return nil
}

func main() {
	c := &cli{
		ServiceURL:     envOr("CARDS_SERVICE_URL", "http://localhost:8080"),
		ServicePub:     envOr("CARDS_SERVICE_PUBKEY", ""),
		AppID:          envOr("CARDS_APP_ID", ""),
		KeyID:          envOr("CARDS_API_KEY_ID", ""),
		KeyFile:        envOr("CARDS_API_KEY_FILE", ""),
		KeyPasswordEnv: "CARDS_API_KEY_PASSWORD",
		OutFormat:      envOr("CARDS_OUT", "text"),
		Timeout:        30 * time.Second,
		p:              crypto.NewEd25519Provider(),
	}

	root := &cobra.Command{
		Use:           "cardctl",
		Short:         "CLI para el directorio de cards (tokens, cards y claves)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.ServiceURL, "service-url", c.ServiceURL, "URL base del directorio (env CARDS_SERVICE_URL)")
	pf.StringVar(&c.ServicePub, "service-pubkey", c.ServicePub, "pública del servicio en base64 (env CARDS_SERVICE_PUBKEY)")
	pf.StringVar(&c.AppID, "app-id", c.AppID, "app id de los tokens (env CARDS_APP_ID)")
	pf.StringVar(&c.KeyID, "key-id", c.KeyID, "id de la API key (env CARDS_API_KEY_ID)")
	pf.StringVar(&c.KeyFile, "key-file", c.KeyFile, "archivo con la privada de la API key (env CARDS_API_KEY_FILE)")
	pf.StringVar(&c.KeyPasswordEnv, "key-password-env", c.KeyPasswordEnv, "env con el password de las privadas exportadas")
	pf.StringVar(&c.OutFormat, "out", c.OutFormat, "Formato de salida: json|text")
	pf.DurationVar(&c.Timeout, "timeout", c.Timeout, "timeout HTTP")

	root.AddCommand(tokenCmd(c), cardCmd(c), keysCmd(c))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func tokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Emisión y verificación de access tokens"}

	var identity string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Emite un token firmado con la API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, err := c.issuer()
			if err != nil {
				return err
			}
			tok, err := iss.IssueToken(cmd.Context(), identity, ttl)
			if err != nil {
				return err
			}
			if c.OutFormat == "json" {
				return c.print(map[string]any{"token": tok.Raw, "kid": tok.KID, "expires_at": tok.ExpiresAt().Unix()})
			}
			fmt.Println(tok.Raw)
			return nil
		},
	}
	issue.Flags().StringVar(&identity, "identity", "", "identity del token")
	issue.Flags().DurationVar(&ttl, "ttl", 10*time.Minute, "duración del token (mínimo 1s)")
	_ = issue.MarkFlagRequired("identity")

	var pubFile string
	verify := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verifica un token contra el JWKS del directorio o una pública local",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var keys jwt.KeyResolver
			if pubFile != "" {
				b, err := os.ReadFile(pubFile)
				if err != nil {
					return err
				}
				pub, err := c.p.ImportPublicKey(strings.TrimSpace(string(b)))
				if err != nil {
					return err
				}
				keys = jwt.KeyResolverFunc(func(context.Context, string) (crypto.PublicKey, error) { return pub, nil })
			} else {
				keys = jwt.NewRemoteJWKS(strings.TrimRight(c.ServiceURL, "/")+"/.well-known/jwks.json", 0)
			}
			tok, err := jwt.ParseToken(cmd.Context(), args[0], keys, time.Now())
			if err != nil {
				return err
			}
			return c.print(map[string]any{
				"identity":   tok.Identity,
				"app_id":     tok.AppID,
				"kid":        tok.KID,
				"expires_at": tok.ExpiresAt().Format(time.RFC3339),
			})
		},
	}
	verify.Flags().StringVar(&pubFile, "pubkey-file", "", "pública del issuer en base64 (vacío => JWKS remoto)")

	cmd.AddCommand(issue, verify)
	return cmd
}

func cardCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "card", Short: "Operaciones sobre cards del directorio"}

	var identity, replace, keyOut string
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Genera un key pair y publica su card",
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, err := c.issuer()
			if err != nil {
				return err
			}
			v, err := c.verifier()
			if err != nil {
				return err
			}
			kp, err := c.p.GenerateKeyPair()
			if err != nil {
				return err
			}
			tokens := jwt.NewCachingProvider(jwt.NewGeneratorProvider(iss, 5*time.Minute))
			pub := card.NewPublisher(c.p, tokens, c.directory(), v)
			out, err := pub.PublishReplacing(cmd.Context(), identity, kp, replace)
			if err != nil {
				return err
			}
			if keyOut != "" {
				if err := writePrivate(c, keyOut, kp.Private); err != nil {
					return err
				}
			}
			return c.print(out)
		},
	}
	publish.Flags().StringVar(&identity, "identity", "", "identity de la card")
	publish.Flags().StringVar(&replace, "replace", "", "id de la card que se reemplaza")
	publish.Flags().StringVar(&keyOut, "key-out", "", "archivo donde guardar la privada generada")
	_ = publish.MarkFlagRequired("identity")

	get := &cobra.Command{
		Use:   "get <card-id>",
		Short: "Obtiene una card por id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.verifier()
			if err != nil {
				return err
			}
			raw, outdated, err := c.directory().GetCard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			parsed, err := card.ParseRawCard(raw, v)
			if err != nil {
				return err
			}
			return c.print(parsed.WithOutdated(outdated))
		},
	}

	search := &cobra.Command{
		Use:   "search <identity>...",
		Short: "Busca las cards activas de las identities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.verifier()
			if err != nil {
				return err
			}
			raws, err := c.directory().SearchCards(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, raw := range raws {
				parsed, err := card.ParseRawCard(raw, v)
				if err != nil {
					return fmt.Errorf("card %s: %w", raw.ID, err)
				}
				if err := c.print(parsed); err != nil {
					return err
				}
			}
			return nil
		},
	}

	outdated := &cobra.Command{
		Use:   "outdated <card-id>...",
		Short: "Lista cuáles de los ids dejaron de estar vigentes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := c.directory().OutdatedCards(cmd.Context(), args)
			if err != nil {
				return err
			}
			return c.print(ids)
		},
	}

	var revokeIdentity string
	revoke := &cobra.Command{
		Use:   "revoke <card-id>",
		Short: "Revoca una card propia",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, err := c.issuer()
			if err != nil {
				return err
			}
			tok, err := iss.IssueToken(cmd.Context(), revokeIdentity, time.Minute)
			if err != nil {
				return err
			}
			if err := c.directory().RevokeCard(cmd.Context(), args[0], tok); err != nil {
				return err
			}
			fmt.Println("revoked")
			return nil
		},
	}
	revoke.Flags().StringVar(&revokeIdentity, "identity", "", "identity dueña de la card")
	_ = revoke.MarkFlagRequired("identity")

	cmd.AddCommand(publish, get, search, outdated, revoke)
	return cmd
}

func keysCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Utilidades de claves Ed25519"}

	var out string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Genera un key pair; imprime la pública y guarda la privada",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := c.p.GenerateKeyPair()
			if err != nil {
				return err
			}
			if out != "" {
				if err := writePrivate(c, out, kp.Private); err != nil {
					return err
				}
			}
			fmt.Println(c.p.ExportPublicKey(kp.Public))
			return nil
		},
	}
	generate.Flags().StringVar(&out, "out", "", "archivo de la privada (vacío => no se guarda)")

	compare := &cobra.Command{
		Use:   "compare <file-a> <file-b>",
		Short: "Compara dos listas de públicas (una por línea) sin importar el orden",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readPublicList(c.p, args[0])
			if err != nil {
				return err
			}
			b, err := readPublicList(c.p, args[1])
			if err != nil {
				return err
			}
			if keyset.Equal(a, b) {
				fmt.Println("equal")
				return nil
			}
			onlyA, onlyB := keyset.Diff(a, b)
			for _, k := range onlyA {
				fmt.Printf("- %s\n", c.p.ExportPublicKey(k))
			}
			for _, k := range onlyB {
				fmt.Printf("+ %s\n", c.p.ExportPublicKey(k))
			}
			return fmt.Errorf("key sets differ")
		},
	}

	cmd.AddCommand(generate, compare)
	return cmd
}

// writePrivate guarda la privada en base64; con password la exporta cifrada.
func writePrivate(c *cli, path string, priv crypto.PrivateKey) error {
	data := []byte(priv)
	if pw := os.Getenv(c.KeyPasswordEnv); pw != "" {
		enc, err := c.p.ExportPrivateKey(priv, pw)
		if err != nil {
			return err
		}
		data = enc
	}
	return atomicwrite.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(data)+"\n"), 0o600)
}

func readPublicList(p crypto.Provider, path string) ([]crypto.PublicKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []crypto.PublicKey
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, err := p.ImportPublicKey(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		out = append(out, k)
	}
	return out, sc.Err()
}
