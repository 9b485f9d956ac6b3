// Package e3test es el harness de tests end-to-end: constantes de la app,
// emisión de tokens, publicación de cards y comparación de key sets contra
// un directorio real o uno local en proceso.
package e3test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellocards/internal/crypto"
)

// Consts es la configuración de tests. Se carga una vez y se pasa explícitamente.
type Consts struct {
	AppID    string `yaml:"app_id"`
	APIKeyID string `yaml:"api_key_id"`

	// APIPrivateKey: base64 de la privada cruda (64 bytes) o de su exportación con password.
	APIPrivateKey     string `yaml:"api_private_key"`
	APIKeyPasswordEnv string `yaml:"api_key_password_env"`
	ServiceURL        string `yaml:"service_url"`
	ServicePublicKey  string `yaml:"service_public_key"`
}

// LoadConsts lee las constantes de un YAML. CARDS_TEST_SERVICE_URL pisa service_url.
func LoadConsts(path string) (Consts, error) {
	var c Consts
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if v := os.Getenv("CARDS_TEST_SERVICE_URL"); v != "" {
		c.ServiceURL = v
	}
	return c, c.Validate()
}

func (c Consts) Validate() error {
	var errs []error
	if c.AppID == "" {
		errs = append(errs, errors.New("app_id is required"))
	}
	if c.APIKeyID == "" {
		errs = append(errs, errors.New("api_key_id is required"))
	}
	if c.APIPrivateKey == "" {
		errs = append(errs, errors.New("api_private_key is required"))
	}
	if c.ServiceURL == "" {
		errs = append(errs, errors.New("service_url is required"))
	}
	return errors.Join(errs...)
}

// NewLocalConsts arma constantes para una API key dada (harness local).
func NewLocalConsts(appID, keyID string, priv crypto.PrivateKey, serviceURL string, servicePub crypto.PublicKey, p crypto.Provider) Consts {
	c := Consts{
		AppID:         appID,
		APIKeyID:      keyID,
		APIPrivateKey: base64.StdEncoding.EncodeToString(priv),
		ServiceURL:    serviceURL,
	}
	if servicePub != nil {
		c.ServicePublicKey = p.ExportPublicKey(servicePub)
	}
	return c
}

// APIKey decodifica la privada de la API key.
func (c Consts) APIKey(p crypto.Provider) (crypto.PrivateKey, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.APIPrivateKey))
	if err != nil {
		return nil, fmt.Errorf("api_private_key: %w", err)
	}
	if bytes.HasPrefix(data, []byte("HCK1")) {
		return p.ImportPrivateKey(data, os.Getenv(c.APIKeyPasswordEnv))
	}
	priv := crypto.PrivateKey(data)
	if !priv.Valid() {
		return nil, crypto.ErrInvalidPrivateKey
	}
	return priv, nil
}

// ServiceKey decodifica la pública del servicio; nil si no está configurada.
func (c Consts) ServiceKey(p crypto.Provider) (crypto.PublicKey, error) {
	if c.ServicePublicKey == "" {
		return nil, nil
	}
	return p.ImportPublicKey(c.ServicePublicKey)
}
