package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App  AppConfig
	DIAN DIANConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string `validate:"oneof=development staging production"`
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error"`
}

// DIANConfig literales de la política de firma y opciones del firmador.
type DIANConfig struct {
	PolicyIdentifier   string `validate:"required"`
	PolicyDescription  string `validate:"required"`
	PolicyDocument     string // Ruta al PDF de la política (vacío = el incluido en el binario)
	PolicyDigest       string `validate:"omitempty,base64"` // Digest publicado del PDF ("" = no verificar)
	PolicyDigestMethod string `validate:"required,uri"`
	SignerRole         string `validate:"required"`
	SignatureID        string `validate:"required"`
	Timezone           string // Zona para SigningTime (vacío = hora local del sistema)
}

// Policy arma la política inmutable que se inyecta al servicio de firma.
func (c DIANConfig) Policy() xades.Policy {
	return xades.Policy{
		Identifier:      c.PolicyIdentifier,
		Description:     c.PolicyDescription,
		Role:            c.SignerRole,
		DigestMethodURI: c.PolicyDigestMethod,
	}
}

// Location resuelve Timezone.
func (c DIANConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: DIAN_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, LOG_LEVEL, DIAN_POLICY_DOCUMENT, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return FromViper(v)
}

// FromViper construye y valida la configuración a partir de v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "production"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DIAN: DIANConfig{
			PolicyIdentifier:   getString(v, "DIAN_POLICY_IDENTIFIER", xades.PolicyIdentifierV2),
			PolicyDescription:  getString(v, "DIAN_POLICY_DESCRIPTION", xades.PolicyDescriptionV2),
			PolicyDocument:     getString(v, "DIAN_POLICY_DOCUMENT", ""),
			PolicyDigest:       getString(v, "DIAN_POLICY_DIGEST", xades.PolicyDigestV2),
			PolicyDigestMethod: getString(v, "DIAN_POLICY_DIGEST_METHOD", xades.SHA256.URI()),
			SignerRole:         getString(v, "DIAN_SIGNER_ROLE", xades.RoleSupplier),
			SignatureID:        getString(v, "DIAN_SIGNATURE_ID", "xmldsig-facho"),
			Timezone:           getString(v, "DIAN_TIMEZONE", ""),
		},
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}
