package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field evita que los callers importen zap solo para armar listas de campos.
type Field = zap.Field

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// DurationMs registra la duración en milisegundos.
func DurationMs(d time.Duration) zap.Field { return zap.Int64("duration_ms", d.Milliseconds()) }

// ---- Dominio ----

// Identity del principal dueño de la card o del token.
func Identity(v string) zap.Field { return zap.String("identity", v) }

func CardID(v string) zap.Field { return zap.String("card_id", v) }

// KID de la clave de firma del issuer.
func KID(v string) zap.Field { return zap.String("kid", v) }

func AppID(v string) zap.Field { return zap.String("app_id", v) }

// KeyID es el identificador corto de una clave pública (hex de 8 bytes).
func KeyID(v string) zap.Field { return zap.String("key_id", v) }

func TTL(v time.Duration) zap.Field { return zap.Duration("ttl", v) }

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }

func String(key, v string) zap.Field  { return zap.String(key, v) }
func Any(key string, v any) zap.Field  { return zap.Any(key, v) }
