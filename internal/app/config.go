package app

import (
	"time"

	"github.com/tagmate/tagmate-backend/internal/pkg/envutil"
)

type Config struct {
	JWTSecretKey   string
	AccessTokenTTL time.Duration
	StartWorker    bool
}

func LoadConfig() Config {
	return Config{
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		AccessTokenTTL: envutil.Seconds("ACCESS_TOKEN_TTL", 3600),
		StartWorker:    envutil.Bool("START_WORKER", false),
	}
}
