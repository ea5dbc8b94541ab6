package repository

import (
	"log"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/repository/memory"
	"github.com/navikt/liveroom/internal/repository/redis"
)

// NewRepository returns a Redis repository when Redis is enabled and an
// in-memory repository otherwise
func NewRepository(cfg config.RedisConfig) (Repository, error) {
	if !cfg.Enabled {
		log.Println("Using in-memory repository")
		return memory.NewRepository(), nil
	}

	repo, err := redis.NewRepository(cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Using Redis repository")
	return repo, nil
}
