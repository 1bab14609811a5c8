package postgres

import (
	"gorm.io/gorm"

	"github.com/groovy/replicasync/internal/ports"
)

type Repositories struct {
	Users       ports.UserReplicaRepository
	Songs       ports.SongReplicaRepository
	Catalog     ports.SongCatalogRepository
	Checkpoints ports.CheckpointRepository
	EventDedup  ports.EventDedupRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:       &userReplicaRepository{db: db},
		Songs:       &songReplicaRepository{db: db},
		Catalog:     &songCatalogRepository{db: db},
		Checkpoints: &checkpointRepository{db: db},
		EventDedup:  &eventDedupRepository{db: db},
	}
}
