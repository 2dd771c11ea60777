package app

import (
	"gorm.io/gorm"

	"github.com/tagmate/tagmate-backend/internal/data/repos"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

type Repos struct {
	User            repos.UserRepo
	Activity        repos.ActivityRepo
	ActivityUserMap repos.ActivityUserMapRepo
	Document        repos.DocumentRepo
	Cluster         repos.ClusterRepo
	JobRun          repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		User:            repos.NewUserRepo(db, log),
		Activity:        repos.NewActivityRepo(db, log),
		ActivityUserMap: repos.NewActivityUserMapRepo(db, log),
		Document:        repos.NewDocumentRepo(db, log),
		Cluster:         repos.NewClusterRepo(db, log),
		JobRun:          repos.NewJobRunRepo(db, log),
	}
}
