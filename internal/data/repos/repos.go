// Package repos aggregates the repository interfaces so call sites can take a
// single import.
package repos

import (
	"github.com/tagmate/tagmate-backend/internal/data/repos/activities"
	"github.com/tagmate/tagmate-backend/internal/data/repos/clusters"
	"github.com/tagmate/tagmate-backend/internal/data/repos/documents"
	"github.com/tagmate/tagmate-backend/internal/data/repos/jobs"
	"github.com/tagmate/tagmate-backend/internal/data/repos/users"
)

type (
	UserRepo            = users.UserRepo
	ActivityRepo        = activities.ActivityRepo
	ActivityUserMapRepo = activities.ActivityUserMapRepo
	DocumentRepo        = documents.DocumentRepo
	ClusterRepo         = clusters.ClusterRepo
	JobRunRepo          = jobs.JobRunRepo

	LabelUpdate   = documents.LabelUpdate
	ClusterUpdate = documents.ClusterUpdate
)

var (
	NewUserRepo            = users.NewUserRepo
	NewActivityRepo        = activities.NewActivityRepo
	NewActivityUserMapRepo = activities.NewActivityUserMapRepo
	NewDocumentRepo        = documents.NewDocumentRepo
	NewClusterRepo         = clusters.NewClusterRepo
	NewJobRunRepo          = jobs.NewJobRunRepo
)
