package service

import "github.com/smallbiznis/aquabill/internal/sequence/domain"

// RepoOf exposes the service's repository to the external test package.
func RepoOf(s *Service) domain.Repository { return s.repo }
