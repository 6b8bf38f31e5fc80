package commander

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexflow/internal/domain"
	"lexflow/internal/repo"
)

// Resolver maps human-entered names to records of one tenant. A nil record with a nil
// error means nothing matched. Matching is "first match wins" by the store's ordering.
type Resolver interface {
	User(ctx context.Context, tenantID, name string) (*domain.User, error)
	Client(ctx context.Context, tenantID, name string) (*domain.Client, error)
	Project(ctx context.Context, tenantID, name string) (*domain.Project, error)
	Case(ctx context.Context, tenantID, number string) (*domain.Case, error)
	// StagePath walks Project → Protocol → Stage and fails with *HierarchyError at the
	// first missing level.
	StagePath(ctx context.Context, tenantID, project, protocol, stage string) (*StagePath, error)
}

// StagePath is a fully resolved protocol stage.
type StagePath struct {
	Project  domain.Project
	Protocol domain.Protocol
	Stage    domain.Stage
}

const (
	LevelProject  = "projeto"
	LevelProtocol = "protocolo"
	LevelStage    = "etapa"
)

// HierarchyError names the level that failed and the parent it was searched in.
type HierarchyError struct {
	Level  string
	Name   string
	Parent string
}

func (e *HierarchyError) Error() string {
	switch e.Level {
	case LevelProtocol:
		return fmt.Sprintf("Protocolo \"%s\" não encontrado no projeto \"%s\"", e.Name, e.Parent)
	case LevelStage:
		return fmt.Sprintf("Etapa \"%s\" não encontrada no protocolo \"%s\"", e.Name, e.Parent)
	default:
		return fmt.Sprintf("Projeto \"%s\" não encontrado", e.Name)
	}
}

// SQLResolver resolves against the repository.
type SQLResolver struct {
	Repo repo.Repo
}

func found[T any](v T, err error) (*T, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s SQLResolver) User(ctx context.Context, tenantID, name string) (*domain.User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return found(s.Repo.FindUserByName(ctx, tenantID, name))
}

func (s SQLResolver) Client(ctx context.Context, tenantID, name string) (*domain.Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return found(s.Repo.FindClientByName(ctx, tenantID, name))
}

func (s SQLResolver) Project(ctx context.Context, tenantID, name string) (*domain.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return found(s.Repo.FindProjectByName(ctx, tenantID, name))
}

func (s SQLResolver) Case(ctx context.Context, tenantID, number string) (*domain.Case, error) {
	if repo.OnlyDigits(number) == "" {
		return nil, nil
	}
	return found(s.Repo.FindCaseByNumber(ctx, tenantID, number))
}

func (s SQLResolver) StagePath(ctx context.Context, tenantID, project, protocol, stage string) (*StagePath, error) {
	p, err := s.Project(ctx, tenantID, project)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &HierarchyError{Level: LevelProject, Name: project}
	}
	proto, err := found(s.Repo.FindProtocolByName(ctx, tenantID, p.ID, protocol))
	if err != nil {
		return nil, err
	}
	if proto == nil {
		return nil, &HierarchyError{Level: LevelProtocol, Name: protocol, Parent: p.Name}
	}
	st, err := found(s.Repo.FindStageByName(ctx, tenantID, proto.ID, stage))
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, &HierarchyError{Level: LevelStage, Name: stage, Parent: proto.Name}
	}
	return &StagePath{Project: *p, Protocol: *proto, Stage: *st}, nil
}
