// Package store selects the subject record store configured for the
// process.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"occasions/internal/config"
	"occasions/internal/db"
	"occasions/internal/store/dynamo"
	"occasions/internal/types"
)

// SubjectStore is the record store contract shared by the DynamoDB and
// PostgreSQL implementations. Missing ids surface as ErrCodeNotFoundSubject
// and backend failures as ErrCodeInternalDB.
type SubjectStore interface {
	Create(ctx context.Context, subject *types.Subject) error
	Get(ctx context.Context, id string) (*types.Subject, error)
	Update(ctx context.Context, subject *types.Subject) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, fn func(*types.Subject) error) error
	Ping(ctx context.Context) error
}

var (
	_ SubjectStore = (*dynamo.SubjectStore)(nil)
	_ SubjectStore = (*db.SubjectRepository)(nil)
)

// Open builds the store selected by cfg.Driver. The returned close function
// releases driver resources and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, awsCfg aws.Config, logger *slog.Logger) (SubjectStore, func(), error) {
	switch cfg.Driver {
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, func() {}, err
		}
		repo := db.NewSubjectRepository(pool)
		if cfg.AutoCreate {
			if err := repo.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, func() {}, err
			}
		}
		logger.Info("record store ready", "driver", cfg.Driver)
		return repo, pool.Close, nil

	case config.StoreDriverDynamo, "":
		subjects := dynamo.NewSubjectStore(dynamodb.NewFromConfig(awsCfg), cfg.Table, logger)
		if cfg.AutoCreate {
			if err := subjects.EnsureTable(ctx); err != nil {
				return nil, func() {}, err
			}
		}
		logger.Info("record store ready", "driver", config.StoreDriverDynamo, "table", cfg.Table)
		return subjects, func() {}, nil

	default:
		return nil, func() {}, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
