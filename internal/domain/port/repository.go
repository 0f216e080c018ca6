package port

import (
	"context"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.ExportJob) error
	Update(ctx context.Context, job *entity.ExportJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ExportJob, error)
}
