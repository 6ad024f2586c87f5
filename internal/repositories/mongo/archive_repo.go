package mongo

import (
	"context"
	"time"

	"github.com/planloop/planloop/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ArchiveRepository is the append-only history of ended sessions.
type ArchiveRepository interface {
	Append(ctx context.Context, arch *models.SessionArchive) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.SessionArchive, error)
}

type archiveRepo struct {
	col *mongo.Collection
}

func NewArchiveRepo(db *mongo.Database) ArchiveRepository {
	return &archiveRepo{col: db.Collection("session_archive")}
}

func (r *archiveRepo) Append(ctx context.Context, arch *models.SessionArchive) error {
	if arch.EndedAt.IsZero() {
		arch.EndedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, arch)
	return err
}

func (r *archiveRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.SessionArchive, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ended_at", Value: -1}}).
		SetLimit(limit)

	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.SessionArchive
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
