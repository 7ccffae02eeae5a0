package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/types"
)

const defaultMongoTimeout = 5 * time.Second

// briefDocument is the archived form of one brief. The brief itself is
// embedded whole; the top-level fields exist for indexing and queries.
type briefDocument struct {
	AgentID  string          `bson:"agent_id"`
	TurnID   string          `bson:"turn_id"`
	Turn     int             `bson:"turn"`
	Status   string          `bson:"status"`
	StoredAt time.Time       `bson:"stored_at"`
	Brief    types.TurnBrief `bson:"brief"`
}

// MongoArchive stores briefs in a MongoDB collection, one document per
// (agent, turn), upserted so a re-run turn replaces its briefs.
type MongoArchive struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// NewMongoArchive connects to the configured MongoDB and verifies the
// connection before returning.
func NewMongoArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (*MongoArchive, error) {
	if cfg.URI == "" {
		return nil, types.NewError(types.ErrInvalidConfiguration, "mongo archive requires a uri")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, types.NewError(types.ErrInvalidConfiguration, "mongo archive requires database and collection names")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "mongo connect failed").WithCause(err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, types.NewError(types.ErrServiceUnavailable, "mongo ping failed").WithCause(err)
	}

	logger.Info("mongo archive connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))
	return &MongoArchive{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(cfg.Collection),
		timeout: timeout,
		logger:  logger.With(zap.String("component", "archive")),
	}, nil
}

// Put implements Archive.
func (a *MongoArchive) Put(ctx context.Context, brief types.TurnBrief) error {
	if brief.AgentID == "" || brief.TurnID == "" {
		return types.NewError(types.ErrValidation, "brief requires agent_id and turn_id to archive")
	}
	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	doc := briefDocument{
		AgentID:  brief.AgentID,
		TurnID:   brief.TurnID,
		Turn:     brief.Turn,
		Status:   brief.Status(),
		StoredAt: time.Now().UTC(),
		Brief:    brief,
	}
	filter := bson.M{"agent_id": brief.AgentID, "turn_id": brief.TurnID}
	_, err := a.coll.ReplaceOne(opCtx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return types.NewError(types.ErrServiceUnavailable, "archive write failed").WithCause(err)
	}
	return nil
}

// Get implements Archive.
func (a *MongoArchive) Get(ctx context.Context, agentID, turnID string) (types.TurnBrief, error) {
	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var doc briefDocument
	err := a.coll.FindOne(opCtx, bson.M{"agent_id": agentID, "turn_id": turnID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.TurnBrief{}, types.NewError(types.ErrNotFound,
			fmt.Sprintf("no archived brief for agent %s in turn %s", agentID, turnID))
	}
	if err != nil {
		return types.TurnBrief{}, types.NewError(types.ErrServiceUnavailable, "archive read failed").WithCause(err)
	}
	return doc.Brief, nil
}

// ListTurn implements Archive.
func (a *MongoArchive) ListTurn(ctx context.Context, turnID string) ([]types.TurnBrief, error) {
	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cursor, err := a.coll.Find(opCtx, bson.M{"turn_id": turnID},
		options.Find().SetSort(bson.D{{Key: "agent_id", Value: 1}}))
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "archive list failed").WithCause(err)
	}
	var docs []briefDocument
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "archive cursor failed").WithCause(err)
	}
	out := make([]types.TurnBrief, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Brief)
	}
	return out, nil
}

// Close disconnects the underlying client.
func (a *MongoArchive) Close(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.client.Disconnect(opCtx)
}
