package storage

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a mongo database. The unique index on
// rooms.slug arbitrates the create race; per-room message ordering comes
// from a counters collection incremented atomically per append.
type MongoStore struct {
	rooms    *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection
	users    *mongo.Collection
}

type roomDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Slug      string             `bson:"slug"`
	AdminID   string             `bson:"admin_id"`
	MemberIDs []string           `bson:"member_ids"`
	CreatedAt time.Time          `bson:"created_at"`
}

type messageDoc struct {
	Seq       int64     `bson:"seq"`
	RoomSlug  string    `bson:"room_slug"`
	AuthorID  string    `bson:"author_id"`
	Body      string    `bson:"body"`
	CreatedAt time.Time `bson:"created_at"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, pkgerrors.Wrap(err, "ping mongo")
	}
	db := client.Database(database)
	s := &MongoStore{
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
		counters: db.Collection("counters"),
		users:    db.Collection("users"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return pkgerrors.Wrap(err, "ensure room slug index")
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_slug", Value: 1}, {Key: "seq", Value: -1}},
	})
	return pkgerrors.Wrap(err, "ensure message index")
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.rooms.Database().Client().Disconnect(ctx)
}

func (s *MongoStore) FindRoomBySlug(ctx context.Context, slug string) (*Room, error) {
	var doc roomDoc
	err := s.rooms.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find room")
	}
	return doc.toRoom(), nil
}

func (s *MongoStore) CreateRoom(ctx context.Context, slug, adminID string) (*Room, error) {
	doc := roomDoc{
		Slug:      slug,
		AdminID:   adminID,
		MemberIDs: []string{adminID},
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.rooms.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrRoomExists
		}
		return nil, pkgerrors.Wrap(err, "insert room")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.toRoom(), nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, roomSlug, authorID, text string) (*StoredMessage, error) {
	if err := s.rooms.FindOne(ctx, bson.M{"slug": roomSlug}).Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrRoomNotFound
		}
		return nil, pkgerrors.Wrap(err, "check room")
	}

	seq, err := s.nextSeq(ctx, roomSlug)
	if err != nil {
		return nil, err
	}
	doc := messageDoc{
		Seq:       seq,
		RoomSlug:  roomSlug,
		AuthorID:  authorID,
		Body:      text,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, pkgerrors.Wrap(err, "insert message")
	}

	return &StoredMessage{
		ID:         doc.Seq,
		RoomSlug:   roomSlug,
		AuthorID:   authorID,
		AuthorName: s.authorName(ctx, authorID),
		Text:       text,
		CreatedAt:  doc.CreatedAt,
	}, nil
}

func (s *MongoStore) ListRecentMessages(ctx context.Context, roomSlug string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, bson.M{"room_slug": roomSlug}, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list recent messages")
	}
	defer cur.Close(ctx)

	var out []StoredMessage
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, pkgerrors.Wrap(err, "decode message")
		}
		out = append(out, StoredMessage{
			ID:         doc.Seq,
			RoomSlug:   doc.RoomSlug,
			AuthorID:   doc.AuthorID,
			AuthorName: s.authorName(ctx, doc.AuthorID),
			Text:       doc.Body,
			CreatedAt:  doc.CreatedAt,
		})
	}
	return out, pkgerrors.Wrap(cur.Err(), "iterate messages")
}

// nextSeq atomically increments the per-room message counter.
func (s *MongoStore) nextSeq(ctx context.Context, roomSlug string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "msg:" + roomSlug},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "next message seq")
	}
	return doc.Seq, nil
}

func (s *MongoStore) authorName(ctx context.Context, authorID string) string {
	var doc struct {
		Name string `bson:"name"`
	}
	err := s.users.FindOne(ctx, bson.M{"_id": authorID}).Decode(&doc)
	if err != nil || doc.Name == "" {
		return authorID
	}
	return doc.Name
}

func (d *roomDoc) toRoom() *Room {
	id := ""
	if !d.ID.IsZero() {
		id = d.ID.Hex()
	}
	return &Room{
		ID:        id,
		Slug:      d.Slug,
		AdminID:   d.AdminID,
		MemberIDs: append([]string(nil), d.MemberIDs...),
		CreatedAt: d.CreatedAt,
	}
}
