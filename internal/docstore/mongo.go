package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Mongo implements Store on top of a MongoDB database with the
// conversations, messages and presence collections.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect dials the store, verifies the connection and ensures indexes.
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, classify("connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify("ping", err)
	}

	s := &Mongo{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Close disconnects from the store.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Mongo) conversations() *mongo.Collection { return s.db.Collection("conversations") }
func (s *Mongo) messages() *mongo.Collection      { return s.db.Collection("messages") }
func (s *Mongo) presenceColl() *mongo.Collection  { return s.db.Collection("presence") }

func (s *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := s.messages().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return classify("create message indexes", err)
	}
	_, err = s.conversations().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastUpdated", Value: -1}},
	})
	if err != nil {
		return classify("create conversation indexes", err)
	}
	return nil
}

// FetchOrdered returns the full persisted timeline of a conversation,
// ascending by createdAt with insertion-order tie break on _id.
func (s *Mongo) FetchOrdered(ctx context.Context, conversationID string) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.messages().Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, classify("fetch messages", err)
	}
	defer cursor.Close(ctx)

	var msgs []Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, classify("decode messages", err)
	}
	return msgs, nil
}

// Create appends a message and refreshes the conversation's denormalized
// preview fields. The sender must be a conversation participant.
func (s *Mongo) Create(ctx context.Context, conversationID string, msg Message) (Message, error) {
	msg.ConversationID = conversationID
	if err := ValidateMessage(&msg); err != nil {
		return Message{}, err
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}
	if conv == nil {
		return Message{}, fmt.Errorf("create message: %w: conversation %s not found", ErrValidation, conversationID)
	}
	if !contains(conv.Participants, msg.SenderID) {
		return Message{}, fmt.Errorf("create message: %w: sender %s is not a participant", ErrPermissionDenied, msg.SenderID)
	}

	msg.ID = bson.NewObjectID().Hex()
	msg.CreatedAt = time.Now().UTC()
	msg.Status = ""
	if !msg.ReadByContains(msg.SenderID) {
		msg.ReadBy = append(msg.ReadBy, msg.SenderID)
	}

	if _, err := s.messages().InsertOne(ctx, msg); err != nil {
		return Message{}, classify("insert message", err)
	}

	_, err = s.conversations().UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{
			"lastMessage": msg.Preview(),
			"lastUpdated": msg.CreatedAt,
		}})
	if err != nil {
		// The message is persisted; a stale preview self-heals on the
		// next append.
		s.logger.Warn("preview update failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	return msg, nil
}

// PatchMessage applies a field-level merge-patch to one message.
func (s *Mongo) PatchMessage(ctx context.Context, conversationID, messageID string, patch Patch) error {
	update := bson.M{}
	if len(patch.Set) > 0 {
		update["$set"] = bson.M(patch.Set)
	}
	if len(patch.AddToSet) > 0 {
		update["$addToSet"] = bson.M(patch.AddToSet)
	}
	if len(patch.Unset) > 0 {
		unset := bson.M{}
		for _, field := range patch.Unset {
			unset[field] = ""
		}
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	_, err := s.messages().UpdateOne(ctx,
		bson.M{"_id": messageID, "conversationId": conversationID},
		update)
	return classify("patch message", err)
}

// GetConversation returns a conversation by id, or nil when absent.
func (s *Mongo) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	err := s.conversations().FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get conversation", err)
	}
	return &conv, nil
}

// CreateConversation starts a new thread between the participants.
func (s *Mongo) CreateConversation(ctx context.Context, participants []string, title string) (Conversation, error) {
	if len(participants) < 2 {
		return Conversation{}, fmt.Errorf("create conversation: %w: need at least two participants", ErrValidation)
	}
	conv := Conversation{
		ID:           bson.NewObjectID().Hex(),
		Participants: participants,
		Title:        title,
		LastUpdated:  time.Now().UTC(),
	}
	if _, err := s.conversations().InsertOne(ctx, conv); err != nil {
		return Conversation{}, classify("insert conversation", err)
	}
	return conv, nil
}

// ListConversations returns the user's threads, most recent first.
func (s *Mongo) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastUpdated", Value: -1}})

	cursor, err := s.conversations().Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, classify("list conversations", err)
	}
	defer cursor.Close(ctx)

	var convs []Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, classify("decode conversations", err)
	}
	return convs, nil
}

// SetConversationField sets one conversation field via merge-patch.
// Dotted paths address map entries (e.g. "typing.<uid>"), so concurrent
// writers of different keys never clobber each other.
func (s *Mongo) SetConversationField(ctx context.Context, conversationID, fieldPath string, value any) error {
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{fieldPath: value}})
	return classify("set conversation field", err)
}

// DeleteConversationField removes one conversation field.
func (s *Mongo) DeleteConversationField(ctx context.Context, conversationID, fieldPath string) error {
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$unset": bson.M{fieldPath: ""}})
	return classify("delete conversation field", err)
}

// SetPresence mirrors the user's online flag into the presence collection.
func (s *Mongo) SetPresence(ctx context.Context, userID string, online bool) error {
	_, err := s.presenceColl().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"online": online, "lastActive": time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true))
	return classify("set presence", err)
}

// GetPresence returns a user's presence document, or nil when absent.
func (s *Mongo) GetPresence(ctx context.Context, userID string) (*Presence, error) {
	var p Presence
	err := s.presenceColl().FindOne(ctx, bson.M{"_id": userID}).Decode(&p)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get presence", err)
	}
	return &p, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
