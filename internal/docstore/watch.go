package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// SubscribeOrdered opens a change stream on the conversation's messages
// and invokes fn with the full re-fetched ordered snapshot on every
// change, starting with the current state. Deltas are never exposed:
// wholesale snapshots keep the caller's reconciliation simple.
func (s *Mongo) SubscribeOrdered(ctx context.Context, conversationID string, fn func([]Message)) (Subscription, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "fullDocument.conversationId", Value: conversationID},
		}}},
	}
	stream, err := s.messages().Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, classify("watch messages", err)
	}

	sub, subCtx := newStreamSub(ctx)
	go s.pump(subCtx, stream, func() {
		snap, err := s.FetchOrdered(subCtx, conversationID)
		if err != nil {
			s.logger.Warn("snapshot refresh failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
			return
		}
		fn(snap)
	})
	return sub, nil
}

// WatchConversation delivers the conversation document on every change,
// starting with the current state. Used for the typing map and the
// denormalized preview fields.
func (s *Mongo) WatchConversation(ctx context.Context, conversationID string, fn func(Conversation)) (Subscription, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "fullDocument._id", Value: conversationID},
		}}},
	}
	stream, err := s.conversations().Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, classify("watch conversation", err)
	}

	sub, subCtx := newStreamSub(ctx)
	go s.pump(subCtx, stream, func() {
		conv, err := s.GetConversation(subCtx, conversationID)
		if err != nil {
			s.logger.Warn("conversation refresh failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
			return
		}
		if conv != nil {
			fn(*conv)
		}
	})
	return sub, nil
}

// SubscribeConversations delivers the user's full conversation list on
// every change to any thread the user participates in.
func (s *Mongo) SubscribeConversations(ctx context.Context, userID string, fn func([]Conversation)) (Subscription, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "fullDocument.participants", Value: userID},
		}}},
	}
	stream, err := s.conversations().Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, classify("watch conversations", err)
	}

	sub, subCtx := newStreamSub(ctx)
	go s.pump(subCtx, stream, func() {
		convs, err := s.ListConversations(subCtx, userID)
		if err != nil {
			s.logger.Warn("conversation list refresh failed",
				zap.String("user_id", userID), zap.Error(err))
			return
		}
		fn(convs)
	})
	return sub, nil
}

// pump delivers the initial state and then re-delivers on every change
// stream event until the subscription context is cancelled.
func (s *Mongo) pump(ctx context.Context, stream *mongo.ChangeStream, deliver func()) {
	defer func() { _ = stream.Close(context.Background()) }()

	deliver()

	for stream.Next(ctx) {
		deliver()
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		s.logger.Warn("change stream terminated", zap.Error(err))
	}
}
