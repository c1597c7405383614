package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/procession"
	"github.com/xraph/procession/forms"
	"github.com/xraph/procession/id"
)

// SaveSession persists a session, replacing any previous state.
func (s *Store) SaveSession(ctx context.Context, sess *forms.SessionState) error {
	m, err := toSessionModel(sess)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(colSessions).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: m.ID}}, m,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("procession/mongo: save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*forms.SessionState, error) {
	var m sessionModel
	err := s.db.Collection(colSessions).FindOne(ctx,
		bson.D{{Key: "_id", Value: sessionID.String()}}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, procession.ErrSessionNotFound
		}
		return nil, fmt.Errorf("procession/mongo: get session: %w", err)
	}
	return fromSessionModel(&m)
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.db.Collection(colSessions).DeleteOne(ctx,
		bson.D{{Key: "_id", Value: sessionID.String()}})
	if err != nil {
		return fmt.Errorf("procession/mongo: delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return procession.ErrSessionNotFound
	}
	return nil
}
