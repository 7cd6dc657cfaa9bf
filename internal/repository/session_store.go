package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/session"
)

const (
	skState           = "STATE"
	skVisitor         = "VISITOR"
	defaultSessionTTL = 24 * time.Hour
	visitorTTL        = 180 * 24 * time.Hour
)

// SessionStore keeps conversation sessions in a DynamoDB table keyed by
// PK=SESSION#<key>. Writes are conditioned on the stored revision so two
// tabs racing on one key cannot silently overwrite each other.
type SessionStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionStore creates a SessionStore. A non-positive ttl uses 24h.
func NewSessionStore(api dynamodbAPI, tableName string, ttl time.Duration) (*SessionStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

func sessionPK(key string) string {
	return "SESSION#" + key
}

func (c *SessionStore) itemKey(key, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": s(sessionPK(key)),
		"SK": s(sk),
	}
}

// Load returns the stored session, (nil, nil) when absent, or an error
// wrapping session.ErrCorrupt when the payload cannot be decoded.
func (c *SessionStore) Load(ctx context.Context, key string) (*domain.Session, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.itemKey(key, skState),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	payload, err := strAttr(out.Item, "payload")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCorrupt, err)
	}
	sess, err := session.Decode([]byte(payload))
	if err != nil {
		return nil, err
	}
	// The revision attribute is what Save conditions on.
	if rev, err := intAttr(out.Item, "revision"); err == nil {
		sess.Revision = rev
	}
	return sess, nil
}

// Save writes s under key. s.Revision must already be the new revision;
// the write only succeeds if the stored item is at s.Revision-1 or absent.
func (c *SessionStore) Save(ctx context.Context, key string, sess *domain.Session) error {
	payload, err := session.Encode(sess)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	item := c.itemKey(key, skState)
	item["sessionId"] = s(sess.SessionID)
	item["step"] = s(string(sess.Step))
	item["payload"] = s(string(payload))
	item["revision"] = n(sess.Revision)
	item["lastActivity"] = s(sess.LastActivityAt.UTC().Format(time.RFC3339))
	item["ttl"] = n(ttlValue(now, c.ttl))

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR revision = :prev"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev": n(sess.Revision - 1),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("repository: Save: %w", session.ErrConflict)
		}
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

// Clear deletes the session state for key.
func (c *SessionStore) Clear(ctx context.Context, key string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.itemKey(key, skState),
	})
	if err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}
	return nil
}

// HasVerified reports whether a verification has completed on key before.
func (c *SessionStore) HasVerified(ctx context.Context, key string) (bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.itemKey(key, skVisitor),
	})
	if err != nil {
		return false, fmt.Errorf("repository: HasVerified get item: %w", err)
	}
	return out != nil && len(out.Item) > 0, nil
}

// MarkVerified records that a verification completed on key.
func (c *SessionStore) MarkVerified(ctx context.Context, key string) error {
	now := c.now().UTC()
	item := c.itemKey(key, skVisitor)
	item["verifiedAt"] = s(now.Format(time.RFC3339))
	item["ttl"] = n(ttlValue(now, visitorTTL))
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("repository: MarkVerified: %w", err)
	}
	return nil
}
