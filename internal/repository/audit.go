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
)

// auditTTL keeps access records for the six-year HIPAA retention window.
const auditTTL = 6 * 365 * 24 * time.Hour

// AuditLog appends session access events to a table keyed by
// PK=AUDIT#<sessionId>, SK=<at>#<eventId>.
type AuditLog struct {
	api       dynamodbAPI
	tableName string
}

func NewAuditLog(api dynamodbAPI, tableName string) (*AuditLog, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &AuditLog{api: api, tableName: tableName}, nil
}

func auditPK(sessionID string) string {
	return "AUDIT#" + sessionID
}

// Audit writes ev. Events are never overwritten.
func (a *AuditLog) Audit(ctx context.Context, ev domain.AuditEvent) error {
	if ev.SessionID == "" || ev.EventID == "" {
		return errors.New("repository: Audit: session and event ids are required")
	}
	at := ev.At.UTC()
	_, err := a.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        s(auditPK(ev.SessionID)),
			"SK":        s(at.Format(time.RFC3339Nano) + "#" + ev.EventID),
			"eventId":   s(ev.EventID),
			"sessionId": s(ev.SessionID),
			"action":    s(string(ev.Action)),
			"step":      s(string(ev.Step)),
			"at":        s(at.Format(time.RFC3339Nano)),
			"ttl":       n(ttlValue(at, auditTTL)),
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: Audit: %w", err)
	}
	return nil
}

// Trail returns the events recorded for sessionID, oldest first.
func (a *AuditLog) Trail(ctx context.Context, sessionID string) ([]domain.AuditEvent, error) {
	var (
		events []domain.AuditEvent
		start  map[string]types.AttributeValue
	)
	for {
		out, err := a.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(a.tableName),
			KeyConditionExpression:    aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s(auditPK(sessionID))},
			ScanIndexForward:          aws.Bool(true),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: Trail query: %w", err)
		}
		for _, item := range out.Items {
			ev, err := itemToAuditEvent(item)
			if err != nil {
				return nil, fmt.Errorf("repository: Trail unmarshal: %w", err)
			}
			events = append(events, ev)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return events, nil
		}
		start = out.LastEvaluatedKey
	}
}

func itemToAuditEvent(item map[string]types.AttributeValue) (domain.AuditEvent, error) {
	var (
		ev                  domain.AuditEvent
		action, step, atRaw string
	)
	fields := []struct {
		key string
		dst *string
	}{
		{"eventId", &ev.EventID},
		{"sessionId", &ev.SessionID},
		{"action", &action},
		{"step", &step},
		{"at", &atRaw},
	}
	for _, f := range fields {
		v, err := strAttr(item, f.key)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		*f.dst = v
	}
	at, err := time.Parse(time.RFC3339Nano, atRaw)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("repository: parse at: %w", err)
	}
	ev.Action = domain.AuditAction(action)
	ev.Step = domain.Step(step)
	ev.At = at
	return ev, nil
}
