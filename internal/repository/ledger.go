package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"insurance-agent/internal/domain"
)

// maxListedSubmissions bounds the dashboard list.
const maxListedSubmissions = 100

// Ledger records completed verifications in a table keyed by submissionId.
type Ledger struct {
	api       dynamodbAPI
	tableName string
}

// NewLedger creates a Ledger for tableName.
func NewLedger(api dynamodbAPI, tableName string) (*Ledger, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Ledger{api: api, tableName: tableName}, nil
}

// Record writes a submission. Duplicate submission IDs are rejected.
func (l *Ledger) Record(ctx context.Context, sub domain.Submission) error {
	if strings.TrimSpace(sub.SubmissionID) == "" {
		return errors.New("repository: Record: submission id is required")
	}
	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                submissionItem(sub),
		ConditionExpression: aws.String("attribute_not_exists(submissionId)"),
	})
	if err != nil {
		return fmt.Errorf("repository: Record: %w", err)
	}
	return nil
}

// List returns the latest 100 submissions, newest first. The table has no
// time-ordered index, so every page is scanned and the result trimmed.
func (l *Ledger) List(ctx context.Context) ([]domain.Submission, error) {
	var (
		subs  []domain.Submission
		start map[string]types.AttributeValue
	)
	for {
		out, err := l.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(l.tableName),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: List scan: %w", err)
		}
		for _, item := range out.Items {
			sub, err := itemToSubmission(item)
			if err != nil {
				return nil, fmt.Errorf("repository: List unmarshal: %w", err)
			}
			subs = append(subs, sub)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
	if len(subs) > maxListedSubmissions {
		subs = subs[:maxListedSubmissions]
	}
	return subs, nil
}

func submissionItem(sub domain.Submission) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"submissionId":    s(sub.SubmissionID),
		"submittedAt":     s(sub.SubmittedAt.UTC().Format(time.RFC3339Nano)),
		"sessionId":       s(sub.SessionID),
		"name":            s(sub.Patient.Name),
		"dob":             s(sub.Patient.DOB),
		"provider":        s(sub.Patient.Provider),
		"policyId":        s(sub.Patient.PolicyID),
		"status":          s(string(sub.Result.Status)),
		"planName":        s(sub.Result.PlanName),
		"coverageSummary": s(sub.Result.CoverageSummary),
		"nextSteps":       s(sub.Result.NextSteps),
	}
}

func itemToSubmission(item map[string]types.AttributeValue) (domain.Submission, error) {
	var sub domain.Submission
	fields := []struct {
		key string
		dst *string
	}{
		{"submissionId", &sub.SubmissionID},
		{"sessionId", &sub.SessionID},
		{"name", &sub.Patient.Name},
		{"dob", &sub.Patient.DOB},
		{"provider", &sub.Patient.Provider},
		{"policyId", &sub.Patient.PolicyID},
		{"planName", &sub.Result.PlanName},
		{"coverageSummary", &sub.Result.CoverageSummary},
		{"nextSteps", &sub.Result.NextSteps},
	}
	for _, f := range fields {
		v, err := strAttr(item, f.key)
		if err != nil {
			return domain.Submission{}, err
		}
		*f.dst = v
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Submission{}, err
	}
	sub.Result.Status = domain.Status(status)
	at, err := strAttr(item, "submittedAt")
	if err != nil {
		return domain.Submission{}, err
	}
	sub.SubmittedAt, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("repository: parse submittedAt: %w", err)
	}
	return sub, nil
}
