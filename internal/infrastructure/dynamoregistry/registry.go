// Package dynamoregistry implements the device and rollout registry
// ports on DynamoDB. The device table is keyed by DeviceID; the rollout
// table is keyed by ID with a StatusIndex secondary index used to list
// in-progress plans.
package dynamoregistry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

const statusIndexName = "StatusIndex"

// DeviceRegistry implements [domain.DeviceRegistry] on a DynamoDB table.
type DeviceRegistry struct {
	Client *dynamodb.Client
	Table  string
}

type deviceItem struct {
	DeviceID          string            `dynamodbav:"DeviceID"`
	DeviceGroup       string            `dynamodbav:"DeviceGroup"`
	CurrentVersion    string            `dynamodbav:"CurrentVersion"`
	UpdateStatus      string            `dynamodbav:"UpdateStatus"`
	LastUpdateID      string            `dynamodbav:"LastUpdateID"`
	LastUpdateTime    time.Time         `dynamodbav:"LastUpdateTime"`
	LastUpdateMessage string            `dynamodbav:"LastUpdateMessage"`
	LastSeen          time.Time         `dynamodbav:"LastSeen"`
	Tags              map[string]string `dynamodbav:"Tags"`
}

func deviceKey(id domain.DeviceID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"DeviceID": &types.AttributeValueMemberS{Value: string(id)},
	}
}

func (r *DeviceRegistry) Get(ctx context.Context, id domain.DeviceID) (domain.DeviceRecord, error) {
	out, err := r.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.Table),
		Key:       deviceKey(id),
	})
	if err != nil {
		return domain.DeviceRecord{}, fmt.Errorf("get device %s: %w", id, err)
	}
	if out.Item == nil {
		return domain.DeviceRecord{}, fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
	}

	var item deviceItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return domain.DeviceRecord{}, fmt.Errorf("unmarshal device %s: %w", id, err)
	}
	return domain.DeviceRecord{
		ID:                domain.DeviceID(item.DeviceID),
		Group:             item.DeviceGroup,
		CurrentVersion:    item.CurrentVersion,
		UpdateStatus:      domain.UpdateStatus(item.UpdateStatus),
		LastUpdateID:      domain.RolloutID(item.LastUpdateID),
		LastUpdateTime:    item.LastUpdateTime,
		LastUpdateMessage: item.LastUpdateMessage,
		LastSeen:          item.LastSeen,
		Tags:              item.Tags,
	}, nil
}

func (r *DeviceRegistry) ReportUpdate(ctx context.Context, id domain.DeviceID, report domain.UpdateReport) error {
	expr := "SET UpdateStatus = :status, LastUpdateID = :rollout, LastUpdateTime = :time, LastUpdateMessage = :message"
	values := map[string]types.AttributeValue{
		":status":  &types.AttributeValueMemberS{Value: string(report.Status)},
		":rollout": &types.AttributeValueMemberS{Value: string(report.RolloutID)},
		":time":    &types.AttributeValueMemberS{Value: report.Time.UTC().Format(time.RFC3339Nano)},
		":message": &types.AttributeValueMemberS{Value: report.Message},
	}
	if report.Status == domain.UpdateStatusSuccess && report.Version != "" {
		expr += ", CurrentVersion = :version"
		values[":version"] = &types.AttributeValueMemberS{Value: report.Version}
	}

	_, err := r.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.Table),
		Key:                       deviceKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(DeviceID)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("report update for device %s: %w", id, err)
	}
	return nil
}

func (r *DeviceRegistry) Heartbeat(ctx context.Context, id domain.DeviceID, at time.Time) error {
	_, err := r.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.Table),
		Key:                 deviceKey(id),
		UpdateExpression:    aws.String("SET LastSeen = :at"),
		ConditionExpression: aws.String("attribute_exists(DeviceID)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("device %q: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("heartbeat for device %s: %w", id, err)
	}
	return nil
}

// RolloutRegistry implements [domain.RolloutRegistry] on a DynamoDB table.
type RolloutRegistry struct {
	Client *dynamodb.Client
	Table  string
}

type rolloutItem struct {
	ID           string      `dynamodbav:"ID"`
	Name         string      `dynamodbav:"Name"`
	Description  string      `dynamodbav:"Description"`
	Version      string      `dynamodbav:"Version"`
	CreatedAt    time.Time   `dynamodbav:"CreatedAt"`
	UpdatedAt    time.Time   `dynamodbav:"UpdatedAt"`
	Status       string      `dynamodbav:"Status"`
	Phases       []phaseItem `dynamodbav:"Phases"`
	CurrentPhase int         `dynamodbav:"CurrentPhase"`
	PackageURL   string      `dynamodbav:"PackageURL"`
	PackageHash  string      `dynamodbav:"PackageHash"`
	TargetGroups []string    `dynamodbav:"TargetGroups"`
	RollbackPlan string      `dynamodbav:"RollbackPlan"`
	CreatedBy    string      `dynamodbav:"CreatedBy"`
}

type phaseItem struct {
	ID              string             `dynamodbav:"ID"`
	Percentage      float64            `dynamodbav:"Percentage"`
	StartTime       time.Time          `dynamodbav:"StartTime"`
	Duration        string             `dynamodbav:"Duration"`
	RequireApproval bool               `dynamodbav:"RequireApproval"`
	Approved        bool               `dynamodbav:"Approved"`
	Metrics         []string           `dynamodbav:"Metrics"`
	Thresholds      map[string]float64 `dynamodbav:"Thresholds"`
}

func (r *RolloutRegistry) Get(ctx context.Context, id domain.RolloutID) (domain.RolloutPlan, error) {
	out, err := r.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.Table),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: string(id)},
		},
	})
	if err != nil {
		return domain.RolloutPlan{}, fmt.Errorf("get rollout %s: %w", id, err)
	}
	if out.Item == nil {
		return domain.RolloutPlan{}, fmt.Errorf("rollout %q: %w", id, domain.ErrNotFound)
	}
	return unmarshalPlan(out.Item)
}

func (r *RolloutRegistry) ListInProgress(ctx context.Context) ([]domain.RolloutPlan, error) {
	// Status is a DynamoDB reserved word; alias it in the expression.
	out, err := r.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.Table),
		IndexName:              aws.String(statusIndexName),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(domain.RolloutStatusInProgress)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query in-progress rollouts: %w", err)
	}

	plans := make([]domain.RolloutPlan, 0, len(out.Items))
	for _, item := range out.Items {
		plan, err := unmarshalPlan(item)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func unmarshalPlan(av map[string]types.AttributeValue) (domain.RolloutPlan, error) {
	var item rolloutItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return domain.RolloutPlan{}, fmt.Errorf("unmarshal rollout plan: %w", err)
	}

	phases := make([]domain.RolloutPhase, len(item.Phases))
	for i, p := range item.Phases {
		phases[i] = domain.RolloutPhase{
			ID:              p.ID,
			Percentage:      p.Percentage,
			StartTime:       p.StartTime,
			Duration:        p.Duration,
			RequireApproval: p.RequireApproval,
			Approved:        p.Approved,
			Metrics:         p.Metrics,
			Thresholds:      p.Thresholds,
		}
	}
	return domain.RolloutPlan{
		ID:           domain.RolloutID(item.ID),
		Name:         item.Name,
		Description:  item.Description,
		Version:      item.Version,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
		Status:       domain.RolloutStatus(item.Status),
		Phases:       phases,
		CurrentPhase: item.CurrentPhase,
		PackageURL:   item.PackageURL,
		PackageHash:  item.PackageHash,
		TargetGroups: item.TargetGroups,
		RollbackPlan: domain.RolloutID(item.RollbackPlan),
		CreatedBy:    item.CreatedBy,
	}, nil
}
