package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
)

// unprocessedRetries bounds the internal retry rounds for items DynamoDB
// returns as unprocessed from a batch write.
const unprocessedRetries = 3

// DynamoDBStorage implements Storage using AWS DynamoDB. Records are keyed
// by (id, timestamp) so repeated runs append new versions of an id.
type DynamoDBStorage struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoDBStorage creates a new DynamoDB storage instance.
func NewDynamoDBStorage(cfg config.Storage) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	storage := &DynamoDBStorage{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}

	// Create the table when running against DynamoDB Local; in production
	// the table is provisioned out of band and only health-checked.
	if cfg.Endpoint != "" {
		if err := storage.ensureTable(); err != nil {
			return nil, fmt.Errorf("failed to ensure table exists: %w", err)
		}
	}

	return storage, nil
}

// ensureTable creates the DynamoDB table if it doesn't exist.
func (d *DynamoDBStorage) ensureTable() error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("timestamp"),
				KeyType:       aws.String("RANGE"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("timestamp"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err = d.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
}

// HealthCheck verifies the table exists and is ACTIVE.
func (d *DynamoDBStorage) HealthCheck(ctx context.Context) error {
	out, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", d.tableName, err)
	}

	status := aws.StringValue(out.Table.TableStatus)
	if status != dynamodb.TableStatusActive {
		return fmt.Errorf("table %s has status %s", d.tableName, status)
	}
	return nil
}

// WriteBatch writes one chunk of records via BatchWriteItem, retrying any
// unprocessed items a bounded number of times.
func (d *DynamoDBStorage) WriteBatch(ctx context.Context, records []models.NormalizedRecord) error {
	requests := make([]*dynamodb.WriteRequest, 0, len(records))
	for _, record := range records {
		item, err := dynamodbattribute.MarshalMap(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
		}
		requests = append(requests, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: item},
		})
	}

	pending := map[string][]*dynamodb.WriteRequest{d.tableName: requests}

	for round := 0; len(pending[d.tableName]) > 0; round++ {
		if round > unprocessedRetries {
			return fmt.Errorf("batch write left %d unprocessed items after %d retries",
				len(pending[d.tableName]), unprocessedRetries)
		}
		if round > 0 {
			// Brief pause before resending unprocessed items, per the
			// BatchWriteItem guidance.
			time.Sleep(time.Duration(round*100) * time.Millisecond)
		}

		out, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("failed to batch write to %s: %w", d.tableName, err)
		}
		pending = out.UnprocessedItems
	}

	return nil
}

// GetRecords retrieves stored records with pagination. DynamoDB has no
// native offset, so the scan reads limit+offset items and skips locally.
func (d *DynamoDBStorage) GetRecords(ctx context.Context, limit int, offset int) ([]models.NormalizedRecord, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
		Limit:     aws.Int64(int64(limit + offset)),
	}

	result, err := d.client.ScanWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	var records []models.NormalizedRecord
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}

	if offset >= len(records) {
		return nil, nil
	}
	return records[offset:], nil
}

// GetRecordByID returns the most recently processed record for an id.
func (d *DynamoDBStorage) GetRecordByID(ctx context.Context, id string) (*models.NormalizedRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":id": {S: aws.String(id)},
		},
		ScanIndexForward: aws.Bool(false), // newest timestamp first
		Limit:            aws.Int64(1),
	}

	result, err := d.client.QueryWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query record %s: %w", id, err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var record models.NormalizedRecord
	if err := dynamodbattribute.UnmarshalMap(result.Items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// Close closes the DynamoDB connection.
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
