package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/clients"
	"github.com/spacesedan/moodlens/internal/models"
)

const (
	runMetaItem    = "META"
	resultItemFmt  = "RESULT#%08d"
	maxBatchSize   = 25
	maxWriteRetry  = 3
	initialBackoff = 500 * time.Millisecond
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps each run in a single partition: one META item for the
// run and one RESULT#n item per comment, sorted by the "item" range key.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

type runRecord struct {
	models.Run
	Item string `dynamodbav:"item"`
}

type resultRecord struct {
	models.SentimentResult
	RunID string `dynamodbav:"run_id"`
	Item  string `dynamodbav:"item"`
	Index int    `dynamodbav:"index"`
}

func OpenDynamo(ctx context.Context, cfg config.StoreConfig) (*DynamoStore, error) {
	client, err := clients.GetDynamoDBClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewDynamoStore(client, cfg.Table), nil
}

func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) Close() error { return nil }

func (s *DynamoStore) SaveRun(ctx context.Context, run models.Run, results []models.SentimentResult) error {
	writeRequests := make([]types.WriteRequest, 0, len(results))
	for i, r := range results {
		item, err := attributevalue.MarshalMap(resultRecord{
			SentimentResult: r,
			RunID:           run.ID,
			Item:            fmt.Sprintf(resultItemFmt, i),
			Index:           i,
		})
		if err != nil {
			return fmt.Errorf("[DynamoDB] Failed to marshal result: %w", err)
		}
		writeRequests = append(writeRequests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	for i := 0; i < len(writeRequests); i += maxBatchSize {
		if err := ctx.Err(); err != nil {
			slog.Warn("[DynamoDB] context canceled")
			return err
		}
		end := min(i+maxBatchSize, len(writeRequests))
		if err := s.batchWrite(ctx, writeRequests[i:end]); err != nil {
			return err
		}
	}

	// The META item goes last so a listed run always has its results.
	meta, err := attributevalue.MarshalMap(runRecord{Run: run, Item: runMetaItem})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to marshal run: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      meta,
	}); err != nil {
		return fmt.Errorf("[DynamoDB] Failed to put run: %w", err)
	}

	slog.Info("[DynamoDB] Successfully stored run",
		slog.String("run_id", run.ID),
		slog.Int("results", len(results)))
	return nil
}

func (s *DynamoStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.table: requests},
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to batch write results: %w", err)
	}

	retryCount := 0
	backoff := initialBackoff
	for len(out.UnprocessedItems) > 0 && retryCount < maxWriteRetry {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		slog.Warn("[DynamoDB] Retrying unprocessed items...",
			slog.Int("retry_attempt", retryCount+1),
			slog.Int("remaining_items", len(out.UnprocessedItems[s.table])))

		out, err = s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: out.UnprocessedItems,
		})
		if err != nil {
			return fmt.Errorf("[DynamoDB] Failed to retry batch write: %w", err)
		}
		retryCount++
	}

	if remaining := len(out.UnprocessedItems[s.table]); remaining > 0 {
		return fmt.Errorf("[DynamoDB] %d items were not written after retries", remaining)
	}
	return nil
}

func (s *DynamoStore) GetRun(ctx context.Context, id string) (models.Run, []models.SentimentResult, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("run_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})

	var (
		run     models.Run
		found   bool
		records []resultRecord
	)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return models.Run{}, nil, fmt.Errorf("[DynamoDB] Query for run failed: %w", err)
		}
		for _, item := range page.Items {
			kind, ok := item["item"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if kind.Value == runMetaItem {
				var rec runRecord
				if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
					return models.Run{}, nil, fmt.Errorf("[DynamoDB] Unable to unmarshal run: %w", err)
				}
				run, found = rec.Run, true
				continue
			}
			var rec resultRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return models.Run{}, nil, fmt.Errorf("[DynamoDB] Unable to unmarshal result: %w", err)
			}
			records = append(records, rec)
		}
	}

	if !found {
		return models.Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	results := make([]models.SentimentResult, len(records))
	for i, rec := range records {
		results[i] = rec.SentimentResult
	}
	return run, results, nil
}

func (s *DynamoStore) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("#item = :meta"),
		ExpressionAttributeNames: map[string]string{
			"#item": "item",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: runMetaItem},
		},
	})

	var runs []models.Run
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Scan for runs failed: %w", err)
		}
		var records []runRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			slog.Error("[DynamoDB] Unable to unmarshal run page", slog.String("error", err.Error()))
			return nil, err
		}
		for _, rec := range records {
			runs = append(runs, rec.Run)
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	slog.Debug("[DynamoDB] Successfully retrieved runs", slog.Int("count", len(runs)))
	return runs, nil
}
