package store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ggstvfer/psd-covert-sub000/apperrors"
	"github.com/ggstvfer/psd-covert-sub000/models"
	"github.com/ggstvfer/psd-covert-sub000/retries"
)

// DynamoDbSessionStoreImpl persists session metadata in a DynamoDB
// table keyed by session_id.
type DynamoDbSessionStoreImpl struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDbSessionStoreImpl(client *dynamodb.Client, tableName string) *DynamoDbSessionStoreImpl {
	return &DynamoDbSessionStoreImpl{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoDbSessionStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(s.tableName),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *DynamoDbSessionStoreImpl) Name() string {
	return "SessionStore[dynamodb]"
}

func (s *DynamoDbSessionStoreImpl) Create(ctx context.Context, session models.UploadSession) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return err
	}

	return retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(session_id)"),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *DynamoDbSessionStoreImpl) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	var session models.UploadSession

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{
						Value: sessionID,
					},
				},
			})
			if err != nil {
				return err
			}

			if out.Item == nil {
				return apperrors.NoSession(sessionID)
			}

			return attributevalue.UnmarshalMap(out.Item, &session)
		},
		retries.IsRetriableDbError,
	)

	if err != nil {
		return nil, err
	}

	return &session, nil
}

// Update writes the whole session item. Sessions have a single logical
// owner and every mutation happens under the per-session lock, so a
// full-item put cannot lose a concurrent writer's fields.
func (s *DynamoDbSessionStoreImpl) Update(ctx context.Context, session models.UploadSession) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return err
	}

	return retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(s.tableName),
				Item:      item,
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *DynamoDbSessionStoreImpl) Delete(ctx context.Context, sessionID string) error {
	return retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{Value: sessionID},
				},
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

// ListIdle scans for sweep candidates. last_activity_at is stored as
// RFC 3339 UTC, so string comparison orders correctly.
func (s *DynamoDbSessionStoreImpl) ListIdle(ctx context.Context, idleBefore time.Time) ([]models.UploadSession, error) {
	cutoff, err := attributevalue.Marshal(idleBefore)
	if err != nil {
		return nil, err
	}

	var sessions []models.UploadSession

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("last_activity_at < :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": cutoff,
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		var batch []models.UploadSession
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		sessions = append(sessions, batch...)
	}

	return sessions, nil
}
