package logsource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/proy1234/prplMesh/devices"
)

const (
	// Schema of the DynamoDB table: one item per log line.
	dynamoPartitionKey  = "log"
	dynamoSortKey       = "line"
	dynamoTextAttribute = "text"

	// BatchWriteItem accepts at most this many requests.
	dynamoMaxBatchSize = 25
)

// DynamoDBOptions selects the table where finished runs archive their logs.
type DynamoDBOptions struct {
	Region   string
	Endpoint string
	Table    string
	Prefix   string
}

// DynamoDB reads logs archived in a DynamoDB table. Each item is one line: the partition key is
// [<prefix>:]<device>/<log> and the numeric sort key is the line number, starting at 1.
type DynamoDB struct {
	dynamodb dynamodbiface.DynamoDBAPI
	table    string
	prefix   string
}

func NewDynamoDB(o DynamoDBOptions) (*DynamoDB, error) {
	config := aws.NewConfig().WithRegion(o.Region)
	if o.Endpoint != "" {
		config = config.WithEndpoint(o.Endpoint)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("cannot create AWS session: %w", err)
	}
	return NewDynamoDBWithClient(dynamodb.New(sess), o.Table, o.Prefix), nil
}

func NewDynamoDBWithClient(client dynamodbiface.DynamoDBAPI, table, prefix string) *DynamoDB {
	return &DynamoDB{dynamodb: client, table: table, prefix: prefix}
}

func (d *DynamoDB) partition(device devices.DeviceType, log devices.LogType) string {
	name := device.String() + "/" + log.String()
	if d.prefix == "" {
		return name
	}
	return d.prefix + ":" + name
}

func (d *DynamoDB) keyCondition(device devices.DeviceType, log devices.LogType) map[string]*dynamodb.Condition {
	return map[string]*dynamodb.Condition{
		dynamoPartitionKey: {
			ComparisonOperator: aws.String(dynamodb.ComparisonOperatorEq),
			AttributeValueList: []*dynamodb.AttributeValue{{S: aws.String(d.partition(device, log))}},
		},
	}
}

func (d *DynamoDB) Log(ctx context.Context, device devices.DeviceType, log devices.LogType) (string, error) {
	query := &dynamodb.QueryInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		KeyConditions:  d.keyCondition(device, log),
	}
	var b strings.Builder
	found := false
	for {
		response, err := d.dynamodb.QueryWithContext(ctx, query)
		if err != nil {
			return "", err
		}
		for _, item := range response.Items {
			found = true
			if text := item[dynamoTextAttribute]; text != nil && text.S != nil {
				b.WriteString(*text.S)
			}
			b.WriteString("\n")
		}
		if len(response.LastEvaluatedKey) == 0 {
			break
		}
		query.ExclusiveStartKey = response.LastEvaluatedKey
	}
	if !found {
		return "", notFound(device, log)
	}
	return b.String(), nil
}

// Append adds a line after the last stored one. Concurrent writers to the same log are detected
// by a conditional put and get an error.
func (d *DynamoDB) Append(ctx context.Context, device devices.DeviceType, log devices.LogType, line string) error {
	last, err := d.lastLine(ctx, device, log)
	if err != nil {
		return err
	}
	_, err = d.dynamodb.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(d.table),
		Item:                     d.item(device, log, last+1, line),
		ConditionExpression:      aws.String("attribute_not_exists(#line)"),
		ExpressionAttributeNames: map[string]*string{"#line": aws.String(dynamoSortKey)},
	})
	return err
}

// Store writes a whole log in place of whatever was stored for it. Stored lines past the end of
// the new text are deleted.
func (d *DynamoDB) Store(ctx context.Context, device devices.DeviceType, log devices.LogType, text string) error {
	var lines []string
	if text != "" {
		lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	}
	last, err := d.lastLine(ctx, device, log)
	if err != nil {
		return err
	}
	requests := make([]*dynamodb.WriteRequest, 0, max(len(lines), last))
	for i, line := range lines {
		requests = append(requests, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: d.item(device, log, i+1, line)},
		})
	}
	for n := len(lines) + 1; n <= last; n++ {
		requests = append(requests, &dynamodb.WriteRequest{
			DeleteRequest: &dynamodb.DeleteRequest{Key: d.key(device, log, n)},
		})
	}
	if err := d.batchWriteRequests(ctx, requests); err != nil {
		return fmt.Errorf("failed to write %d line(s) of %s: %w", len(requests), d.partition(device, log), err)
	}
	return nil
}

// lastLine returns the highest stored line number of a log, or 0 if nothing is stored.
func (d *DynamoDB) lastLine(ctx context.Context, device devices.DeviceType, log devices.LogType) (int, error) {
	last, err := d.dynamodb.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:        aws.String(d.table),
		ConsistentRead:   aws.Bool(true),
		KeyConditions:    d.keyCondition(device, log),
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(1),
	})
	if err != nil {
		return 0, err
	}
	if len(last.Items) == 0 {
		return 0, nil
	}
	n := last.Items[0][dynamoSortKey]
	if n == nil || n.N == nil {
		return 0, nil
	}
	value, err := strconv.Atoi(*n.N)
	if err != nil {
		return 0, fmt.Errorf("malformed line number %q in %s", *n.N, d.partition(device, log))
	}
	return value, nil
}

// CreateTable creates the table with the schema that DynamoDB expects.
func (d *DynamoDB) CreateTable(ctx context.Context) error {
	_, err := d.dynamodb.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(dynamoPartitionKey),
				AttributeType: aws.String(dynamodb.ScalarAttributeTypeS),
			},
			{
				AttributeName: aws.String(dynamoSortKey),
				AttributeType: aws.String(dynamodb.ScalarAttributeTypeN),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(dynamoPartitionKey),
				KeyType:       aws.String(dynamodb.KeyTypeHash),
			},
			{
				AttributeName: aws.String(dynamoSortKey),
				KeyType:       aws.String(dynamodb.KeyTypeRange),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		TableName:   aws.String(d.table),
	})
	return err
}

func (d *DynamoDB) key(device devices.DeviceType, log devices.LogType, number int) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		dynamoPartitionKey: {S: aws.String(d.partition(device, log))},
		dynamoSortKey:      {N: aws.String(strconv.Itoa(number))},
	}
}

func (d *DynamoDB) item(device devices.DeviceType, log devices.LogType, number int, line string) map[string]*dynamodb.AttributeValue {
	item := d.key(device, log, number)
	item[dynamoTextAttribute] = &dynamodb.AttributeValue{S: aws.String(line)}
	return item
}

// batchWriteRequests executes write requests in batches of dynamoMaxBatchSize, resubmitting
// whatever DynamoDB reports as unprocessed.
func (d *DynamoDB) batchWriteRequests(ctx context.Context, requests []*dynamodb.WriteRequest) error {
	for len(requests) > 0 {
		batchSize := min(len(requests), dynamoMaxBatchSize)
		batch := requests[:batchSize]
		requests = requests[batchSize:]

		output, err := d.dynamodb.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]*dynamodb.WriteRequest{d.table: batch},
		})
		if err != nil {
			return err
		}
		requests = append(requests, output.UnprocessedItems[d.table]...)
	}
	return nil
}
