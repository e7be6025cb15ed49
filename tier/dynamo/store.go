// Package dynamo provides a tier.StateStore backed by DynamoDB, so
// collection residency survives restarts and is shared across replicas.
//
// Table schema:
//   - Partition key: collection_id (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name ember-tier-states \
//	  --attribute-definitions AttributeName=collection_id,AttributeType=S \
//	  --key-schema AttributeName=collection_id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	gojson "github.com/goccy/go-json"

	"github.com/emberdb/ember/model"
	"github.com/emberdb/ember/tier"
)

// Compile-time check to ensure StateStore satisfies the tier interface.
var _ tier.StateStore = (*StateStore)(nil)

// Client is the interface for DynamoDB operations, satisfied by
// *dynamodb.Client and easy to fake in tests.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// StateStore persists tier states in a DynamoDB table. The full state is
// stored as a JSON document; tier is duplicated as a plain attribute for
// console visibility.
type StateStore struct {
	client    Client
	tableName string
}

// NewStateStore creates a state store on the given table.
func NewStateStore(client Client, tableName string) *StateStore {
	return &StateStore{
		client:    client,
		tableName: tableName,
	}
}

// Put upserts a collection's state.
func (s *StateStore) Put(ctx context.Context, state tier.State) error {
	doc, err := gojson.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"collection_id": &types.AttributeValueMemberS{Value: state.CollectionID.String()},
			"tier":          &types.AttributeValueMemberS{Value: state.Tier.String()},
			"state":         &types.AttributeValueMemberS{Value: string(doc)},
		},
	})
	if err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

// Get returns a collection's state, or tier.ErrNotRegistered.
func (s *StateStore) Get(ctx context.Context, id model.CollectionID) (tier.State, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"collection_id": &types.AttributeValueMemberS{Value: id.String()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return tier.State{}, fmt.Errorf("get state: %w", err)
	}
	if len(resp.Item) == 0 {
		return tier.State{}, &tier.ErrNotRegistered{ID: id}
	}

	return decodeItem(resp.Item)
}

// List returns the states of all known collections.
func (s *StateStore) List(ctx context.Context) ([]tier.State, error) {
	var states []tier.State
	var startKey map[string]types.AttributeValue

	for {
		resp, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan states: %w", err)
		}

		for _, item := range resp.Items {
			state, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			states = append(states, state)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return states, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// Delete removes a collection's state. Absent ids are a no-op.
func (s *StateStore) Delete(ctx context.Context, id model.CollectionID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"collection_id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func decodeItem(item map[string]types.AttributeValue) (tier.State, error) {
	doc, ok := item["state"].(*types.AttributeValueMemberS)
	if !ok {
		return tier.State{}, fmt.Errorf("invalid state attribute")
	}

	var state tier.State
	if err := gojson.Unmarshal([]byte(doc.Value), &state); err != nil {
		return tier.State{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
