package repository

import (
	"context"
	"fmt"
	"time"

	"B24Relay/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) GetSettings(ctx context.Context) (*entity.Settings, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	var settings entity.Settings
	err = m.collection(connection, settingsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: settingsID}}).Decode(&settings)
	if err != nil {
		return nil, m.findError(err)
	}
	return &settings, nil
}

func (m *MongoDB) SaveSettings(ctx context.Context, settings entity.Settings) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "_id", Value: settingsID}}
	update := bson.M{"$set": settings}
	_, err = m.collection(connection, settingsCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb upsert error: %w", err)
	}
	return nil
}

func (m *MongoDB) AddLog(ctx context.Context, e entity.LogEntry) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	if _, err = m.collection(connection, logsCollection).InsertOne(ctx, e); err != nil {
		return fmt.Errorf("mongodb insert error: %w", err)
	}
	return nil
}

func (m *MongoDB) ListLogs(ctx context.Context, f entity.LogFilter) ([]entity.LogEntry, error) {
	f = f.Normalize()
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{}
	if f.Level != "" {
		filter = append(filter, bson.E{Key: "level", Value: f.Level})
	}
	if f.Source != "" {
		filter = append(filter, bson.E{Key: "source", Value: f.Source})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(f.Limit))

	cursor, err := m.collection(connection, logsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, m.findError(err)
	}
	defer cursor.Close(ctx)

	entries := make([]entity.LogEntry, 0, f.Limit)
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("mongodb decode error: %w", err)
	}
	return entries, nil
}

func (m *MongoDB) AddRelayRecord(ctx context.Context, r entity.RelayRecord) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	if _, err = m.collection(connection, recordsCollection).InsertOne(ctx, r); err != nil {
		return fmt.Errorf("mongodb insert error: %w", err)
	}
	return nil
}

func (m *MongoDB) Stats(ctx context.Context, now time.Time) (*entity.Stats, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := m.collection(connection, recordsCollection)
	count := func(filter bson.D) (int64, error) {
		n, err := collection.CountDocuments(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("mongodb count error: %w", err)
		}
		return n, nil
	}

	stats := &entity.Stats{}
	if stats.Total, err = count(bson.D{}); err != nil {
		return nil, err
	}
	if stats.Today, err = count(bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: startOfDay(now)}}}}); err != nil {
		return nil, err
	}
	sent := bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{entity.RelaySent, entity.RelayPartial}}}}}
	if stats.Sent, err = count(sent); err != nil {
		return nil, err
	}
	if stats.Failed, err = count(bson.D{{Key: "status", Value: entity.RelayFailed}}); err != nil {
		return nil, err
	}
	if stats.Skipped, err = count(bson.D{{Key: "status", Value: entity.RelaySkipped}}); err != nil {
		return nil, err
	}

	var last entity.RelayRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err = collection.FindOne(ctx, sent, opts).Decode(&last)
	if err == nil {
		stats.LastSync = &last.CreatedAt
	} else if err = m.findError(err); err != nil {
		return nil, err
	}
	return stats, nil
}
