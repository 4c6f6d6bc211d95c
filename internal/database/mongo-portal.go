package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"B24Relay/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) GetPortalAuth(ctx context.Context, domain string) (*entity.PortalAuth, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "portal_domain", Value: strings.ToLower(domain)}}
	var auth entity.PortalAuth
	err = m.collection(connection, portalsCollection).FindOne(ctx, filter).Decode(&auth)
	if err != nil {
		return nil, m.findError(err)
	}
	return &auth, nil
}

func (m *MongoDB) SavePortalAuth(ctx context.Context, auth *entity.PortalAuth) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	doc := *auth
	doc.PortalDomain = strings.ToLower(doc.PortalDomain)
	filter := bson.D{{Key: "portal_domain", Value: doc.PortalDomain}}
	update := bson.M{"$set": doc}

	_, err = m.collection(connection, portalsCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb upsert error: %w", err)
	}
	return nil
}

func (m *MongoDB) DeletePortalAuth(ctx context.Context, domain string) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "portal_domain", Value: strings.ToLower(domain)}}
	if _, err = m.collection(connection, portalsCollection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("mongodb delete error: %w", err)
	}
	return nil
}

func (m *MongoDB) SaveChatMap(ctx context.Context, cm entity.ChatMap) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	cm.PortalDomain = strings.ToLower(cm.PortalDomain)
	cm.UpdatedAt = time.Now()
	filter := bson.D{
		{Key: "portal_domain", Value: cm.PortalDomain},
		{Key: "external_chat_id", Value: cm.ExternalChatID},
	}
	update := bson.M{"$set": cm}

	_, err = m.collection(connection, chatMapCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb upsert error: %w", err)
	}
	return nil
}

func (m *MongoDB) GetChatMap(ctx context.Context, portal, chatID string) (*entity.ChatMap, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{
		{Key: "portal_domain", Value: strings.ToLower(portal)},
		{Key: "external_chat_id", Value: chatID},
	}
	var cm entity.ChatMap
	err = m.collection(connection, chatMapCollection).FindOne(ctx, filter).Decode(&cm)
	if err != nil {
		return nil, m.findError(err)
	}
	return &cm, nil
}
