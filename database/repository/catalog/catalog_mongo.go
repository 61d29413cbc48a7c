package catalogRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoServiceCatalog reads the services collection owned by the listing side.
type MongoServiceCatalog struct {
	coll *mongo.Collection
}

func NewMongoServiceCatalog(db *mongo.Database) *MongoServiceCatalog {
	return &MongoServiceCatalog{coll: db.Collection("services")}
}

func (c *MongoServiceCatalog) VendorOf(ctx context.Context, serviceID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var svc models.Service
	opts := options.FindOne().SetProjection(bson.M{"id": 1, "vendorId": 1})
	err := c.coll.FindOne(ctx, bson.M{"id": serviceID}, opts).Decode(&svc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrServiceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch service %s: %w", serviceID, err)
	}
	return svc.VendorID, nil
}

func (c *MongoServiceCatalog) ServiceIDsByVendor(ctx context.Context, vendorID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := c.coll.Find(ctx, bson.M{"vendorId": vendorID}, options.Find().SetProjection(bson.M{"id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list services for vendor %s: %w", vendorID, err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var svc models.Service
		if err := cursor.Decode(&svc); err != nil {
			return nil, fmt.Errorf("failed to decode service: %w", err)
		}
		ids = append(ids, svc.ID)
	}
	return ids, cursor.Err()
}

// EnsureIndexes creates the lookups the catalog depends on.
func (c *MongoServiceCatalog) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_service_id")},
		{Keys: bson.D{{Key: "vendorId", Value: 1}}, Options: options.Index().SetName("vendor_idx")},
	})
	if err != nil {
		return fmt.Errorf("failed to create service indexes: %w", err)
	}
	return nil
}
