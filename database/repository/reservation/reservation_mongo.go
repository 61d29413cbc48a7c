package reservationRepo

import (
	"go.mongodb.org/mongo-driver/mongo"
)

const maxVersionRetries = 5

// MongoReservationRepo implements ReservationRepository using MongoDB.
// Inserts and interval-changing updates run in a transaction, so the
// deployment must be a replica set.
type MongoReservationRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
	locks  *mongo.Collection
}

// NewMongoReservationRepo constructs a new instance of MongoReservationRepo.
func NewMongoReservationRepo(db *mongo.Database) *MongoReservationRepo {
	return &MongoReservationRepo{
		client: db.Client(),
		coll:   db.Collection("reservations"),
		locks:  db.Collection("service_locks"),
	}
}

var _ ReservationRepository = (*MongoReservationRepo)(nil)
