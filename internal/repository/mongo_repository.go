package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sportscarhub/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	carsCollection      = "cars"
	cartItemsCollection = "cart_items"
	ordersCollection    = "orders"
	outboxCollection    = "outbox_events"
)

// MongoRepository is the MongoDB implementation of Store. Checkout and status
// changes use multi-document transactions, so the server must run as a
// replica set.
type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db}
}

func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.db.Client().Disconnect(ctx)
}

type carDocument struct {
	ID           string               `bson:"_id"`
	Make         string               `bson:"make"`
	Model        string               `bson:"model"`
	Year         int                  `bson:"year"`
	Price        primitive.Decimal128 `bson:"price"`
	Mileage      int                  `bson:"mileage"`
	Color        string               `bson:"color"`
	Engine       string               `bson:"engine"`
	Horsepower   int                  `bson:"horsepower"`
	Transmission string               `bson:"transmission"`
	ImageURL     string               `bson:"image_url"`
	Description  string               `bson:"description"`
	CreatedAt    time.Time            `bson:"created_at"`
}

type itemDocument struct {
	ID        string               `bson:"item_id"`
	CarID     string               `bson:"car_id"`
	Make      string               `bson:"make"`
	Model     string               `bson:"model"`
	Year      int                  `bson:"year"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	ImageURL  string               `bson:"image_url"`
	Quantity  int                  `bson:"quantity"`
	AddedAt   time.Time            `bson:"added_at"`
}

type cartItemDocument struct {
	Key     string       `bson:"_id"`
	OwnerID string       `bson:"owner_id"`
	Item    itemDocument `bson:",inline"`
}

type orderDocument struct {
	ID              string               `bson:"_id"`
	OwnerID         string               `bson:"owner_id"`
	OwnerEmail      string               `bson:"owner_email"`
	Items           []itemDocument       `bson:"items"`
	TotalAmount     primitive.Decimal128 `bson:"total_amount"`
	Status          string               `bson:"status"`
	PaymentMethod   string               `bson:"payment_method"`
	PaymentProofRef *string              `bson:"payment_proof_ref,omitempty"`
	IdempotencyKey  string               `bson:"idempotency_key,omitempty"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

type outboxDocument struct {
	ID          string     `bson:"_id"`
	AggregateID string     `bson:"aggregate_id"`
	EventType   string     `bson:"event_type"`
	Payload     []byte     `bson:"payload"`
	CreatedAt   time.Time  `bson:"created_at"`
	ProcessedAt *time.Time `bson:"processed_at"`
}

// cartItemKey prefixes the owner with its length so that no two
// (owner, item) pairs share a key, whatever characters the ids contain.
func cartItemKey(ownerID, itemID string) string {
	return strconv.Itoa(len(ownerID)) + ":" + ownerID + ":" + itemID
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", v, err)
	}
	return d, nil
}

func newItemDocument(item domain.CartItem) (itemDocument, error) {
	price, err := toDecimal128(item.UnitPrice)
	if err != nil {
		return itemDocument{}, err
	}
	return itemDocument{
		ID:        item.ID,
		CarID:     item.CarID,
		Make:      item.Make,
		Model:     item.Model,
		Year:      item.Year,
		UnitPrice: price,
		ImageURL:  item.ImageURL,
		Quantity:  item.Quantity,
		AddedAt:   item.AddedAt.UTC(),
	}, nil
}

func (d itemDocument) toDomain() (domain.CartItem, error) {
	price, err := fromDecimal128(d.UnitPrice)
	if err != nil {
		return domain.CartItem{}, err
	}
	return domain.CartItem{
		ID:        d.ID,
		CarID:     d.CarID,
		Make:      d.Make,
		Model:     d.Model,
		Year:      d.Year,
		UnitPrice: price,
		ImageURL:  d.ImageURL,
		Quantity:  d.Quantity,
		AddedAt:   d.AddedAt.UTC(),
	}, nil
}

func newOrderDocument(o *domain.Order, idempotencyKey string) (*orderDocument, error) {
	total, err := toDecimal128(o.TotalAmount)
	if err != nil {
		return nil, err
	}
	items := make([]itemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		doc, err := newItemDocument(item)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return &orderDocument{
		ID:              o.ID,
		OwnerID:         o.OwnerID,
		OwnerEmail:      o.OwnerEmail,
		Items:           items,
		TotalAmount:     total,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentProofRef: o.PaymentProofRef,
		IdempotencyKey:  idempotencyKey,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}, nil
}

func (d *orderDocument) toDomain() (*domain.Order, error) {
	total, err := fromDecimal128(d.TotalAmount)
	if err != nil {
		return nil, err
	}
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, doc := range d.Items {
		item, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &domain.Order{
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		OwnerEmail:      d.OwnerEmail,
		Items:           items,
		TotalAmount:     total,
		Status:          domain.OrderStatus(d.Status),
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		PaymentProofRef: d.PaymentProofRef,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}, nil
}

// ---- catalog ----

func (m *MongoRepository) ListCars(ctx context.Context) ([]*domain.Car, error) {
	opts := options.Find().SetSort(bson.D{{Key: "make", Value: 1}, {Key: "model", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(carsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}
	defer cursor.Close(ctx)

	cars := make([]*domain.Car, 0)
	for cursor.Next(ctx) {
		var doc carDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode car: %w", err)
		}
		car, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}
	return cars, cursor.Err()
}

func (d carDocument) toDomain() (*domain.Car, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Car{
		ID:           d.ID,
		Make:         d.Make,
		Model:        d.Model,
		Year:         d.Year,
		Price:        price,
		Mileage:      d.Mileage,
		Color:        d.Color,
		Engine:       d.Engine,
		Horsepower:   d.Horsepower,
		Transmission: d.Transmission,
		ImageURL:     d.ImageURL,
		Description:  d.Description,
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

func (m *MongoRepository) GetCar(ctx context.Context, id string) (*domain.Car, error) {
	var doc carDocument
	err := m.db.Collection(carsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCarNotFound
		}
		return nil, fmt.Errorf("failed to get car: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoRepository) UpsertCars(ctx context.Context, cars []*domain.Car) error {
	for _, c := range cars {
		price, err := toDecimal128(c.Price)
		if err != nil {
			return err
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		doc := carDocument{
			ID:           c.ID,
			Make:         c.Make,
			Model:        c.Model,
			Year:         c.Year,
			Price:        price,
			Mileage:      c.Mileage,
			Color:        c.Color,
			Engine:       c.Engine,
			Horsepower:   c.Horsepower,
			Transmission: c.Transmission,
			ImageURL:     c.ImageURL,
			Description:  c.Description,
			CreatedAt:    createdAt.UTC(),
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := m.db.Collection(carsCollection).ReplaceOne(ctx, bson.M{"_id": c.ID}, doc, opts); err != nil {
			return fmt.Errorf("failed to upsert car %s: %w", c.ID, err)
		}
	}
	return nil
}

// ---- cart ----

func (m *MongoRepository) ListItems(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}, {Key: "item_id", Value: 1}})
	cursor, err := m.db.Collection(cartItemsCollection).Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]domain.CartItem, 0)
	for cursor.Next(ctx) {
		var doc cartItemDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode cart item: %w", err)
		}
		item, err := doc.Item.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, cursor.Err()
}

func (m *MongoRepository) AddItem(ctx context.Context, ownerID string, item domain.CartItem) error {
	doc, err := newItemDocument(item)
	if err != nil {
		return err
	}
	key := cartItemKey(ownerID, item.ID)
	opts := options.Replace().SetUpsert(true)
	_, err = m.db.Collection(cartItemsCollection).ReplaceOne(ctx, bson.M{"_id": key, "owner_id": ownerID}, cartItemDocument{
		Key:     key,
		OwnerID: ownerID,
		Item:    doc,
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return nil
}

func (m *MongoRepository) RemoveItems(ctx context.Context, ownerID string, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		keys = append(keys, cartItemKey(ownerID, id))
	}
	_, err := m.db.Collection(cartItemsCollection).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to remove cart items: %w", err)
	}
	return nil
}

// ---- orders ----

func (m *MongoRepository) CommitCheckout(ctx context.Context, order *domain.Order, idempotencyKey string) error {
	doc, err := newOrderDocument(order, idempotencyKey)
	if err != nil {
		return err
	}

	session, err := m.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := m.db.Collection(ordersCollection).InsertOne(sc, doc); err != nil {
			if idempotencyKey != "" && mongo.IsDuplicateKeyError(err) {
				return nil, ErrDuplicateOrder
			}
			return nil, fmt.Errorf("failed to insert order: %w", err)
		}

		for _, id := range order.ItemIDs() {
			res, err := m.db.Collection(cartItemsCollection).DeleteOne(sc, bson.M{"_id": cartItemKey(order.OwnerID, id), "owner_id": order.OwnerID})
			if err != nil {
				return nil, fmt.Errorf("failed to delete cart item %s: %w", id, err)
			}
			if res.DeletedCount != 1 {
				return nil, ErrCartChanged
			}
		}

		event := domain.NewOrderEvent(uuid.NewString(), domain.OrderEventPlaced, order, order.CreatedAt)
		return nil, m.insertOutboxEvent(sc, event)
	})
	return err
}

func (m *MongoRepository) FindOrderIDByIdempotencyKey(ctx context.Context, ownerID, key string) (string, error) {
	var doc struct {
		ID string `bson:"_id"`
	}
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := m.db.Collection(ordersCollection).FindOne(ctx, bson.M{"owner_id": ownerID, "idempotency_key": key}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("failed to find order by idempotency key: %w", err)
	}
	return doc.ID, nil
}

func (m *MongoRepository) GetOrder(ctx context.Context, id string, scope domain.OrderScope) (*domain.Order, error) {
	filter := bson.M{"_id": id}
	if !scope.All {
		if scope.OwnerID == "" {
			return nil, ErrOrderNotFound
		}
		filter["owner_id"] = scope.OwnerID
	}

	var doc orderDocument
	err := m.db.Collection(ordersCollection).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoRepository) ListOrders(ctx context.Context, scope domain.OrderScope) ([]*domain.Order, error) {
	filter := bson.M{}
	if !scope.All {
		if scope.OwnerID == "" {
			return []*domain.Order{}, nil
		}
		filter["owner_id"] = scope.OwnerID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := m.db.Collection(ordersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]*domain.Order, 0)
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		order, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, cursor.Err()
}

func (m *MongoRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	session, err := m.db.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		orders := m.db.Collection(ordersCollection)
		res, err := orders.UpdateOne(sc,
			bson.M{"_id": id, "status": string(from)},
			bson.M{"$set": bson.M{"status": string(to), "updated_at": at.UTC()}})
		if err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		if res.MatchedCount == 0 {
			n, err := orders.CountDocuments(sc, bson.M{"_id": id})
			if err != nil {
				return nil, fmt.Errorf("failed to check order: %w", err)
			}
			if n == 0 {
				return nil, ErrOrderNotFound
			}
			return nil, ErrStatusConflict
		}

		var doc orderDocument
		if err := orders.FindOne(sc, bson.M{"_id": id}).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to reload order: %w", err)
		}
		order, err := doc.toDomain()
		if err != nil {
			return nil, err
		}

		event := domain.NewOrderEvent(uuid.NewString(), domain.OrderEventStatusChanged, order, at)
		if err := m.insertOutboxEvent(sc, event); err != nil {
			return nil, err
		}
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Order), nil
}

// ---- outbox ----

func (m *MongoRepository) insertOutboxEvent(ctx context.Context, event domain.OrderEvent) error {
	payload, err := marshalEvent(event)
	if err != nil {
		return err
	}
	_, err = m.db.Collection(outboxCollection).InsertOne(ctx, outboxDocument{
		ID:          event.ID,
		AggregateID: event.OrderID,
		EventType:   string(event.Type),
		Payload:     payload,
		CreatedAt:   event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.db.Collection(outboxCollection).Find(ctx, bson.M{"processed_at": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*OutboxEvent
	for cursor.Next(ctx) {
		var doc outboxDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode outbox event: %w", err)
		}
		events = append(events, &OutboxEvent{
			ID:          doc.ID,
			AggregateId: doc.AggregateID,
			EventType:   doc.EventType,
			Payload:     doc.Payload,
			CreatedAt:   doc.CreatedAt.UTC(),
		})
	}
	return events, cursor.Err()
}

func (m *MongoRepository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := m.db.Collection(outboxCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"processed_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		cartItemsCollection: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "added_at", Value: 1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{
				Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
			},
		},
		outboxCollection: {
			{Keys: bson.D{{Key: "processed_at", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		carsCollection: {
			{Keys: bson.D{{Key: "make", Value: 1}, {Key: "model", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := m.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
