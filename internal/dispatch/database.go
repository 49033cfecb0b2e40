package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const ordersBucket = "orders"

// ErrOrderNotFound is returned when no snapshot exists for a key
var ErrOrderNotFound = errors.New("order not found")

// DB defines the interface for order persistence
type DB interface {
	// SaveOrder stores an order, replacing any previous snapshot
	SaveOrder(order *Order) error

	// GetOrder retrieves an order by key
	GetOrder(key Key) (*Order, error)

	// UpdateOrder loads an order, applies fn and stores the result in one
	// transaction. Nothing is stored when fn fails.
	UpdateOrder(key Key, fn func(*Order) error) (*Order, error)

	// DeleteOrder removes an order
	DeleteOrder(key Key) error

	// ListOrders returns all orders
	ListOrders() ([]*Order, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ordersBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func putOrder(bucket *bbolt.Bucket, order *Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshaling order: %w", err)
	}
	return bucket.Put([]byte(order.Key.String()), data)
}

func getOrder(bucket *bbolt.Bucket, key Key) (*Order, error) {
	data := bucket.Get([]byte(key.String()))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, key)
	}
	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshaling order: %w", err)
	}
	if order.Labels == nil {
		order.Labels = make(map[string]bool)
	}
	return &order, nil
}

// SaveOrder stores an order
func (b *BoltDB) SaveOrder(order *Order) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putOrder(tx.Bucket([]byte(ordersBucket)), order)
	})
}

// GetOrder retrieves an order by key
func (b *BoltDB) GetOrder(key Key) (*Order, error) {
	var order *Order
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		order, err = getOrder(tx.Bucket([]byte(ordersBucket)), key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrder applies fn to the stored order inside a single write transaction
func (b *BoltDB) UpdateOrder(key Key, fn func(*Order) error) (*Order, error) {
	var order *Order
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ordersBucket))
		o, err := getOrder(bucket, key)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		order = o
		return putOrder(bucket, o)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrder removes an order
func (b *BoltDB) DeleteOrder(key Key) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ordersBucket))
		if bucket.Get([]byte(key.String())) == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, key)
		}
		return bucket.Delete([]byte(key.String()))
	})
}

// ListOrders returns all orders
func (b *BoltDB) ListOrders() ([]*Order, error) {
	orders := make([]*Order, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ordersBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var order Order
			if err := json.Unmarshal(v, &order); err != nil {
				return fmt.Errorf("unmarshaling order: %w", err)
			}
			orders = append(orders, &order)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
