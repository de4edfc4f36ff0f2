// Package mongo implements the store on MongoDB. Commits run inside a
// causally consistent transaction, so deployments need a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/payagent"
	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	payagentstore "github.com/xraph/payagent/store"
	"github.com/xraph/payagent/subscription"
)

// Collection name constants.
const (
	colAccounts      = "payagent_accounts"
	colAllowances    = "payagent_allowances"
	colSubscriptions = "payagent_subscriptions"
	colPayments      = "payagent_payments"
)

// compile-time interface check
var _ payagentstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and selects the given database.
func New(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: connect: %w", err)
	}
	return &Store{
		client: client,
		db:     client.Database(database),
	}, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colAllowances: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "delegate", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "active", Value: 1}}},
			{Keys: bson.D{{Key: "merchant", Value: 1}}},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "next_rebill", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "subscription", Value: 1}}},
			{Keys: bson.D{{Key: "merchant", Value: 1}}},
			{Keys: bson.D{{Key: "applied_at", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("payagent/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.Collection(colAccounts).InsertOne(ctx, toAccountModel(a))
	if mongo.IsDuplicateKeyError(err) {
		return payagent.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("payagent/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, addr keys.Identity) (*account.Account, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, payagent.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

// ==================== Allowance Store ====================

func (s *Store) CreateAllowance(ctx context.Context, a *allowance.Allowance) error {
	_, err := s.db.Collection(colAllowances).InsertOne(ctx, toAllowanceModel(a))
	if mongo.IsDuplicateKeyError(err) {
		return payagent.ErrAllowanceExists
	}
	if err != nil {
		return fmt.Errorf("payagent/mongo: create allowance: %w", err)
	}
	return nil
}

func (s *Store) GetAllowance(ctx context.Context, addr keys.Identity) (*allowance.Allowance, error) {
	var m allowanceModel
	err := s.db.Collection(colAllowances).FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, payagent.ErrAllowanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: get allowance: %w", err)
	}
	return fromAllowanceModel(&m)
}

func (s *Store) ListAllowances(ctx context.Context, owner keys.Identity, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	filter := bson.M{"owner": owner.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	cursor, err := s.db.Collection(colAllowances).Find(ctx, filter, listOptions(opts.Limit, opts.Offset))
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: list allowances: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var result []*allowance.Allowance
	for cursor.Next(ctx) {
		var m allowanceModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		a, err := fromAllowanceModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, cursor.Err()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.Collection(colSubscriptions).InsertOne(ctx, toSubscriptionModel(sub))
	if mongo.IsDuplicateKeyError(err) {
		return payagent.ErrSubscriptionExists
	}
	if err != nil {
		return fmt.Errorf("payagent/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, addr keys.Identity) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.db.Collection(colSubscriptions).FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, payagent.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, owner keys.Identity, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{"owner": owner.String()}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	if !opts.Merchant.IsNil() {
		filter["merchant"] = opts.Merchant.String()
	}

	cursor, err := s.db.Collection(colSubscriptions).Find(ctx, filter, listOptions(opts.Limit, opts.Offset))
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: list subscriptions: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var result []*subscription.Subscription
	for cursor.Next(ctx) {
		var m subscriptionModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		sub, err := fromSubscriptionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, cursor.Err()
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, token uuid.UUID) (*payment.Event, error) {
	var m paymentModel
	err := s.db.Collection(colPayments).FindOne(ctx, bson.M{"_id": token.String()}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, payagent.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Event, error) {
	filter := bson.M{}
	if opts.Origin != "" {
		filter["origin"] = string(opts.Origin)
	}
	if !opts.Subscription.IsNil() {
		filter["subscription"] = opts.Subscription.String()
	}
	if !opts.Merchant.IsNil() {
		filter["merchant"] = opts.Merchant.String()
	}

	findOpts := listOptions(opts.Limit, opts.Offset).SetSort(bson.D{{Key: "applied_at", Value: 1}})
	cursor, err := s.db.Collection(colPayments).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("payagent/mongo: list payments: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var result []*payment.Event
	for cursor.Next(ctx) {
		var m paymentModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		e, err := fromPaymentModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, cursor.Err()
}

// ==================== Commit ====================

// Commit applies all transfers and record writes inside one transaction.
func (s *Store) Commit(ctx context.Context, c *payagentstore.Commit) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %v", payagent.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, s.commitTxn(ctx, c)
	})
	return err
}

func (s *Store) commitTxn(ctx context.Context, c *payagentstore.Commit) error {
	if c.Payment != nil {
		count, err := s.db.Collection(colPayments).CountDocuments(ctx, bson.M{"_id": c.Payment.Token.String()})
		if err != nil {
			return err
		}
		if count > 0 {
			return payagent.ErrDuplicatePayment
		}
	}

	now := time.Now().UTC()
	for _, t := range c.Transfers {
		if err := s.applyTransfer(ctx, t, now); err != nil {
			return err
		}
	}

	replace := options.Replace().SetUpsert(true)
	if c.Allowance != nil {
		m := toAllowanceModel(c.Allowance)
		if _, err := s.db.Collection(colAllowances).ReplaceOne(ctx, bson.M{"_id": m.Address}, m, replace); err != nil {
			return err
		}
	}
	if c.Subscription != nil {
		m := toSubscriptionModel(c.Subscription)
		if _, err := s.db.Collection(colSubscriptions).ReplaceOne(ctx, bson.M{"_id": m.Address}, m, replace); err != nil {
			return err
		}
	}
	if c.Payment != nil {
		if _, err := s.db.Collection(colPayments).InsertOne(ctx, toPaymentModel(c.Payment)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return payagent.ErrDuplicatePayment
			}
			return err
		}
	}
	return nil
}

func (s *Store) applyTransfer(ctx context.Context, t payagentstore.Transfer, now time.Time) error {
	accounts := s.db.Collection(colAccounts)

	var from accountModel
	err := accounts.FindOne(ctx, bson.M{"_id": t.From.String()}).Decode(&from)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return payagent.ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if from.Currency != t.Amount.Currency {
		return payagent.ErrCurrencyMismatch
	}
	if from.BalanceUnits < t.Amount.Amount {
		return payagent.ErrInsufficientFunds
	}

	credit := t.Credited()
	var to accountModel
	if err := accounts.FindOne(ctx, bson.M{"_id": t.To.String()}).Decode(&to); errors.Is(err, mongo.ErrNoDocuments) {
		return payagent.ErrAccountNotFound
	} else if err != nil {
		return err
	}
	if to.Currency != credit.Currency {
		return payagent.ErrCurrencyMismatch
	}

	if _, err := accounts.UpdateOne(ctx, bson.M{"_id": t.From.String()}, bson.M{
		"$inc": bson.M{"balance_units": -t.Amount.Amount},
		"$set": bson.M{"updated_at": now},
	}); err != nil {
		return err
	}
	if _, err := accounts.UpdateOne(ctx, bson.M{"_id": t.To.String()}, bson.M{
		"$inc": bson.M{"balance_units": credit.Amount},
		"$set": bson.M{"updated_at": now},
	}); err != nil {
		return err
	}
	return nil
}

// ==================== Helpers ====================

func listOptions(limit, offset int) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts = opts.SetSkip(int64(offset))
	}
	return opts
}
