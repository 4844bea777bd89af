package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultDatabase       = "nexa"
	defaultMaxPoolSize    = 10
	defaultMinPoolSize    = 1
	defaultMaxConnIdle    = 30 * time.Minute
	defaultSelectTimeout  = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

// Config holds the MongoDB connection settings.
//
// Only URI is required; everything else has a working default.
type Config struct {
	URI         string // Required: connection string
	Database    string // Optional: database name
	MaxPoolSize uint64 // Optional: upper connection pool bound
	MinPoolSize uint64 // Optional: lower connection pool bound
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.URI == "" {
		return fmt.Errorf("mongodb URI is required")
	}
	if config.MaxPoolSize != 0 && config.MinPoolSize > config.MaxPoolSize {
		return fmt.Errorf("min pool size %d exceeds max pool size %d",
			config.MinPoolSize, config.MaxPoolSize)
	}
	return nil
}

// NewConfigFromEnv creates a Config from environment variables, with
// development defaults where unset.
func NewConfigFromEnv() Config {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return Config{
		URI:      uri,
		Database: os.Getenv("MONGODB_DATABASE"),
	}
}

// Client wraps the MongoDB client and database
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects to MongoDB and verifies the connection with a ping.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	dbName := config.Database
	if dbName == "" {
		dbName = defaultDatabase
	}
	maxPool := config.MaxPoolSize
	if maxPool == 0 {
		maxPool = defaultMaxPoolSize
	}
	minPool := config.MinPoolSize
	if minPool == 0 {
		minPool = defaultMinPoolSize
	}

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(maxPool).
		SetMinPoolSize(minPool).
		SetMaxConnIdleTime(defaultMaxConnIdle).
		SetServerSelectionTimeout(defaultSelectTimeout).
		SetConnectTimeout(defaultConnectTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB",
		zap.String("database", dbName))

	return &Client{
		Client:   client,
		Database: client.Database(dbName),
		logger:   logger,
	}, nil
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.Client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
