//go:build integration

package mongodb_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/mongosplit/internal/engine"
	"github.com/ajitpratap0/mongosplit/pkg/config"
	"github.com/ajitpratap0/mongosplit/pkg/connector/core"
	"github.com/ajitpratap0/mongosplit/pkg/connector/sources/mongodb"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/testutil"
)

type MongoSourceSuite struct {
	testutil.IntegrationTestSuite
	client   *mongo.Client
	database string
}

func TestMongoSourceSuite(t *testing.T) {
	suite.Run(t, new(MongoSourceSuite))
}

func (s *MongoSourceSuite) SetupSuite() {
	s.IntegrationTestSuite.SetupSuite()

	client, err := mongo.Connect(s.Context(), options.Client().ApplyURI(s.URI()))
	s.Require().NoError(err)
	s.client = client
	s.database = fmt.Sprintf("mongosplit_it_%d", time.Now().UnixNano())

	_, err = client.Database(s.database).Collection("numbers").InsertMany(s.Context(), testutil.NumberedDocs(100))
	s.Require().NoError(err)
}

func (s *MongoSourceSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Database(s.database).Drop(context.Background())
		_ = s.client.Disconnect(context.Background())
	}
	s.IntegrationTestSuite.TearDownSuite()
}

func (s *MongoSourceSuite) config(partitions int) *config.SourceConfig {
	cfg := testutil.SourceConfig(s.URI(), partitions)
	cfg.Database = s.database
	cfg.Timeouts.Connection = 10 * time.Second
	return cfg
}

func (s *MongoSourceSuite) TestEvenOddReconciles() {
	for _, partitions := range []int{1, 2, 7} {
		s.Run(fmt.Sprintf("partitions=%d", partitions), func() {
			src, err := mongodb.New(s.Context(), s.config(partitions), mongodb.WithLogger(testutil.TestLogger(s.T())))
			s.Require().NoError(err)
			s.Equal(int64(100), src.TotalCount())
			s.Len(src.Partitions(), partitions)

			ec, err := engine.New(engine.Config{Workers: 4}, testutil.TestLogger(s.T()))
			s.Require().NoError(err)
			defer ec.Close()

			counts, err := engine.CountByKey(s.Context(), ec, src, func(rec core.Record) (int64, error) {
				return int64(testutil.Int(s.T(), rec["value"]) % 2), nil
			})
			s.Require().NoError(err)
			s.Equal(map[int64]int64{0: 50, 1: 50}, counts)
		})
	}
}

func (s *MongoSourceSuite) TestSortedWindowsCoverCollection() {
	cfg := s.config(6)
	cfg.Sort = `{"_id": 1}`
	cfg.BatchSize = 7
	src, err := mongodb.New(s.Context(), cfg)
	s.Require().NoError(err)

	var ids []int
	for _, p := range src.Partitions() {
		it, err := src.Compute(s.Context(), p)
		s.Require().NoError(err)
		for rec, err := range core.Records(it) {
			s.Require().NoError(err)
			ids = append(ids, testutil.Int(s.T(), rec["_id"]))
		}
	}

	s.Require().Len(ids, 100)
	for i, id := range ids {
		s.Equal(i, id)
	}
}

func (s *MongoSourceSuite) TestFilteredCount() {
	cfg := s.config(3)
	cfg.Filter = `{"value": {"$gte": 90}}`
	src, err := mongodb.New(s.Context(), cfg)
	s.Require().NoError(err)
	s.Equal(int64(10), src.TotalCount())
	s.Equal(int64(4), src.WindowSize())
}

func (s *MongoSourceSuite) TestUnreachable() {
	cfg := s.config(2)
	cfg.URI = "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=500"
	cfg.Timeouts.Connection = 500 * time.Millisecond

	_, err := mongodb.New(s.Context(), cfg)
	s.Require().Error(err)
	s.True(errors.IsConnection(err), "got %v", err)
}
