package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// MongoURIEnv names the variable holding the connection string integration
// tests run against
const MongoURIEnv = "MONGOSPLIT_TEST_URI"

// IntegrationTestSuite provides base functionality for integration tests
// against a live MongoDB. Suites are skipped when MONGOSPLIT_TEST_URI is
// unset or when running with -short.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	uri       string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("Skipping integration test in short mode")
	}
	s.uri = os.Getenv(MongoURIEnv)
	if s.uri == "" {
		s.T().Skipf("%s not set", MongoURIEnv)
	}

	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()
	s.T().Logf("Integration test suite started against %s", s.uri)
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.cancel != nil {
		s.cancel()
	}
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// URI returns the MongoDB connection string under test
func (s *IntegrationTestSuite) URI() string {
	return s.uri
}
