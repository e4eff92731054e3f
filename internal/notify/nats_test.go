package notify

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"
)

// MockLogger implements logger.Logger for tests.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string)  { m.Called(msg) }
func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.Called(format, args)
}
func (m *MockLogger) Info(msg string) { m.Called(msg) }
func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}
func (m *MockLogger) Warn(msg string) { m.Called(msg) }
func (m *MockLogger) Warnf(format string, args ...interface{}) {
	m.Called(format, args)
}
func (m *MockLogger) Error(msg string) { m.Called(msg) }
func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}
func (m *MockLogger) Fatal(msg string) { m.Called(msg) }
func (m *MockLogger) Fatalf(format string, args ...interface{}) {
	m.Called(format, args)
}
func (m *MockLogger) Panic(msg string) { m.Called(msg) }
func (m *MockLogger) Panicf(format string, args ...interface{}) {
	m.Called(format, args)
}
func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}
func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	m.Called(fields)
	return m
}

func runWithInMemoryNATS(t *testing.T, fn func(t *testing.T, s *server.Server, url string)) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	time.Sleep(100 * time.Millisecond)
	fn(t, s, s.ClientURL())
}

func TestConnect_RejectsEmptyURL(t *testing.T) {
	t.Parallel()

	mockLogger := new(MockLogger)

	_, err := Connect(Config{}, mockLogger)
	assert.Error(t, err)
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestNATSPublisher_PublishAndHealth(t *testing.T) {
	t.Parallel()

	runWithInMemoryNATS(t, func(t *testing.T, _ *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", mock.Anything, mock.Anything).Maybe()

		pub, err := Connect(Config{URL: url, SubjectPrefix: "test"}, mockLogger)
		require.NoError(t, err)
		defer pub.Close()

		require.NoError(t, pub.Health(context.Background()))

		raw, err := nats.Connect(url)
		require.NoError(t, err)
		defer raw.Close()

		received := make(chan *nats.Msg, 1)
		sub, err := raw.Subscribe("test.batch.flushed", func(m *nats.Msg) {
			received <- m
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		err = pub.PublishBatchFlushed(context.Background(), BatchFlushedNotice{
			BatchSize: 42,
			FlushedAt: 1000,
		})
		require.NoError(t, err)

		select {
		case msg := <-received:
			assert.NotEmpty(t, msg.Data)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for published message")
		}
	})
}

func TestNATSPublisher_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	runWithInMemoryNATS(t, func(t *testing.T, _ *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", mock.Anything, mock.Anything).Once()

		pub, err := Connect(Config{URL: url}, mockLogger)
		require.NoError(t, err)

		assert.NoError(t, pub.Close())
		assert.NoError(t, pub.Close())

		mockLogger.AssertExpectations(t)
	})
}

func TestNoopPublisher_NeverErrors(t *testing.T) {
	t.Parallel()

	var p Publisher = NoopPublisher{}
	ctx := context.Background()

	assert.NoError(t, p.PublishBatchFlushed(ctx, BatchFlushedNotice{}))
	assert.NoError(t, p.PublishRankChanged(ctx, RankChangedNotice{}))
	assert.NoError(t, p.Health(ctx))
	assert.NoError(t, p.Close())
}
