package pgstore

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testURL string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ocrdesk",
				"POSTGRES_PASSWORD": "ocrdesk",
				"POSTGRES_DB":       "ocrdesk",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	testURL = fmt.Sprintf("postgres://ocrdesk:ocrdesk@%s:%s/ocrdesk?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func openStore(t *testing.T, capacity int) (*Store, *metrics.Collector) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	mc := metrics.NewCollector()
	s, err := Open(ctx, testURL, capacity, mc, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.WipeData(ctx))
	return s, mc
}

func newJob(name string) models.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.Job{
		ID:        models.NewID("job"),
		FileName:  name,
		Type:      models.JobTypeOCR,
		Status:    models.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Attempt:   1,
		Settings:  models.DefaultOcrSettings(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s, mc := openStore(t, 0)
	ctx := context.Background()

	job := newJob("scan.pdf")
	job.Settings.Mode = "accurate"
	_, err := s.Insert(ctx, job)
	require.NoError(t, err)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = s.Get(ctx, "job-missing")
	assert.ErrorIs(t, err, service.ErrJobNotFound)

	snap := mc.Snapshot().StoreQuery
	require.NotNil(t, snap)
	assert.EqualValues(t, 1, snap.Errors, "the missing lookup counts as an error")
}

func TestStoreOrderAndEviction(t *testing.T) {
	s, _ := openStore(t, 3)
	ctx := context.Background()

	a, b := newJob("a.png"), newJob("b.png")
	_, err := s.Insert(ctx, a, b)
	require.NoError(t, err)

	c, d := newJob("c.png"), newJob("d.png")
	evicted, err := s.Insert(ctx, c, d)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, evicted)

	list, err := s.List(ctx)
	require.NoError(t, err)
	var ids []string
	for _, j := range list {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{c.ID, d.ID, a.ID}, ids)
}

func TestStoreUpdate(t *testing.T) {
	s, _ := openStore(t, 0)
	ctx := context.Background()

	job := newJob("a.png")
	_, err := s.Insert(ctx, job)
	require.NoError(t, err)

	job.Status = models.JobStatusError
	job.Message = "Error: boom"
	job.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.Update(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, got.Status)
	assert.Equal(t, "Error: boom", got.Message)

	assert.ErrorIs(t, s.Update(ctx, newJob("x.png")), service.ErrJobNotFound)
	_, err = s.Insert(ctx, job)
	assert.ErrorIs(t, err, ErrJobExists)
}
