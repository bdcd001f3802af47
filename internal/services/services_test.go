package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
)

// newServiceDB opens a throwaway SQLite database with the full schema.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedSubscriber creates a subscribed member.
func seedSubscriber(t *testing.T, db *gorm.DB, id int64, firstName string) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.UpsertMember(ctx, db, id, "", firstName, ""); err != nil {
		t.Fatalf("UpsertMember(%d): %v", id, err)
	}
	if err := repo.Subscribe(ctx, db, id, time.Now()); err != nil {
		t.Fatalf("Subscribe(%d): %v", id, err)
	}
}

// fakeGateway is an in-memory notify.Gateway. Outcomes default to Delivered
// and can be overridden per recipient.
type fakeGateway struct {
	outcomes map[int64]notify.Outcome

	deliveries map[int64][]string // recipient -> texts
	choices    map[int64][][]notify.Choice
	announced  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		outcomes:   map[int64]notify.Outcome{},
		deliveries: map[int64][]string{},
		choices:    map[int64][][]notify.Choice{},
	}
}

func (g *fakeGateway) Deliver(_ context.Context, recipientID int64, text string, choices [][]notify.Choice) (notify.Outcome, error) {
	if out, ok := g.outcomes[recipientID]; ok {
		if out == notify.TransientFailure {
			return out, fmt.Errorf("transient failure for %d", recipientID)
		}
		return out, nil
	}
	g.deliveries[recipientID] = append(g.deliveries[recipientID], text)
	if len(choices) > 0 {
		g.choices[recipientID] = choices
	}
	return notify.Delivered, nil
}

func (g *fakeGateway) Announce(_ context.Context, _ int64, _ *int, text string) (notify.Outcome, error) {
	g.announced = append(g.announced, text)
	return notify.Delivered, nil
}

func (g *fakeGateway) deliveryCount() int {
	n := 0
	for _, texts := range g.deliveries {
		n += len(texts)
	}
	return n
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

// fixedNow pins services to June 2024.
func fixedNow() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
