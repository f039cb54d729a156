package sqldb

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "jarq.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return db
}

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	alice, err := db.CreateUser(ctx, "alice", "alice@example.com", []byte("hash"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if alice.ID != 1 {
		t.Errorf("expected id 1, got %d", alice.ID)
	}
	bob, err := db.CreateUser(ctx, "bob", "bob@example.com", []byte("hash2"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if bob.ID != 2 {
		t.Errorf("expected id 2, got %d", bob.ID)
	}

	got, err := db.GetUserByName(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != alice.ID || got.Email != "alice@example.com" || string(got.PasswordHash) != "hash" {
		t.Errorf("unexpected user %+v", got)
	}
	if !got.Created.Equal(testNow) {
		t.Errorf("expected created %v, got %v", testNow, got.Created)
	}

	if _, err := db.CreateUser(ctx, "alice", "other@example.com", nil, testNow); storage.KindOf(err) != storage.KindDaoFailure {
		t.Errorf("duplicate name: expected dao failure, got %v", err)
	}

	if ok, err := db.DeleteUser(ctx, alice.ID); err != nil || !ok {
		t.Fatalf("DeleteUser: %v, %v", ok, err)
	}
	if ok, err := db.DeleteUser(ctx, alice.ID); err != nil || ok {
		t.Errorf("second DeleteUser: expected false, got %v, %v", ok, err)
	}
	if _, err := db.GetUser(ctx, alice.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	carol, err := db.CreateUser(ctx, "carol", "carol@example.com", []byte("h"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if carol.ID != 1 {
		t.Errorf("freed id should be reused: expected 1, got %d", carol.ID)
	}
	users, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Name != "carol" || users[1].Name != "bob" {
		t.Errorf("unexpected users %+v", users)
	}
}

func TestRepositoriesAndTexts(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	u, err := db.CreateUser(ctx, "alice", "a@example.com", nil, testNow)
	if err != nil {
		t.Fatal(err)
	}
	r1, err := db.CreateRepository(ctx, u.ID, "novels", testNow)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := db.CreateRepository(ctx, u.ID, "essays", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if r1.ID != 1 || r2.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", r1.ID, r2.ID)
	}

	if _, err := db.CreateRepository(ctx, 42, "orphan", testNow); storage.KindOf(err) != storage.KindDaoFailure {
		t.Errorf("unknown user: expected dao failure, got %v", err)
	}

	later := testNow.Add(time.Hour)
	r1.Name = "fiction"
	r1.Modified = later
	if ok, err := db.UpdateRepository(ctx, r1); err != nil || !ok {
		t.Fatalf("UpdateRepository: %v, %v", ok, err)
	}
	got, err := db.GetRepository(ctx, r1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "fiction" || !got.Modified.Equal(later) || !got.Created.Equal(testNow) {
		t.Errorf("unexpected repository %+v", got)
	}

	txt, err := db.CreateText(ctx, r1.ID, "chapter one", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.TouchText(ctx, txt.ID, later); err != nil {
		t.Fatal(err)
	}
	texts, err := db.ListTextsByRepository(ctx, r1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(texts) != 1 || !texts[0].Modified.Equal(later) {
		t.Errorf("unexpected texts %+v", texts)
	}
	if err := db.SetTextHistoryBase(ctx, txt.ID, "abc123"); err != nil {
		t.Fatal(err)
	}
	if got, err := db.GetText(ctx, txt.ID); err != nil || got.HistoryBase != "abc123" {
		t.Errorf("expected history base abc123, got %+v, %v", got, err)
	}

	n, err := db.DeleteRepositoriesByUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted repositories, got %d", n)
	}
	if _, err := db.GetText(ctx, txt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("text should cascade: got %v", err)
	}
}

func TestContents(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	u, err := db.CreateUser(ctx, "alice", "a@example.com", nil, testNow)
	if err != nil {
		t.Fatal(err)
	}
	r, err := db.CreateRepository(ctx, u.ID, "novels", testNow)
	if err != nil {
		t.Fatal(err)
	}
	txt, err := db.CreateText(ctx, r.ID, "chapter", testNow)
	if err != nil {
		t.Fatal(err)
	}

	const bigSum = math.MaxUint64 - 7
	c, err := db.CreateContent(ctx, txt.ID, "b.md", 12, bigSum, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateContent(ctx, txt.ID, "a.md", 3, 1, testNow); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateContent(ctx, txt.ID, "b.md", 1, 1, testNow); storage.KindOf(err) != storage.KindDaoFailure {
		t.Errorf("duplicate filename: expected dao failure, got %v", err)
	}

	got, err := db.GetContentByName(ctx, txt.ID, "b.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID || got.Size != 12 || got.Checksum != bigSum {
		t.Errorf("unexpected content %+v", got)
	}

	if ok, err := db.UpdateContent(ctx, c.ID, 20, 99, testNow.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("UpdateContent: %v, %v", ok, err)
	}
	list, err := db.ListContentsByText(ctx, txt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Filename != "a.md" || list[1].Size != 20 || list[1].Checksum != 99 {
		t.Errorf("unexpected contents %+v", list)
	}

	if ok, err := db.DeleteUser(ctx, u.ID); err != nil || !ok {
		t.Fatalf("DeleteUser: %v, %v", ok, err)
	}
	list, err = db.ListContentsByText(ctx, txt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("contents should cascade from user, got %d", len(list))
	}
}

func TestInTx(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	boom := errors.New("boom")
	err := db.InTx(ctx, func(q *Queries) error {
		if _, err := q.CreateUser(ctx, "alice", "a@example.com", nil, testNow); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if users, err := db.ListUsers(ctx); err != nil || len(users) != 0 {
		t.Errorf("rollback expected, got %d users, %v", len(users), err)
	}

	err = db.InTx(ctx, func(q *Queries) error {
		for _, name := range []string{"alice", "bob"} {
			if _, err := q.CreateUser(ctx, name, name+"@example.com", nil, testNow); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	users, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].ID != 1 || users[1].ID != 2 {
		t.Errorf("unexpected users %+v", users)
	}
}

func TestAddresses(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	alice, err := db.CreateUser(ctx, "alice", "alice@example.com", nil, testNow)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := db.CreateUser(ctx, "bob", "bob@example.com", nil, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetAddressByUser(ctx, alice.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	a := &models.Address{UserID: alice.ID, PostalCode: "00-001", City: "Warsaw", Street: "Long", HouseNo: "1"}
	if err := db.CreateAddress(ctx, a, testNow); err != nil {
		t.Fatal(err)
	}
	if a.ID != 1 {
		t.Errorf("expected id 1, got %d", a.ID)
	}
	if err := db.CreateAddress(ctx, &models.Address{UserID: alice.ID, PostalCode: "x", City: "x", Street: "x", HouseNo: "x"}, testNow); storage.KindOf(err) != storage.KindDaoFailure {
		t.Errorf("second address: expected dao failure, got %v", err)
	}
	b := &models.Address{UserID: bob.ID, PostalCode: "10-100", City: "Olsztyn", Street: "Short", HouseNo: "2", ApartmentNo: "3"}
	if err := db.CreateAddress(ctx, b, testNow); err != nil {
		t.Fatal(err)
	}
	if b.ID != 2 {
		t.Errorf("expected id 2, got %d", b.ID)
	}

	later := testNow.Add(time.Hour)
	a.City, a.ApartmentNo, a.Modified = "Krakow", "7", later
	if ok, err := db.UpdateAddress(ctx, a); err != nil || !ok {
		t.Fatalf("UpdateAddress: %v, %v", ok, err)
	}
	got, err := db.GetAddressByUser(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.City != "Krakow" || got.ApartmentNo != "7" || got.Street != "Long" {
		t.Errorf("unexpected address %+v", got)
	}
	if !got.Created.Equal(testNow) || !got.Modified.Equal(later) {
		t.Errorf("unexpected dates %v %v", got.Created, got.Modified)
	}

	if ok, err := db.DeleteAddressByUser(ctx, alice.ID); err != nil || !ok {
		t.Fatalf("DeleteAddressByUser: %v, %v", ok, err)
	}
	if ok, err := db.DeleteAddressByUser(ctx, alice.ID); err != nil || ok {
		t.Errorf("second delete: expected false, got %v, %v", ok, err)
	}
	c := &models.Address{UserID: alice.ID, PostalCode: "x", City: "x", Street: "x", HouseNo: "x"}
	if err := db.CreateAddress(ctx, c, testNow); err != nil {
		t.Fatal(err)
	}
	if c.ID != 1 {
		t.Errorf("freed id should be reused: expected 1, got %d", c.ID)
	}

	// Deleting the user cascades.
	if _, err := db.DeleteUser(ctx, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetAddressByUser(ctx, bob.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected cascade, got %v", err)
	}
}
